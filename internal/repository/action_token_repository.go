package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sprintdeck/sprintdeck/internal/domain"
	"github.com/sprintdeck/sprintdeck/internal/observability"

	"gorm.io/gorm"
)

var ErrActionTokenNotFound = errors.New("action token not found")

// ActionTokenRepository persists one-time emailed token records
// (email verification and password reset).
type ActionTokenRepository interface {
	Create(token *domain.ActionToken) error
	// ListSpendableByPurpose returns unused, unexpired tokens of one
	// purpose. Secrets are salted digests, so consumption scans this list
	// and hash-compares each record.
	ListSpendableByPurpose(purpose string) ([]domain.ActionToken, error)
	// MarkUsed stamps used_at if and only if the token is still unused;
	// the rows-affected result makes consumption exactly-once.
	MarkUsed(tokenID uint, at time.Time) (bool, error)
}

type GormActionTokenRepository struct{ db *gorm.DB }

func NewActionTokenRepository(db *gorm.DB) ActionTokenRepository {
	return &GormActionTokenRepository{db: db}
}

func (r *GormActionTokenRepository) Create(token *domain.ActionToken) error {
	err := r.db.Create(token).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "action_token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "action_token", "create", "success")
	return nil
}

func (r *GormActionTokenRepository) ListSpendableByPurpose(purpose string) ([]domain.ActionToken, error) {
	var tokens []domain.ActionToken
	err := r.db.Where("purpose = ? AND used_at IS NULL AND expires_at > ?", purpose, time.Now()).
		Order("created_at DESC").
		Find(&tokens).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "action_token", "list_spendable_by_purpose", "error")
		return tokens, err
	}
	observability.RecordRepositoryOperation(context.Background(), "action_token", "list_spendable_by_purpose", "success")
	return tokens, nil
}

func (r *GormActionTokenRepository) MarkUsed(tokenID uint, at time.Time) (bool, error) {
	res := r.db.Model(&domain.ActionToken{}).
		Where("id = ? AND used_at IS NULL", tokenID).
		Update("used_at", at)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "action_token", "mark_used", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "action_token", "mark_used", "success")
	return res.RowsAffected > 0, nil
}

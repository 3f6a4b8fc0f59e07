package repository

import (
	"context"
	"time"

	"github.com/sprintdeck/sprintdeck/internal/domain"
	"github.com/sprintdeck/sprintdeck/internal/observability"

	"gorm.io/gorm"
)

// LoginAttemptRepository appends to the login audit log. Rows are never
// updated or deleted.
type LoginAttemptRepository interface {
	Create(attempt *domain.LoginAttempt) error
	CountFailedSince(userID uint, since time.Time) (int64, error)
}

type GormLoginAttemptRepository struct{ db *gorm.DB }

func NewLoginAttemptRepository(db *gorm.DB) LoginAttemptRepository {
	return &GormLoginAttemptRepository{db: db}
}

func (r *GormLoginAttemptRepository) Create(attempt *domain.LoginAttempt) error {
	err := r.db.Create(attempt).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_attempt", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "login_attempt", "create", "success")
	return nil
}

func (r *GormLoginAttemptRepository) CountFailedSince(userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&domain.LoginAttempt{}).
		Where("user_id = ? AND success = ? AND created_at >= ?", userID, false, since).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_attempt", "count_failed_since", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "login_attempt", "count_failed_since", "success")
	return count, nil
}

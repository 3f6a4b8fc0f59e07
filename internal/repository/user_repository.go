package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sprintdeck/sprintdeck/internal/domain"
	"github.com/sprintdeck/sprintdeck/internal/observability"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	Create(user *domain.User) error
	FindByID(id uint) (*domain.User, error)
	FindByEmail(email string) (*domain.User, error)
	UpdatePasswordHash(userID uint, hash string) error
	SetLockedUntil(userID uint, until *time.Time) error
	RecordLoginSuccess(userID uint, at time.Time) error
	MarkEmailVerified(userID uint) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) Create(user *domain.User) error {
	err := r.db.Create(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "create", "success")
	return nil
}

func (r *GormUserRepository) FindByID(id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Roles").First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(email string) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Roles").Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) UpdatePasswordHash(userID uint, hash string) error {
	err := r.db.Model(&domain.User{}).Where("id = ?", userID).
		Update("password_hash", hash).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_password_hash", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "update_password_hash", "success")
	return nil
}

func (r *GormUserRepository) SetLockedUntil(userID uint, until *time.Time) error {
	err := r.db.Model(&domain.User{}).Where("id = ?", userID).
		Update("locked_until", until).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "set_locked_until", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "set_locked_until", "success")
	return nil
}

// RecordLoginSuccess clears the lockout marker, bumps the login counter and
// stamps last_login_at in a single update.
func (r *GormUserRepository) RecordLoginSuccess(userID uint, at time.Time) error {
	err := r.db.Model(&domain.User{}).Where("id = ?", userID).
		Updates(map[string]any{
			"locked_until":  nil,
			"login_count":   gorm.Expr("login_count + 1"),
			"last_login_at": at,
		}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "record_login_success", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "record_login_success", "success")
	return nil
}

func (r *GormUserRepository) MarkEmailVerified(userID uint) error {
	err := r.db.Model(&domain.User{}).Where("id = ?", userID).
		Update("email_verified", true).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "mark_email_verified", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "mark_email_verified", "success")
	return nil
}

package domain

import "time"

const (
	TokenPurposeEmailVerify   = "email_verify"
	TokenPurposePasswordReset = "password_reset"
)

// ActionToken backs emailed one-time secrets (email verification and password
// reset). Only a salted digest of the secret is stored; a token is spendable
// exactly once and only before its expiry.
type ActionToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:256;not null" json:"-"`
	Purpose   string     `gorm:"size:32;index;not null" json:"purpose"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time `gorm:"index" json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (t *ActionToken) Spendable(now time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(now)
}

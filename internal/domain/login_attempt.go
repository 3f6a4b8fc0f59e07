package domain

import "time"

// LoginAttempt is an append-only audit record. Rows are never mutated; the
// lockout policy counts failures inside a trailing window.
type LoginAttempt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Success   bool      `gorm:"not null" json:"success"`
	IP        string    `gorm:"size:64" json:"ip"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

package service

import (
	"errors"
	"strings"
)

// Typed failure conditions raised by the auth service. Handlers translate
// these 1:1 into HTTP responses; nothing security-relevant is ever collapsed
// into a generic success.
var (
	// ErrInvalidCredentials is shared by unknown-email and wrong-password
	// rejections so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrEmailTaken          = errors.New("an account with this email already exists")
	ErrAccountLocked       = errors.New("account temporarily locked, try again later")
	ErrTooManyAttempts     = errors.New("too many failed login attempts, account locked")
	ErrLoginCooldown       = errors.New("too many failed attempts, slow down")
	ErrEmailNotVerified    = errors.New("please verify your email address before logging in")
	ErrAccountDeactivated  = errors.New("account deactivated")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidActionToken covers never-existed, already-used and expired
	// verification/reset tokens alike; callers must not learn which.
	ErrInvalidActionToken = errors.New("invalid or expired token")
	ErrIncorrectPassword  = errors.New("current password is incorrect")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is not active")
	ErrSessionNotFound    = errors.New("session not found")
)

// WeakPasswordError aggregates every strength rule the password failed.
type WeakPasswordError struct {
	Violations []string
}

func (e *WeakPasswordError) Error() string {
	return "password does not meet requirements: " + strings.Join(e.Violations, "; ")
}

package service

import (
	"context"
	"time"
)

type AuthAbuseScope string

const (
	AuthAbuseScopeLogin AuthAbuseScope = "login"
	AuthAbuseScopeReset AuthAbuseScope = "reset"
)

// AuthAbusePolicy shapes the exponential cooldown applied to repeated
// failures from one identity+IP pair. It operates in front of the
// database-backed lockout policy and never replaces it.
type AuthAbusePolicy struct {
	FreeAttempts int
	BaseDelay    time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	ResetWindow  time.Duration
}

func (p AuthAbusePolicy) delayFor(failures int64) time.Duration {
	over := failures - int64(p.FreeAttempts)
	if over <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := int64(1); i < over; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

type AuthAbuseGuard interface {
	// Check reports the remaining cooldown, zero when the caller may try.
	Check(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	// RegisterFailure records a failed attempt and returns the cooldown it
	// caused, zero while attempts are still free.
	RegisterFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) (time.Duration, error)
	// Reset clears the failure history after a success.
	Reset(ctx context.Context, scope AuthAbuseScope, identity, ip string) error
}

// NoopAuthAbuseGuard disables edge throttling; the lockout policy still
// applies.
type NoopAuthAbuseGuard struct{}

func NewNoopAuthAbuseGuard() *NoopAuthAbuseGuard { return &NoopAuthAbuseGuard{} }

func (g *NoopAuthAbuseGuard) Check(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (g *NoopAuthAbuseGuard) RegisterFailure(context.Context, AuthAbuseScope, string, string) (time.Duration, error) {
	return 0, nil
}

func (g *NoopAuthAbuseGuard) Reset(context.Context, AuthAbuseScope, string, string) error {
	return nil
}

package service

import "time"

// LockoutState is the account's position in the lockout state machine.
type LockoutState int

const (
	// LockoutOpen means login attempts may proceed to credential checks.
	LockoutOpen LockoutState = iota
	// LockoutActive means a previously-set lock has not elapsed yet.
	LockoutActive
	// LockoutTriggered means this attempt crossed the failure threshold and
	// the account must be locked now.
	LockoutTriggered
)

// LockoutPolicy decides lock/unlock from the stored lock marker and the
// count of failed attempts inside the trailing window. It is a pure
// function of its inputs; persistence of the transition belongs to the
// caller.
type LockoutPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// WindowStart returns the earliest failed attempt that still counts. The
// window length equals the lockout duration.
func (p LockoutPolicy) WindowStart(now time.Time) time.Time {
	return now.Add(-p.LockoutDuration)
}

// Evaluate runs the first two steps of the login precedence: an unexpired
// lock wins over everything, then the failure threshold. Password, email
// verification and active checks come after, in that order, in the caller.
func (p LockoutPolicy) Evaluate(lockedUntil *time.Time, failedInWindow int64, now time.Time) LockoutState {
	if lockedUntil != nil && lockedUntil.After(now) {
		return LockoutActive
	}
	if failedInWindow >= int64(p.MaxAttempts) {
		return LockoutTriggered
	}
	return LockoutOpen
}

// LockUntil computes the lock expiry persisted on a triggered transition.
func (p LockoutPolicy) LockUntil(now time.Time) time.Time {
	return now.Add(p.LockoutDuration)
}

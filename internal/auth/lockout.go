package auth

import (
	"errors"
	"math"
	"time"

	"github.com/iliyamo/galleryhub/internal/model"
)

const (
	// DefaultLockThreshold is the number of consecutive failures that locks an account.
	DefaultLockThreshold = 5

	// DefaultLockDuration is how long a lock lasts.
	DefaultLockDuration = 15 * time.Minute
)

// State is the lockout state of an account at a given instant.
type State int

const (
	// StateOpen accepts attempts.
	StateOpen State = iota
	// StateLocked rejects every attempt until the lock expires.
	StateLocked
	// StateExpiredLock is still flagged in the store but logically open;
	// the next write clears it.
	StateExpiredLock
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateLocked:
		return "locked"
	case StateExpiredLock:
		return "expired_lock"
	}
	return "unknown"
}

// Policy decides lockout transitions. It holds no state of its own: the
// counter and lock fields live in the account store and every transition
// is applied through the store's compare-and-set.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultLockThreshold, Duration: DefaultLockDuration}
}

func (p Policy) Validate() error {
	if p.Threshold < 1 {
		return errors.New("lock threshold must be at least 1")
	}
	if p.Duration < time.Minute {
		return errors.New("lock duration must be at least one minute")
	}
	return nil
}

// Evaluate classifies st at now. A lock flag without an expiry is treated
// as lapsed so a damaged row cannot lock an account forever.
func (p Policy) Evaluate(st model.LoginState, now time.Time) State {
	if !st.Locked {
		return StateOpen
	}
	if st.LockExpiresAt != nil && st.LockExpiresAt.After(now) {
		return StateLocked
	}
	return StateExpiredLock
}

// Fail applies one failed attempt. A live lock is returned as a
// *LockedError and the counter is left untouched; a lapsed lock is cleared
// before counting. Reaching the threshold sets the lock.
func (p Policy) Fail(st model.LoginState, now time.Time) (model.LoginState, error) {
	switch p.Evaluate(st, now) {
	case StateLocked:
		return st, newLockedError(*st.LockExpiresAt, now)
	case StateExpiredLock:
		st = model.LoginState{}
	}
	at := now
	st.FailedAttempts++
	st.LastFailedAt = &at
	if st.FailedAttempts >= p.Threshold {
		until := now.Add(p.Duration)
		st.Locked = true
		st.LockExpiresAt = &until
	}
	return st, nil
}

// Succeed applies a successful attempt: counter and lock are cleared
// unless a lock went live in the meantime.
func (p Policy) Succeed(st model.LoginState, now time.Time) (model.LoginState, error) {
	if p.Evaluate(st, now) == StateLocked {
		return st, newLockedError(*st.LockExpiresAt, now)
	}
	return model.LoginState{}, nil
}

// RemainingMinutes is the wait until `until`, rounded up to whole minutes.
func RemainingMinutes(until, now time.Time) int {
	d := until.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

package auth

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// LockoutPolicy configures how repeated password failures lock an
// account. The failure that brings the counter to MaxFailedAttempts
// starts a lockout of Duration and resets the counter.
type LockoutPolicy struct {
	Enabled           bool          `koanf:"enabled" json:"enabled"`
	MaxFailedAttempts int           `koanf:"max_failed_attempts" json:"max_failed_attempts"`
	Duration          time.Duration `koanf:"duration" json:"duration"`
}

// DefaultLockoutPolicy locks an account for five minutes after five
// consecutive failures.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Enabled:           true,
		MaxFailedAttempts: 5,
		Duration:          5 * time.Minute,
	}
}

// Validate checks the policy is usable when enabled.
func (p LockoutPolicy) Validate() error {
	if !p.Enabled {
		return nil
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxFailedAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.Duration, validation.Required, validation.Min(time.Second)),
	)
}

// LockedUntil reports the end of the lockout window that applies at
// now, if any.
func LockedUntil(account *Account, now time.Time) (time.Time, bool) {
	if account == nil || account.LockoutEnd == nil {
		return time.Time{}, false
	}
	if account.LockoutEnd.After(now) {
		return *account.LockoutEnd, true
	}
	return time.Time{}, false
}

// PasswordPolicy is enforced on every account creation.
type PasswordPolicy struct {
	MinLength int `koanf:"min_length" json:"min_length"`
	MaxLength int `koanf:"max_length" json:"max_length"`
}

// DefaultPasswordPolicy accepts passwords between 6 and 100 characters.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 6, MaxLength: 100}
}

// Check returns ErrPasswordPolicy when password is rejected.
func (p PasswordPolicy) Check(password string) error {
	lo, hi := p.MinLength, p.MaxLength
	if lo <= 0 {
		lo = 1
	}
	if hi <= 0 {
		hi = 100
	}

	err := validation.Validate(password,
		validation.Required,
		validation.RuneLength(lo, hi),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}
	return nil
}

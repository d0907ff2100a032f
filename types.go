package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the structured logger used across the package. Args are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock returns the current time. Components take one so lockout and
// expiry can be tested deterministically.
type Clock func() time.Time

// AccountFinder resolves accounts by their identifiers.
type AccountFinder interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
}

// SignInChecker answers whether an account may authenticate at all and
// verifies its password.
type SignInChecker interface {
	CanSignIn(ctx context.Context, account *Account) (bool, error)
	VerifyPassword(ctx context.Context, account *Account, password string) (bool, error)
}

// LockoutTracker manages the failed attempt counter and lockout window.
type LockoutTracker interface {
	SupportsLockout(account *Account) bool
	IsLockedOut(ctx context.Context, account *Account) (bool, error)
	IncrementFailureCount(ctx context.Context, account *Account) error
	ResetFailureCount(ctx context.Context, account *Account) error
}

// RoleReader returns the role names assigned to an account.
type RoleReader interface {
	GetRoles(ctx context.Context, account *Account) ([]string, error)
}

// AccountWriter creates accounts and assigns roles.
type AccountWriter interface {
	Create(ctx context.Context, account *Account, password string) error
	AddToRole(ctx context.Context, account *Account, role string) error
}

// AccountLister lists every account.
type AccountLister interface {
	List(ctx context.Context) ([]*Account, error)
}

// IdentityStore is the full capability set the core depends on.
type IdentityStore interface {
	AccountFinder
	SignInChecker
	LockoutTracker
	RoleReader
	AccountWriter
	AccountLister
}

// PasswordHasher hashes and compares secrets.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + line(msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + line(msg, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, "%v", args[i])
		}
	}
	b.WriteByte('\n')
	return b.String()
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger discards every entry.
func NoopLogger() Logger {
	return noopLogger{}
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

func normalizeClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

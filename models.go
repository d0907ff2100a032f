package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus controls whether an account may sign in.
type AccountStatus = string

const (
	// AccountActive may authenticate
	AccountActive AccountStatus = "active"
	// AccountDisabled is rejected at sign in
	AccountDisabled AccountStatus = "disabled"
)

// Account is the user record behind every grant.
type Account struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Username           string        `bun:"username,notnull" json:"username"`
	NormalizedUsername string        `bun:"normalized_username,notnull,unique" json:"-"`
	Email              string        `bun:"email,notnull" json:"email"`
	NormalizedEmail    string        `bun:"normalized_email,notnull,unique" json:"-"`
	FullName           string        `bun:"full_name" json:"full_name,omitempty"`
	PasswordHash       string        `bun:"password_hash,notnull" json:"-"`
	EmailConfirmed     bool          `bun:"email_confirmed,notnull" json:"email_confirmed"`
	Status             AccountStatus `bun:"status,notnull" json:"status"`
	LockoutEnabled     bool          `bun:"lockout_enabled,notnull" json:"lockout_enabled"`
	AccessFailedCount  int           `bun:"access_failed_count,notnull" json:"access_failed_count"`
	LockoutEnd         *time.Time    `bun:"lockout_end,nullzero" json:"lockout_end,omitempty"`
	CreatedAt          time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// Normalize fills the normalized columns from the display values.
func (a *Account) Normalize() *Account {
	a.Username = strings.TrimSpace(a.Username)
	a.Email = strings.TrimSpace(a.Email)
	a.NormalizedUsername = NormalizeKey(a.Username)
	a.NormalizedEmail = NormalizeKey(a.Email)
	if a.Status == "" {
		a.Status = AccountActive
	}
	return a
}

// IsActive reports whether the account status allows sign in.
func (a *Account) IsActive() bool {
	return a.Status == "" || a.Status == AccountActive
}

// Role is a named role accounts can be assigned to.
type Role struct {
	bun.BaseModel  `bun:"table:roles,alias:rol"`
	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name           string    `bun:"name,notnull" json:"name"`
	NormalizedName string    `bun:"normalized_name,notnull,unique" json:"-"`
}

// AccountRole links an account to a role.
type AccountRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:urol"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid"`
	RoleID        uuid.UUID `bun:"role_id,pk,type:uuid"`
}

// Application is a registered OAuth client.
type Application struct {
	bun.BaseModel    `bun:"table:applications,alias:app"`
	ID               uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	ClientID         string    `bun:"client_id,notnull,unique" json:"client_id"`
	ClientSecretHash string    `bun:"client_secret_hash" json:"-"`
	DisplayName      string    `bun:"display_name" json:"display_name,omitempty"`
	RedirectURI      string    `bun:"redirect_uri" json:"redirect_uri,omitempty"`
	Permissions      []string  `bun:"permissions,type:jsonb" json:"permissions"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"created_at"`
}

// NormalizeKey is the lookup form used for usernames, emails and role
// names: trimmed and case folded.
func NormalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim types emitted for a principal.
const (
	ClaimSubject  = "sub"
	ClaimName     = "name"
	ClaimEmail    = "email"
	ClaimFullName = "full_name"
	ClaimRole     = "role"
	ClaimAudience = "aud"
)

// ResourceAudience is the audience every access token is issued for.
const ResourceAudience = "resource"

// Destination routes a claim into one of the issued tokens.
type Destination string

const (
	DestinationAccessToken   Destination = "access_token"
	DestinationIdentityToken Destination = "id_token"
)

// Claim is a typed fact about the principal. Claims are built per
// request and never persisted.
type Claim struct {
	Type         string        `json:"type"`
	Value        string        `json:"value"`
	Destinations []Destination `json:"destinations"`
}

// HasDestination reports whether the claim is routed to d.
func (c Claim) HasDestination(d Destination) bool {
	for _, dest := range c.Destinations {
		if dest == d {
			return true
		}
	}
	return false
}

// DestinationsFor returns the destinations for a claim type: subject and
// name go to both tokens, every other type only to the access token.
func DestinationsFor(claimType string) []Destination {
	switch claimType {
	case ClaimSubject, ClaimName:
		return []Destination{DestinationAccessToken, DestinationIdentityToken}
	default:
		return []Destination{DestinationAccessToken}
	}
}

func newClaim(claimType, value string) Claim {
	return Claim{Type: claimType, Value: value, Destinations: DestinationsFor(claimType)}
}

// ValidatedAccount is an account that passed credential validation
// together with its roles in enumeration order.
type ValidatedAccount struct {
	Account *Account
	Roles   []string
}

// Principal is the authenticated identity ready for signing.
type Principal struct {
	Subject   string    `json:"sub"`
	Claims    []Claim   `json:"claims"`
	Scopes    []string  `json:"scopes,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// ClaimsFor returns the claims routed to d, preserving order.
func (p Principal) ClaimsFor(d Destination) []Claim {
	out := make([]Claim, 0, len(p.Claims))
	for _, c := range p.Claims {
		if c.HasDestination(d) {
			out = append(out, c)
		}
	}
	return out
}

// HasScope reports whether scope was granted.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// BuildClaims maps a validated account to its ordered claims: subject,
// name, email, full name, one role claim per role and the resource
// audience. Empty optional values are skipped.
func BuildClaims(account ValidatedAccount) []Claim {
	acc := account.Account
	if acc == nil {
		return nil
	}

	claims := make([]Claim, 0, 5+len(account.Roles))
	claims = append(claims, newClaim(ClaimSubject, acc.ID.String()))
	if acc.Username != "" {
		claims = append(claims, newClaim(ClaimName, acc.Username))
	}
	if acc.Email != "" {
		claims = append(claims, newClaim(ClaimEmail, acc.Email))
	}
	if acc.FullName != "" {
		claims = append(claims, newClaim(ClaimFullName, acc.FullName))
	}
	for _, role := range account.Roles {
		claims = append(claims, newClaim(ClaimRole, role))
	}
	claims = append(claims, newClaim(ClaimAudience, ResourceAudience))

	return claims
}

// BuildPrincipal builds the claims for account and attaches the
// requested scopes verbatim. Scopes are not checked against any
// registered allowlist.
func BuildPrincipal(account ValidatedAccount, requestedScopes []string) Principal {
	p := Principal{
		Claims: BuildClaims(account),
		Scopes: NormalizeScopes(requestedScopes),
	}
	if account.Account != nil {
		p.Subject = account.Account.ID.String()
	}
	return p
}

// ParseScopes splits a space delimited scope parameter.
func ParseScopes(raw string) []string {
	return NormalizeScopes(strings.Fields(raw))
}

// NormalizeScopes drops blanks and duplicates, keeping first occurrence
// order.
func NormalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// AuthClaims is the validated view of a bearer access token.
type AuthClaims interface {
	Subject() string
	Username() string
	Email() string
	Roles() []string
	HasRole(role string) bool
	Scopes() []string
	HasScope(scope string) bool
	TokenID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenClaims is the JWT payload of an access token.
type TokenClaims struct {
	jwt.RegisteredClaims
	Name     string           `json:"name,omitempty"`
	Mail     string           `json:"email,omitempty"`
	FullName string           `json:"full_name,omitempty"`
	Role     jwt.ClaimStrings `json:"role,omitempty"`
	Scope    string           `json:"scope,omitempty"`
	TokenUse string           `json:"token_use,omitempty"`
}

var _ AuthClaims = (*TokenClaims)(nil)

// Subject returns the subject claim
func (c *TokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

func (c *TokenClaims) Username() string {
	return c.Name
}

func (c *TokenClaims) Email() string {
	return c.Mail
}

func (c *TokenClaims) Roles() []string {
	return []string(c.Role)
}

// HasRole compares role names case insensitively.
func (c *TokenClaims) HasRole(role string) bool {
	return ContainsRole(c.Role, role)
}

func (c *TokenClaims) Scopes() []string {
	return ParseScopes(c.Scope)
}

func (c *TokenClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

func (c *TokenClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

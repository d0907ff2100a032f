package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-auth-server"
)

func claimTypes(claims []auth.Claim) []string {
	out := make([]string, 0, len(claims))
	for _, c := range claims {
		out = append(out, c.Type)
	}
	return out
}

func TestBuildClaims_Order(t *testing.T) {
	acc := testAccount("alice")

	claims := auth.BuildClaims(auth.ValidatedAccount{Account: acc, Roles: []string{"Admin", "User"}})

	assert.Equal(t, []string{"sub", "name", "email", "full_name", "role", "role", "aud"}, claimTypes(claims))
	assert.Equal(t, acc.ID.String(), claims[0].Value)
	assert.Equal(t, "alice", claims[1].Value)
	assert.Equal(t, "alice@example.com", claims[2].Value)
	assert.Equal(t, "Test alice", claims[3].Value)
	assert.Equal(t, "Admin", claims[4].Value)
	assert.Equal(t, "User", claims[5].Value)
	assert.Equal(t, auth.ResourceAudience, claims[6].Value)
}

func TestBuildClaims_SkipsEmptyOptionalValues(t *testing.T) {
	acc := testAccount("bob")
	acc.FullName = ""
	acc.Email = ""

	claims := auth.BuildClaims(auth.ValidatedAccount{Account: acc})
	assert.Equal(t, []string{"sub", "name", "aud"}, claimTypes(claims))

	assert.Nil(t, auth.BuildClaims(auth.ValidatedAccount{}))
}

func TestClaimDestinations(t *testing.T) {
	both := []auth.Destination{auth.DestinationAccessToken, auth.DestinationIdentityToken}
	accessOnly := []auth.Destination{auth.DestinationAccessToken}

	assert.Equal(t, both, auth.DestinationsFor(auth.ClaimSubject))
	assert.Equal(t, both, auth.DestinationsFor(auth.ClaimName))
	for _, ct := range []string{auth.ClaimEmail, auth.ClaimFullName, auth.ClaimRole, auth.ClaimAudience, "custom"} {
		assert.Equal(t, accessOnly, auth.DestinationsFor(ct), ct)
	}

	p := auth.BuildPrincipal(auth.ValidatedAccount{Account: testAccount("carol"), Roles: []string{"User"}}, nil)
	assert.Equal(t, []string{"sub", "name"}, claimTypes(p.ClaimsFor(auth.DestinationIdentityToken)))
	assert.Len(t, p.ClaimsFor(auth.DestinationAccessToken), len(p.Claims))
}

func TestBuildPrincipal(t *testing.T) {
	acc := testAccount("dave")
	p := auth.BuildPrincipal(auth.ValidatedAccount{Account: acc}, []string{"openid", " ", "email", "openid"})

	assert.Equal(t, acc.ID.String(), p.Subject)
	assert.Equal(t, []string{"openid", "email"}, p.Scopes)
	assert.True(t, p.HasScope("email"))
	assert.False(t, p.HasScope("profile"))
}

func TestParseScopes(t *testing.T) {
	assert.Equal(t, []string{"openid", "profile"}, auth.ParseScopes("  openid profile openid "))
	assert.Empty(t, auth.ParseScopes(""))
}

func TestTokenClaimsAccessors(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	claims := &auth.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "sub-1",
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Name:  "erin",
		Mail:  "erin@example.com",
		Role:  jwt.ClaimStrings{"Admin"},
		Scope: "openid email",
	}

	assert.Equal(t, "sub-1", claims.Subject())
	assert.Equal(t, "erin", claims.Username())
	assert.Equal(t, "erin@example.com", claims.Email())
	assert.Equal(t, []string{"Admin"}, claims.Roles())
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("user"))
	assert.Equal(t, []string{"openid", "email"}, claims.Scopes())
	assert.True(t, claims.HasScope("email"))
	assert.Equal(t, "jti-1", claims.TokenID())
	assert.True(t, now.Equal(claims.IssuedAt()))
	assert.True(t, now.Add(time.Hour).Equal(claims.Expires()))

	empty := &auth.TokenClaims{}
	assert.True(t, empty.Expires().IsZero())
	assert.True(t, empty.IssuedAt().IsZero())
}

func TestClaimHasDestination(t *testing.T) {
	c := auth.Claim{Type: "x", Destinations: []auth.Destination{auth.DestinationIdentityToken}}
	require.True(t, c.HasDestination(auth.DestinationIdentityToken))
	require.False(t, c.HasDestination(auth.DestinationAccessToken))
}

package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-auth-server"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func signedPrincipal(t *testing.T, clock *fakeClock, scopes ...string) (auth.Principal, *auth.Account) {
	t.Helper()
	acc := testAccount("alice")
	p := auth.BuildPrincipal(auth.ValidatedAccount{Account: acc, Roles: []string{"Admin", "User"}}, scopes)
	p.IssuedAt = clock.Now()
	p.ExpiresAt = p.IssuedAt.Add(auth.TokenLifetime)
	return p, acc
}

func parseUnverified(t *testing.T, raw string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	require.NoError(t, err)
	return claims
}

func TestTokenService_SignAccessToken(t *testing.T) {
	clock := newFakeClock()
	svc := auth.NewTokenService(testSigningKey, "test-issuer", "web-client", auth.NoopLogger()).WithClock(clock.Now)
	p, acc := signedPrincipal(t, clock, "profile")

	resp, err := svc.Sign(p, "")
	require.NoError(t, err)

	assert.Equal(t, auth.TokenTypeBearer, resp.TokenType)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "profile", resp.Scope)
	assert.Empty(t, resp.IDToken, "no identity token without openid")

	mc := parseUnverified(t, resp.AccessToken)
	assert.Equal(t, acc.ID.String(), mc["sub"])
	assert.Equal(t, "alice", mc["name"])
	assert.Equal(t, "alice@example.com", mc["email"])
	assert.Equal(t, []any{"Admin", "User"}, mc["role"])
	assert.Equal(t, auth.ResourceAudience, mc["aud"])
	assert.Equal(t, "test-issuer", mc["iss"])
	assert.Equal(t, auth.TokenUseAccess, mc["token_use"])
	assert.NotEmpty(t, mc["jti"])
}

func TestTokenService_SignIdentityToken(t *testing.T) {
	clock := newFakeClock()
	svc := auth.NewTokenService(testSigningKey, "test-issuer", "web-client", auth.NoopLogger()).WithClock(clock.Now)
	p, acc := signedPrincipal(t, clock, "openid", "email")

	resp, err := svc.Sign(p, "")
	require.NoError(t, err)
	require.NotEmpty(t, resp.IDToken)

	id := parseUnverified(t, resp.IDToken)
	assert.Equal(t, acc.ID.String(), id["sub"])
	assert.Equal(t, "alice", id["name"])
	assert.Equal(t, "web-client", id["aud"])
	assert.Equal(t, auth.TokenUseIdentity, id["token_use"])
	assert.NotContains(t, id, "email")
	assert.NotContains(t, id, "role")

	resp, err = svc.Sign(p, "mobile")
	require.NoError(t, err)
	assert.Equal(t, "mobile", parseUnverified(t, resp.IDToken)["aud"])

	_, err = svc.Validate(resp.IDToken)
	assert.ErrorIs(t, err, auth.ErrTokenNotAccess)
}

func TestTokenService_SingleRoleIsString(t *testing.T) {
	clock := newFakeClock()
	svc := auth.NewTokenService(testSigningKey, "iss", "", nil).WithClock(clock.Now)
	acc := testAccount("bob")
	p := auth.BuildPrincipal(auth.ValidatedAccount{Account: acc, Roles: []string{"User"}}, nil)
	p.IssuedAt, p.ExpiresAt = clock.Now(), clock.Now().Add(time.Hour)

	resp, err := svc.Sign(p, "")
	require.NoError(t, err)
	assert.Equal(t, "User", parseUnverified(t, resp.AccessToken)["role"])

	claims, err := svc.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"User"}, claims.Roles())
}

func TestTokenService_Validate(t *testing.T) {
	clock := newFakeClock()
	svc := auth.NewTokenService(testSigningKey, "test-issuer", "", auth.NoopLogger()).WithClock(clock.Now)
	p, acc := signedPrincipal(t, clock, "openid", "profile")

	resp, err := svc.Sign(p, "")
	require.NoError(t, err)

	claims, err := svc.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID.String(), claims.Subject())
	assert.Equal(t, "alice", claims.Username())
	assert.Equal(t, "alice@example.com", claims.Email())
	assert.True(t, claims.HasRole("admin"))
	assert.Equal(t, []string{"openid", "profile"}, claims.Scopes())
	assert.True(t, p.ExpiresAt.Equal(claims.Expires()))
	assert.NotEmpty(t, claims.TokenID())
}

func TestTokenService_ValidateExpired(t *testing.T) {
	clock := newFakeClock()
	svc := auth.NewTokenService(testSigningKey, "test-issuer", "", auth.NoopLogger()).WithClock(clock.Now)
	p, _ := signedPrincipal(t, clock)

	resp, err := svc.Sign(p, "")
	require.NoError(t, err)

	clock.Advance(auth.TokenLifetime + time.Second)
	_, err = svc.Validate(resp.AccessToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
	assert.True(t, auth.IsTokenExpiredError(err))
}

func TestTokenService_ValidateRejects(t *testing.T) {
	clock := newFakeClock()
	svc := auth.NewTokenService(testSigningKey, "test-issuer", "", auth.NoopLogger()).WithClock(clock.Now)
	p, _ := signedPrincipal(t, clock)

	otherKey := auth.NewTokenService([]byte("another-signing-key-another-signing"), "test-issuer", "", auth.NoopLogger()).WithClock(clock.Now)
	foreign, err := otherKey.Sign(p, "")
	require.NoError(t, err)

	otherIssuer := auth.NewTokenService(testSigningKey, "someone-else", "", auth.NoopLogger()).WithClock(clock.Now)
	wrongIss, err := otherIssuer.Sign(p, "")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x", "token_use": "access", "iss": "test-issuer"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"garbage":      "not-a-token",
		"wrong key":    foreign.AccessToken,
		"wrong issuer": wrongIss.AccessToken,
		"alg none":     unsigned,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Validate(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrTokenMalformed)
			assert.True(t, auth.IsMalformedError(err))
		})
	}
}

func TestTokenService_SignRequiresSubject(t *testing.T) {
	svc := auth.NewTokenService(testSigningKey, "iss", "", auth.NoopLogger())
	_, err := svc.Sign(auth.Principal{}, "")
	assert.Error(t, err)
}

func TestTokenValidatorFunc(t *testing.T) {
	var nilFunc auth.TokenValidatorFunc
	_, err := nilFunc.Validate("x")
	assert.ErrorIs(t, err, auth.ErrTokenMalformed)

	want := &auth.TokenClaims{Name: "zoe"}
	fn := auth.TokenValidatorFunc(func(string) (auth.AuthClaims, error) { return want, nil })
	got, err := fn.Validate("x")
	require.NoError(t, err)
	assert.Equal(t, "zoe", got.Username())
}

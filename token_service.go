package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token use markers carried in the token_use claim.
const (
	TokenUseAccess   = "access"
	TokenUseIdentity = "id"
)

// ScopeOpenID enables identity token issuance.
const ScopeOpenID = "openid"

// TokenTypeBearer is the token_type of every access token.
const TokenTypeBearer = "Bearer"

// TokenResponse represents an OAuth token response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// TokenService signs principals and validates access tokens.
type TokenService interface {
	PrincipalSigner
	TokenValidator
}

// TokenServiceImpl implements the TokenService interface with HS256.
type TokenServiceImpl struct {
	signingKey    []byte
	issuer        string
	defaultClient string
	logger        Logger
	now           Clock
}

var _ TokenService = (*TokenServiceImpl)(nil)

// NewTokenService creates a new TokenService instance. defaultClient is
// the identity token audience when the request names no client.
func NewTokenService(signingKey []byte, issuer, defaultClient string, logger Logger) *TokenServiceImpl {
	return &TokenServiceImpl{
		signingKey:    signingKey,
		issuer:        issuer,
		defaultClient: defaultClient,
		logger:        normalizeLogger(logger),
		now:           time.Now,
	}
}

func (ts *TokenServiceImpl) WithClock(c Clock) *TokenServiceImpl {
	ts.now = normalizeClock(c)
	return ts
}

// Sign renders the principal's access token and, when the openid scope
// was granted, its identity token.
func (ts *TokenServiceImpl) Sign(p Principal, clientID string) (*TokenResponse, error) {
	if p.Subject == "" {
		return nil, errors.New("principal has no subject")
	}

	access := claimsMap(p.ClaimsFor(DestinationAccessToken))
	access["iss"] = ts.issuer
	access["iat"] = jwt.NewNumericDate(p.IssuedAt)
	access["exp"] = jwt.NewNumericDate(p.ExpiresAt)
	access["jti"] = uuid.NewString()
	access["token_use"] = TokenUseAccess
	if len(p.Scopes) > 0 {
		access["scope"] = strings.Join(p.Scopes, " ")
	}

	accessToken, err := ts.signClaims(access)
	if err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(p.ExpiresAt.Sub(p.IssuedAt).Seconds()),
		Scope:       strings.Join(p.Scopes, " "),
	}

	if p.HasScope(ScopeOpenID) {
		audience := clientID
		if audience == "" {
			audience = ts.defaultClient
		}

		identity := claimsMap(p.ClaimsFor(DestinationIdentityToken))
		identity["iss"] = ts.issuer
		identity["iat"] = jwt.NewNumericDate(p.IssuedAt)
		identity["exp"] = jwt.NewNumericDate(p.ExpiresAt)
		identity["jti"] = uuid.NewString()
		identity["token_use"] = TokenUseIdentity
		if audience != "" {
			identity["aud"] = audience
		}

		resp.IDToken, err = ts.signClaims(identity)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// signClaims signs claims using the configured signing key.
func (ts *TokenServiceImpl) signClaims(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// Validate parses and validates an access token string, returning
// structured claims. Identity tokens are rejected.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithIssuedAt(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.TokenUse != TokenUseAccess {
		return nil, ErrTokenNotAccess
	}

	return claims, nil
}

// claimsMap renders claims as JWT members. Repeated types become
// arrays in first occurrence order.
func claimsMap(claims []Claim) jwt.MapClaims {
	out := jwt.MapClaims{}
	for _, c := range claims {
		existing, ok := out[c.Type]
		switch {
		case !ok:
			out[c.Type] = c.Value
		case isStringSlice(existing):
			out[c.Type] = append(existing.([]string), c.Value)
		default:
			out[c.Type] = []string{existing.(string), c.Value}
		}
	}
	return out
}

func isStringSlice(v any) bool {
	_, ok := v.([]string)
	return ok
}

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// OAuth2 error registry codes used by the token, userinfo and
// introspection endpoints.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeServerError          = "server_error"
)

// Descriptions returned with grant and token errors. Unknown and
// disabled accounts share the same text so callers cannot probe for
// existing usernames.
const (
	DescriptionUnsupportedGrantType = "The specified grant type is not supported."
	DescriptionCannotSignIn         = "User does not exist or cannot sign in."
	DescriptionLockedOut            = "User is locked out."
	DescriptionInvalidCredentials   = "Invalid username or password."
	DescriptionServerError          = "The authorization server encountered an unexpected error."
	DescriptionMissingSubject       = "Token doesn't contain a subject claim."
	DescriptionAccountGone          = "The specified access token is bound to an account that no longer exists."
	DescriptionInvalidToken         = "The specified access token is invalid or has expired."
	DescriptionMissingToken         = "The access token is missing."
	DescriptionTokenExpired         = "The specified access token has expired."
	DescriptionTokenMalformed       = "The specified access token is malformed."
)

// GrantError is the typed failure produced by the credential validator,
// the token issuer and the bearer validation path. Code is always an
// OAuth2 registry code, Description is safe to show to callers.
type GrantError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	cause       error
}

func (e *GrantError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *GrantError) Unwrap() error {
	return e.cause
}

// Is matches grant errors by code so errors.Is(err, ErrInvalidGrant)
// holds for every invalid_grant regardless of description.
func (e *GrantError) Is(target error) bool {
	t, ok := target.(*GrantError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus returns the status code the error is rendered with.
func (e *GrantError) HTTPStatus() int {
	switch e.Code {
	case ErrorCodeInvalidToken, ErrorCodeInvalidClient:
		return http.StatusUnauthorized
	case ErrorCodeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// NewGrantError builds a GrantError with the given code and description.
func NewGrantError(code, description string) *GrantError {
	return &GrantError{Code: code, Description: description}
}

// WithCause returns a copy of the error carrying cause for logging.
func (e *GrantError) WithCause(cause error) *GrantError {
	clone := *e
	clone.cause = cause
	return &clone
}

// Sentinel grant errors, compare with errors.Is.
var (
	ErrUnsupportedGrantType = NewGrantError(ErrorCodeUnsupportedGrantType, DescriptionUnsupportedGrantType)
	ErrInvalidGrant         = NewGrantError(ErrorCodeInvalidGrant, DescriptionCannotSignIn)
	ErrInvalidToken         = NewGrantError(ErrorCodeInvalidToken, DescriptionInvalidToken)
	ErrInvalidClient        = NewGrantError(ErrorCodeInvalidClient, "Client authentication failed.")
	ErrServerError          = NewGrantError(ErrorCodeServerError, DescriptionServerError)
)

// Text codes carried by the taxonomy errors.
const (
	TextCodeAccountNotFound  = "account_not_found"
	TextCodeDuplicateAccount = "account_exists"
	TextCodePasswordPolicy   = "password_policy"
	TextCodeInvalidAccount   = "account_invalid"
	TextCodeEmptyValue       = "empty_value"
	TextCodePasswordMismatch = "password_mismatch"
	TextCodeClientExists     = "client_exists"
	TextCodeClientNotFound   = "client_not_found"
	TextCodeInvalidClientID  = "client_id_invalid"
	TextCodeCacheMiss        = "cache_miss"
	TextCodeTokenExpired     = "token_expired"
	TextCodeTokenMalformed   = "token_malformed"
	TextCodeTokenNotAccess   = "token_not_access"
)

// Identity store errors
var (
	ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeAccountNotFound).
		WithCode(goerrors.CodeNotFound)
	ErrDuplicateAccount = goerrors.New("account already exists", goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateAccount).
		WithCode(goerrors.CodeConflict)
	ErrPasswordPolicy = goerrors.New("password does not meet policy", goerrors.CategoryValidation).
		WithTextCode(TextCodePasswordPolicy).
		WithCode(goerrors.CodeBadRequest)
	ErrInvalidAccount = goerrors.New("invalid account data", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidAccount).
		WithCode(goerrors.CodeBadRequest)
	ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
		WithTextCode(TextCodeEmptyValue).
		WithCode(goerrors.CodeBadRequest)

	ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
		WithTextCode(TextCodePasswordMismatch).
		WithCode(goerrors.CodeUnauthorized)
)

// Client registry errors
var (
	ErrClientExists = goerrors.New("client already exists", goerrors.CategoryConflict).
		WithTextCode(TextCodeClientExists).
		WithCode(goerrors.CodeConflict)
	ErrClientNotFound = goerrors.New("client not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeClientNotFound).
		WithCode(goerrors.CodeNotFound)
	ErrInvalidClientID = goerrors.New("invalid client id", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidClientID).
		WithCode(goerrors.CodeBadRequest)
)

// ErrCacheMiss is returned by Cache.Get for absent or expired keys.
var ErrCacheMiss = goerrors.New("cache entry not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeCacheMiss)

// Token errors
var (
	ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
		WithTextCode(TextCodeTokenExpired).
		WithCode(goerrors.CodeUnauthorized)
	ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
		WithTextCode(TextCodeTokenMalformed).
		WithCode(goerrors.CodeUnauthorized)
	ErrTokenNotAccess = goerrors.New("token is not an access token", goerrors.CategoryAuth).
		WithTextCode(TextCodeTokenNotAccess).
		WithCode(goerrors.CodeUnauthorized)
)

// HTTPStatus maps an error to a transport status: grant errors by their
// OAuth code, taxonomy errors by their code or category.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var grantErr *GrantError
	if errors.As(err, &grantErr) {
		return grantErr.HTTPStatus()
	}

	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}
	if richErr.Code != 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTokenExpired) || strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTokenMalformed) ||
		strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

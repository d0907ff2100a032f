package auth

import (
	"context"
	"errors"
)

// GrantTypePassword is the only grant type accepted by the token
// endpoint.
const GrantTypePassword = "password"

// GrantRequest is an inbound token request.
type GrantRequest struct {
	GrantType string
	Username  string
	Password  string
	Scopes    []string
	ClientID  string
}

// CredentialStore is the part of the IdentityStore the validator uses.
type CredentialStore interface {
	AccountFinder
	SignInChecker
	LockoutTracker
	RoleReader
}

// CredentialValidator checks a password grant against the store and
// applies the lockout policy.
type CredentialValidator struct {
	store  CredentialStore
	logger Logger
}

// NewCredentialValidator creates a validator over store.
func NewCredentialValidator(store CredentialStore) *CredentialValidator {
	return &CredentialValidator{
		store:  store,
		logger: defLogger{},
	}
}

func (v *CredentialValidator) WithLogger(l Logger) *CredentialValidator {
	v.logger = normalizeLogger(l)
	return v
}

// Validate runs the grant checks in order and stops at the first
// failure. Unknown and disabled accounts get the same description.
func (v *CredentialValidator) Validate(ctx context.Context, req GrantRequest) (*ValidatedAccount, *GrantError) {
	return v.validate(ctx, req, func(GrantState) {})
}

// validate calls advance each time a check passes.
func (v *CredentialValidator) validate(ctx context.Context, req GrantRequest, advance func(GrantState)) (*ValidatedAccount, *GrantError) {
	if req.GrantType != GrantTypePassword {
		return nil, ErrUnsupportedGrantType
	}
	advance(StateGrantTypeChecked)

	account, err := v.store.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, NewGrantError(ErrorCodeInvalidGrant, DescriptionCannotSignIn)
		}
		return nil, v.fault("find account", err)
	}

	ok, err := v.store.CanSignIn(ctx, account)
	if err != nil {
		return nil, v.fault("can sign in", err)
	}
	if !ok {
		return nil, NewGrantError(ErrorCodeInvalidGrant, DescriptionCannotSignIn)
	}
	advance(StateAccountResolved)

	locked, err := v.store.IsLockedOut(ctx, account)
	if err != nil {
		return nil, v.fault("lockout check", err)
	}
	if locked {
		return nil, NewGrantError(ErrorCodeInvalidGrant, DescriptionLockedOut)
	}

	match, err := v.store.VerifyPassword(ctx, account, req.Password)
	if err != nil {
		return nil, v.fault("verify password", err)
	}

	if !match {
		if v.store.SupportsLockout(account) {
			if err := v.store.IncrementFailureCount(ctx, account); err != nil {
				return nil, v.fault("increment failure count", err)
			}

			locked, err := v.store.IsLockedOut(ctx, account)
			if err != nil {
				return nil, v.fault("lockout check", err)
			}
			if locked {
				return nil, NewGrantError(ErrorCodeInvalidGrant, DescriptionLockedOut)
			}
		}
		return nil, NewGrantError(ErrorCodeInvalidGrant, DescriptionInvalidCredentials)
	}

	if v.store.SupportsLockout(account) {
		if err := v.store.ResetFailureCount(ctx, account); err != nil {
			return nil, v.fault("reset failure count", err)
		}
	}

	advance(StatePasswordVerified)

	roles, err := v.store.GetRoles(ctx, account)
	if err != nil {
		return nil, v.fault("get roles", err)
	}

	return &ValidatedAccount{Account: account, Roles: roles}, nil
}

func (v *CredentialValidator) fault(step string, err error) *GrantError {
	v.logger.Error("credential validation failed", "step", step, "error", err)
	return ErrServerError.WithCause(err)
}

package auth

import (
	"context"
	"time"
)

// GrantState is the position of a token request in the grant flow.
type GrantState int

const (
	StateReceivedRequest GrantState = iota
	StateGrantTypeChecked
	StateAccountResolved
	StatePasswordVerified
	StatePrincipalIssued
	StateRejected
)

func (s GrantState) String() string {
	switch s {
	case StateReceivedRequest:
		return "received_request"
	case StateGrantTypeChecked:
		return "grant_type_checked"
	case StateAccountResolved:
		return "account_resolved"
	case StatePasswordVerified:
		return "password_verified"
	case StatePrincipalIssued:
		return "principal_issued"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s GrantState) Terminal() bool {
	return s == StatePrincipalIssued || s == StateRejected
}

// TokenLifetime is the fixed lifetime of issued principals.
const TokenLifetime = time.Hour

// TokenResult is the outcome of Issue. Exactly one of Principal and
// Error is set.
type TokenResult struct {
	Principal *Principal
	Error     *GrantError
	State     GrantState
	// RejectedAt is the last state reached before rejection.
	RejectedAt GrantState
}

// OK reports whether a principal was issued.
func (r TokenResult) OK() bool {
	return r.Principal != nil && r.Error == nil
}

// PrincipalSigner turns a principal into a token response.
type PrincipalSigner interface {
	Sign(principal Principal, clientID string) (*TokenResponse, error)
}

// TokenIssuer drives the password grant from request to signed
// principal. There are no retries and no partial issuance.
type TokenIssuer struct {
	validator *CredentialValidator
	signer    PrincipalSigner
	activity  ActivitySink
	logger    Logger
	now       Clock
}

// NewTokenIssuer creates an issuer. signer may be nil when only Issue
// is used.
func NewTokenIssuer(store CredentialStore, signer PrincipalSigner) *TokenIssuer {
	return &TokenIssuer{
		validator: NewCredentialValidator(store),
		signer:    signer,
		activity:  noopActivitySink{},
		logger:    defLogger{},
		now:       time.Now,
	}
}

func (t *TokenIssuer) WithLogger(l Logger) *TokenIssuer {
	t.logger = normalizeLogger(l)
	t.validator.WithLogger(t.logger)
	return t
}

func (t *TokenIssuer) WithActivitySink(s ActivitySink) *TokenIssuer {
	t.activity = normalizeActivitySink(s)
	return t
}

func (t *TokenIssuer) WithClock(c Clock) *TokenIssuer {
	t.now = normalizeClock(c)
	return t
}

// Issue runs the grant flow and returns either a principal or a grant
// error together with the terminal state.
func (t *TokenIssuer) Issue(ctx context.Context, req GrantRequest) TokenResult {
	state := StateReceivedRequest
	advance := func(next GrantState) {
		t.logger.Debug("grant transition", "from", state.String(), "to", next.String())
		state = next
	}

	validated, gerr := t.validator.validate(ctx, req, advance)
	if gerr != nil {
		t.recordFailure(ctx, req, gerr, state)
		return TokenResult{Error: gerr, State: StateRejected, RejectedAt: state}
	}

	principal := BuildPrincipal(*validated, req.Scopes)
	principal.IssuedAt = t.now().UTC().Truncate(time.Second)
	principal.ExpiresAt = principal.IssuedAt.Add(TokenLifetime)

	if principal.Subject == "" {
		gerr := ErrServerError.WithCause(ErrInvalidAccount)
		t.recordFailure(ctx, req, gerr, state)
		return TokenResult{Error: gerr, State: StateRejected, RejectedAt: state}
	}
	advance(StatePrincipalIssued)

	recordActivity(ctx, t.activity, t.logger, ActivityEvent{
		EventType:  ActivityEventGrantSuccess,
		UserID:     principal.Subject,
		Username:   validated.Account.Username,
		ClientID:   req.ClientID,
		OccurredAt: principal.IssuedAt,
		Metadata:   map[string]any{"scopes": principal.Scopes},
	})

	return TokenResult{Principal: &principal, State: StatePrincipalIssued}
}

// Exchange issues and signs a principal for req.
func (t *TokenIssuer) Exchange(ctx context.Context, req GrantRequest) (*TokenResponse, *GrantError) {
	result := t.Issue(ctx, req)
	if !result.OK() {
		return nil, result.Error
	}
	if t.signer == nil {
		return nil, ErrServerError
	}

	resp, err := t.signer.Sign(*result.Principal, req.ClientID)
	if err != nil {
		t.logger.Error("failed to sign principal", "sub", result.Principal.Subject, "error", err)
		return nil, ErrServerError.WithCause(err)
	}
	return resp, nil
}

func (t *TokenIssuer) recordFailure(ctx context.Context, req GrantRequest, gerr *GrantError, reached GrantState) {
	t.logger.Debug("grant rejected",
		"username", req.Username,
		"error", gerr.Code,
		"description", gerr.Description,
		"state", reached.String(),
	)
	recordActivity(ctx, t.activity, t.logger, ActivityEvent{
		EventType:  ActivityEventGrantFailure,
		Username:   req.Username,
		ClientID:   req.ClientID,
		OccurredAt: t.now().UTC(),
		Metadata: map[string]any{
			"error":       gerr.Code,
			"description": gerr.Description,
		},
	})
}

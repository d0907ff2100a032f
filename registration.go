package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/hashid/pkg/hashid"
)

// Registration outcome messages.
const (
	MessageUsernameTaken  = "Username already taken"
	MessageEmailTaken     = "Email already taken"
	MessageInvalidData    = "Invalid data provided"
	MessageUserRegistered = "User registered successfully"
)

// RegistrationCandidate is the data submitted to register an account.
type RegistrationCandidate struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// Outcome is the registration result shown to the caller.
type Outcome struct {
	Flag    bool   `json:"flag"`
	Message string `json:"message"`
}

// RegistrationStore is the part of the IdentityStore registration uses.
type RegistrationStore interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, account *Account, password string) error
}

// RegistrationService creates accounts after checking username and
// email are free. The store's unique indexes close the window between
// the checks and the insert.
type RegistrationService struct {
	store            RegistrationStore
	deterministicIDs bool
	activity         ActivitySink
	logger           Logger
}

// NewRegistrationService creates the service over store.
func NewRegistrationService(store RegistrationStore) *RegistrationService {
	return &RegistrationService{
		store:    store,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithDeterministicIDs derives account ids from the email address.
func (r *RegistrationService) WithDeterministicIDs(enabled bool) *RegistrationService {
	r.deterministicIDs = enabled
	return r
}

func (r *RegistrationService) WithActivitySink(s ActivitySink) *RegistrationService {
	r.activity = normalizeActivitySink(s)
	return r
}

func (r *RegistrationService) WithLogger(l Logger) *RegistrationService {
	r.logger = normalizeLogger(l)
	return r
}

// Register checks username then email uniqueness and creates the
// account. Rejections are reported through Outcome, store faults as
// errors.
func (r *RegistrationService) Register(ctx context.Context, c RegistrationCandidate) (Outcome, error) {
	taken, err := r.exists(ctx, r.store.FindByUsername, c.UserName)
	if err != nil {
		return Outcome{}, err
	}
	if taken {
		return r.reject(ctx, c, MessageUsernameTaken), nil
	}

	taken, err = r.exists(ctx, r.store.FindByEmail, c.Email)
	if err != nil {
		return Outcome{}, err
	}
	if taken {
		return r.reject(ctx, c, MessageEmailTaken), nil
	}

	account := &Account{
		Username: getUsername(c.UserName, c.Email),
		Email:    strings.TrimSpace(c.Email),
		FullName: strings.TrimSpace(c.FullName),
	}
	if r.deterministicIDs {
		if id, err := hashid.NewUUID(NormalizeKey(c.Email)); err == nil {
			account.ID = id
		}
	}

	if err := r.store.Create(ctx, account, c.Password); err != nil {
		if isRejectedCreate(err) {
			r.logger.Debug("account creation rejected", "username", c.UserName, "error", err)
			return r.reject(ctx, c, MessageInvalidData), nil
		}
		return Outcome{}, err
	}

	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		UserID:    account.ID.String(),
		Username:  account.Username,
	})

	return Outcome{Flag: true, Message: MessageUserRegistered}, nil
}

func (r *RegistrationService) exists(ctx context.Context, find func(context.Context, string) (*Account, error), value string) (bool, error) {
	if strings.TrimSpace(value) == "" {
		return false, nil
	}
	_, err := find(ctx, value)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrAccountNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (r *RegistrationService) reject(ctx context.Context, c RegistrationCandidate, message string) Outcome {
	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventRegistrationRejected,
		Username:  c.UserName,
		Metadata:  map[string]any{"reason": message},
	})
	return Outcome{Flag: false, Message: message}
}

func isRejectedCreate(err error) bool {
	return errors.Is(err, ErrDuplicateAccount) ||
		errors.Is(err, ErrPasswordPolicy) ||
		errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrNoEmptyString)
}

func getUsername(username, email string) string {
	username = strings.TrimSpace(username)
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(strings.TrimSpace(email), "@")[0]
	}

	return username
}

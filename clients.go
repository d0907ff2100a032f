package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

// Client permission names.
const (
	PermissionEndpointToken         = "ept:token"
	PermissionEndpointIntrospection = "ept:introspection"
	PermissionGrantPassword         = "gt:password"
	PermissionGrantRefreshToken     = "gt:refresh_token"
	PermissionScopePrefix           = "scp:"
)

// DefaultClientPermissions are granted to clients created without an
// explicit permission list.
func DefaultClientPermissions() []string {
	return []string{
		PermissionEndpointToken,
		PermissionEndpointIntrospection,
		PermissionGrantPassword,
		PermissionGrantRefreshToken,
		PermissionScopePrefix + "permissions",
		PermissionScopePrefix + "role",
		PermissionScopePrefix + "offline_access",
		PermissionScopePrefix + "email",
		PermissionScopePrefix + "profile",
	}
}

// ClientDescriptor describes a client to create. ClientSecret is clear
// text and hashed before storage.
type ClientDescriptor struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	DisplayName  string   `json:"displayName,omitempty"`
	RedirectURI  string   `json:"redirectUri,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
}

// Validate checks the descriptor at the boundary.
func (d ClientDescriptor) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ClientID, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&d.DisplayName, validation.RuneLength(0, 200)),
		validation.Field(&d.RedirectURI, is.URL),
	)
}

// ClientSummary is the listing view of a client.
type ClientSummary struct {
	ClientID    string    `json:"clientId"`
	DisplayName string    `json:"displayName,omitempty"`
	RedirectURI string    `json:"redirectUri,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ClientRegistry manages OAuth client applications.
type ClientRegistry struct {
	store    ClientStore
	hasher   PasswordHasher
	activity ActivitySink
	logger   Logger
	now      Clock
}

func NewClientRegistry(store ClientStore, hasher PasswordHasher) *ClientRegistry {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &ClientRegistry{
		store:    store,
		hasher:   hasher,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (r *ClientRegistry) WithActivitySink(s ActivitySink) *ClientRegistry {
	r.activity = normalizeActivitySink(s)
	return r
}

func (r *ClientRegistry) WithLogger(l Logger) *ClientRegistry {
	r.logger = normalizeLogger(l)
	return r
}

func (r *ClientRegistry) WithClock(c Clock) *ClientRegistry {
	r.now = normalizeClock(c)
	return r
}

func (r *ClientRegistry) List(ctx context.Context) ([]ClientSummary, error) {
	apps, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ClientSummary, 0, len(apps))
	for _, app := range apps {
		out = append(out, summarize(app))
	}
	return out, nil
}

// Create registers a new client, ErrClientExists when the id is taken.
func (r *ClientRegistry) Create(ctx context.Context, d ClientDescriptor) (ClientSummary, error) {
	d.ClientID = strings.TrimSpace(d.ClientID)
	if err := d.Validate(); err != nil {
		return ClientSummary{}, fmt.Errorf("%w: %v", ErrInvalidClientID, err)
	}

	if _, err := r.store.FindByClientID(ctx, d.ClientID); err == nil {
		return ClientSummary{}, ErrClientExists
	} else if !errors.Is(err, ErrClientNotFound) {
		return ClientSummary{}, err
	}

	app := &Application{
		ID:          uuid.New(),
		ClientID:    d.ClientID,
		DisplayName: d.DisplayName,
		RedirectURI: d.RedirectURI,
		Permissions: d.Permissions,
		CreatedAt:   r.now().UTC(),
	}
	if len(app.Permissions) == 0 {
		app.Permissions = DefaultClientPermissions()
	}
	if d.ClientSecret != "" {
		hash, err := r.hasher.HashPassword(d.ClientSecret)
		if err != nil {
			return ClientSummary{}, fmt.Errorf("hash client secret: %w", err)
		}
		app.ClientSecretHash = hash
	}

	if err := r.store.Create(ctx, app); err != nil {
		return ClientSummary{}, err
	}

	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventClientCreated,
		ClientID:  app.ClientID,
	})
	return summarize(app), nil
}

// Delete removes a client. A blank id is ErrInvalidClientID, an unknown
// one ErrClientNotFound.
func (r *ClientRegistry) Delete(ctx context.Context, clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ErrInvalidClientID
	}
	if err := r.store.Delete(ctx, clientID); err != nil {
		return err
	}

	recordActivity(ctx, r.activity, r.logger, ActivityEvent{
		EventType: ActivityEventClientDeleted,
		ClientID:  clientID,
	})
	return nil
}

// EnsureClient creates d when no client with its id exists. It reports
// whether a client was created.
func (r *ClientRegistry) EnsureClient(ctx context.Context, d ClientDescriptor) (bool, error) {
	_, err := r.store.FindByClientID(ctx, d.ClientID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrClientNotFound):
		return false, err
	}

	if _, err := r.Create(ctx, d); err != nil {
		if errors.Is(err, ErrClientExists) {
			return false, nil
		}
		return false, err
	}
	r.logger.Info("bootstrapped client", "client_id", d.ClientID)
	return true, nil
}

// Authenticate checks client credentials. Clients without a stored
// secret are public and authenticate by id alone.
func (r *ClientRegistry) Authenticate(ctx context.Context, clientID, secret string) (*Application, error) {
	app, err := r.store.FindByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}

	if app.ClientSecretHash == "" {
		return app, nil
	}
	if err := r.hasher.ComparePasswordAndHash(secret, app.ClientSecretHash); err != nil {
		return nil, ErrInvalidClient
	}
	return app, nil
}

// HasPermission reports whether app was granted permission.
func (a *Application) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func summarize(app *Application) ClientSummary {
	perms := app.Permissions
	if perms == nil {
		perms = []string{}
	}
	return ClientSummary{
		ClientID:    app.ClientID,
		DisplayName: app.DisplayName,
		RedirectURI: app.RedirectURI,
		Permissions: perms,
		CreatedAt:   app.CreatedAt,
	}
}

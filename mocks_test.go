package auth_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-auth-server"
	"github.com/goliatone/go-auth-server/persistence"
)

// MockCredentialStore implements auth.CredentialStore
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	args := m.Called(ctx, username)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}

func (m *MockCredentialStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}

func (m *MockCredentialStore) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	args := m.Called(ctx, id)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}

func (m *MockCredentialStore) CanSignIn(ctx context.Context, account *auth.Account) (bool, error) {
	args := m.Called(ctx, account)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) VerifyPassword(ctx context.Context, account *auth.Account, password string) (bool, error) {
	args := m.Called(ctx, account, password)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) SupportsLockout(account *auth.Account) bool {
	args := m.Called(account)
	return args.Bool(0)
}

func (m *MockCredentialStore) IsLockedOut(ctx context.Context, account *auth.Account) (bool, error) {
	args := m.Called(ctx, account)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialStore) IncrementFailureCount(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockCredentialStore) ResetFailureCount(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockCredentialStore) GetRoles(ctx context.Context, account *auth.Account) ([]string, error) {
	args := m.Called(ctx, account)
	roles, _ := args.Get(0).([]string)
	return roles, args.Error(1)
}

// MockRegistrationStore implements auth.RegistrationStore
type MockRegistrationStore struct {
	mock.Mock
}

func (m *MockRegistrationStore) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	args := m.Called(ctx, username)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}

func (m *MockRegistrationStore) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}

func (m *MockRegistrationStore) Create(ctx context.Context, account *auth.Account, password string) error {
	args := m.Called(ctx, account, password)
	return args.Error(0)
}

// MockClientStore implements auth.ClientStore
type MockClientStore struct {
	mock.Mock
}

func (m *MockClientStore) List(ctx context.Context) ([]*auth.Application, error) {
	args := m.Called(ctx)
	apps, _ := args.Get(0).([]*auth.Application)
	return apps, args.Error(1)
}

func (m *MockClientStore) FindByClientID(ctx context.Context, clientID string) (*auth.Application, error) {
	args := m.Called(ctx, clientID)
	app, _ := args.Get(0).(*auth.Application)
	return app, args.Error(1)
}

func (m *MockClientStore) Create(ctx context.Context, app *auth.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockClientStore) Delete(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

// MockSigner implements auth.PrincipalSigner
type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) Sign(p auth.Principal, clientID string) (*auth.TokenResponse, error) {
	args := m.Called(p, clientID)
	resp, _ := args.Get(0).(*auth.TokenResponse)
	return resp, args.Error(1)
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, e auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testAccount(username string) *auth.Account {
	return (&auth.Account{
		ID:             uuid.New(),
		Username:       username,
		Email:          username + "@example.com",
		FullName:       "Test " + username,
		LockoutEnabled: true,
	}).Normalize()
}

// fastHasher keeps bcrypt tests quick.
var fastHasher = auth.NewBcryptHasher(4)

// newTestDB opens a migrated in-memory sqlite database private to t.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", filepath.Base(t.Name())+uuid.NewString())
	db, err := persistence.Open(context.Background(), persistence.Options{
		Driver: persistence.DriverSQLite,
		DSN:    dsn,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, persistence.Migrate(context.Background(), db))
	return db
}

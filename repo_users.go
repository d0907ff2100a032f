package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

// Users is the bun backed IdentityStore over the users, roles and
// user_roles tables.
type Users struct {
	db                    *bun.DB
	hasher                PasswordHasher
	lockout               LockoutPolicy
	passwords             PasswordPolicy
	requireConfirmedEmail bool
	now                   Clock
	logger                Logger
}

var _ IdentityStore = (*Users)(nil)

type UsersOption func(*Users)

// NewUsersRepository creates the store. Defaults: bcrypt at the package
// cost, DefaultLockoutPolicy and DefaultPasswordPolicy.
func NewUsersRepository(db *bun.DB, opts ...UsersOption) *Users {
	u := &Users{
		db:        db,
		hasher:    NewBcryptHasher(0),
		lockout:   DefaultLockoutPolicy(),
		passwords: DefaultPasswordPolicy(),
		now:       normalizeClock(nil),
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

func WithPasswordHasher(h PasswordHasher) UsersOption {
	return func(u *Users) {
		if h != nil {
			u.hasher = h
		}
	}
}

func WithLockoutPolicy(p LockoutPolicy) UsersOption {
	return func(u *Users) {
		u.lockout = p
	}
}

func WithPasswordPolicy(p PasswordPolicy) UsersOption {
	return func(u *Users) {
		u.passwords = p
	}
}

// WithRequireConfirmedEmail rejects sign in for accounts whose email
// has not been confirmed.
func WithRequireConfirmedEmail(required bool) UsersOption {
	return func(u *Users) {
		u.requireConfirmedEmail = required
	}
}

func WithUsersClock(c Clock) UsersOption {
	return func(u *Users) {
		u.now = normalizeClock(c)
	}
}

func WithUsersLogger(l Logger) UsersOption {
	return func(u *Users) {
		u.logger = normalizeLogger(l)
	}
}

func (u *Users) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return u.findBy(ctx, "normalized_username", NormalizeKey(username))
}

func (u *Users) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return u.findBy(ctx, "normalized_email", NormalizeKey(email))
}

func (u *Users) FindByID(ctx context.Context, id string) (*Account, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, ErrAccountNotFound
	}
	return u.findBy(ctx, "id", uid)
}

func (u *Users) findBy(ctx context.Context, column string, value any) (*Account, error) {
	if s, ok := value.(string); ok && s == "" {
		return nil, ErrAccountNotFound
	}

	record := &Account{}
	err := u.db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account by %s: %w", column, err)
	}
	return record, nil
}

func (u *Users) CanSignIn(_ context.Context, account *Account) (bool, error) {
	if account == nil || !account.IsActive() {
		return false, nil
	}
	if u.requireConfirmedEmail && !account.EmailConfirmed {
		return false, nil
	}
	return true, nil
}

func (u *Users) VerifyPassword(_ context.Context, account *Account, password string) (bool, error) {
	if account == nil || account.PasswordHash == "" {
		return false, nil
	}
	if err := u.hasher.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (u *Users) SupportsLockout(account *Account) bool {
	return u.lockout.Enabled && account != nil && account.LockoutEnabled
}

func (u *Users) IsLockedOut(_ context.Context, account *Account) (bool, error) {
	if !u.SupportsLockout(account) {
		return false, nil
	}
	_, locked := LockedUntil(account, u.now())
	return locked, nil
}

// IncrementFailureCount records a failed attempt against the stored
// counter and starts a lockout when the policy threshold is reached.
// The increment is a single UPDATE so concurrent failures are all
// counted. account is updated in place with the stored values.
func (u *Users) IncrementFailureCount(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrAccountNotFound
	}

	return u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := u.now()
		fresh := &Account{ID: account.ID}
		err := tx.NewUpdate().
			Model(fresh).
			Set("access_failed_count = access_failed_count + 1").
			Set("updated_at = ?", now).
			WherePK().
			Returning("*").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}

		if u.SupportsLockout(fresh) && fresh.AccessFailedCount >= u.lockout.MaxFailedAttempts {
			end := now.Add(u.lockout.Duration)
			_, err = tx.NewUpdate().
				Model((*Account)(nil)).
				Set("access_failed_count = 0").
				Set("lockout_end = ?", end).
				Where("id = ?", fresh.ID).
				Exec(ctx)
			if err != nil {
				return err
			}
			fresh.AccessFailedCount = 0
			fresh.LockoutEnd = &end
			u.logger.Warn("account locked out", "user_id", fresh.ID.String(), "until", end)
		}

		account.AccessFailedCount = fresh.AccessFailedCount
		account.LockoutEnd = fresh.LockoutEnd
		account.UpdatedAt = fresh.UpdatedAt
		return nil
	})
}

func (u *Users) ResetFailureCount(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrAccountNotFound
	}

	now := u.now()
	_, err := u.db.NewUpdate().
		Model((*Account)(nil)).
		Set("access_failed_count = 0").
		Set("updated_at = ?", now).
		Where("id = ?", account.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	account.AccessFailedCount = 0
	account.UpdatedAt = now
	return nil
}

// GetRoles returns the account's role names ordered by name.
func (u *Users) GetRoles(ctx context.Context, account *Account) ([]string, error) {
	if account == nil {
		return nil, ErrAccountNotFound
	}

	names := make([]string, 0)
	err := u.db.NewSelect().
		Model((*Role)(nil)).
		Column("rol.name").
		Join("JOIN user_roles AS urol ON urol.role_id = rol.id").
		Where("urol.user_id = ?", account.ID).
		OrderExpr("rol.name ASC").
		Scan(ctx, &names)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return names, nil
}

// AddToRole assigns role to account, creating the role on first use.
func (u *Users) AddToRole(ctx context.Context, account *Account, role string) error {
	if account == nil {
		return ErrAccountNotFound
	}
	normalized := NormalizeKey(role)
	if normalized == "" {
		return ErrNoEmptyString
	}

	return u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		candidate := &Role{
			ID:             uuid.New(),
			Name:           strings.TrimSpace(role),
			NormalizedName: normalized,
		}
		if _, err := tx.NewInsert().Model(candidate).On("CONFLICT (normalized_name) DO NOTHING").Exec(ctx); err != nil {
			return err
		}

		stored := &Role{}
		if err := tx.NewSelect().Model(stored).Where("?TableAlias.normalized_name = ?", normalized).Limit(1).Scan(ctx); err != nil {
			return err
		}

		link := &AccountRole{UserID: account.ID, RoleID: stored.ID}
		_, err := tx.NewInsert().Model(link).On("CONFLICT DO NOTHING").Exec(ctx)
		return err
	})
}

// Create validates, hashes the password and inserts account. Uniqueness
// is enforced by the normalized_username and normalized_email indexes.
func (u *Users) Create(ctx context.Context, account *Account, password string) error {
	if account == nil {
		return ErrInvalidAccount
	}
	account.Normalize()

	err := validation.ValidateStruct(account,
		validation.Field(&account.Username, validation.Required, validation.RuneLength(1, 256)),
		validation.Field(&account.Email, validation.Required, is.Email),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}

	if err := u.passwords.Check(password); err != nil {
		return err
	}

	hash, err := u.hasher.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := u.now()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.PasswordHash = hash
	account.LockoutEnabled = u.lockout.Enabled
	account.AccessFailedCount = 0
	account.LockoutEnd = nil
	account.CreatedAt = now
	account.UpdatedAt = now

	if _, err := u.db.NewInsert().Model(account).Exec(ctx); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrDuplicateAccount, err)
		}
		return err
	}
	return nil
}

func (u *Users) List(ctx context.Context) ([]*Account, error) {
	records := make([]*Account, 0)
	err := u.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.normalized_username ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

// IsUniqueViolation detects unique constraint failures from either
// PostgreSQL or SQLite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// DefaultUserInfoTTL bounds how stale a userinfo snapshot may be.
const DefaultUserInfoTTL = 60 * time.Minute

// UserInfoKeyPrefix prefixes every userinfo cache key.
const UserInfoKeyPrefix = "UserInfo-"

// UserInfoStore is what the cache reads on a miss.
type UserInfoStore interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	RoleReader
}

// UserInfoCache serves userinfo snapshots keyed by subject. Misses are
// not coordinated, concurrent misses for one subject both load and the
// last write wins.
type UserInfoCache struct {
	store  UserInfoStore
	cache  CacheStore
	ttl    time.Duration
	logger Logger
}

// NewUserInfoCache creates a read-through cache over store.
func NewUserInfoCache(store UserInfoStore, cache CacheStore) *UserInfoCache {
	if cache == nil {
		cache = NewInMemoryCache(0)
	}
	return &UserInfoCache{
		store:  store,
		cache:  cache,
		ttl:    DefaultUserInfoTTL,
		logger: defLogger{},
	}
}

func (u *UserInfoCache) WithTTL(ttl time.Duration) *UserInfoCache {
	if ttl > 0 {
		u.ttl = ttl
	}
	return u
}

func (u *UserInfoCache) WithLogger(l Logger) *UserInfoCache {
	u.logger = normalizeLogger(l)
	return u
}

// UserInfoKey is the cache key for subject.
func UserInfoKey(subject string) string {
	return UserInfoKeyPrefix + subject
}

// Get returns the userinfo claims for subject. An unknown subject is
// reported as an invalid_token GrantError.
func (u *UserInfoCache) Get(ctx context.Context, subject string) (map[string]any, error) {
	key := UserInfoKey(subject)

	raw, err := u.cache.Get(ctx, key)
	switch {
	case err == nil:
		snapshot := map[string]any{}
		if err := json.Unmarshal(raw, &snapshot); err == nil {
			return snapshot, nil
		}
		u.logger.Warn("discarding unreadable userinfo snapshot", "key", key)
	case !errors.Is(err, ErrCacheMiss):
		u.logger.Warn("userinfo cache read failed", "key", key, "error", err)
	}

	account, err := u.store.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, NewGrantError(ErrorCodeInvalidToken, DescriptionAccountGone)
		}
		return nil, err
	}

	roles, err := u.store.GetRoles(ctx, account)
	if err != nil {
		return nil, err
	}

	snapshot := BuildUserInfo(account, roles)
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	if err := u.cache.Set(ctx, key, encoded, u.ttl); err != nil {
		u.logger.Warn("userinfo cache write failed", "key", key, "error", err)
	}

	// hand back the decoded form so hits and misses look identical
	out := map[string]any{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Invalidate drops the cached snapshot for subject.
func (u *UserInfoCache) Invalidate(ctx context.Context, subject string) error {
	return u.cache.Delete(ctx, UserInfoKey(subject))
}

// BuildUserInfo is the flat userinfo projection. Only the first role is
// included.
func BuildUserInfo(account *Account, roles []string) map[string]any {
	info := map[string]any{
		ClaimSubject:     account.ID.String(),
		ClaimEmail:       account.Email,
		"email_verified": account.EmailConfirmed,
		"username":       account.Username,
	}
	if role, ok := FirstRole(roles); ok {
		info[ClaimRole] = role
	}
	return info
}

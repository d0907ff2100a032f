package auth

import "context"

// UserSummary is the listing view of an account.
type UserSummary struct {
	ID       string   `json:"id"`
	FullName string   `json:"fullName"`
	UserName string   `json:"userName"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// DirectoryStore lists accounts and their roles.
type DirectoryStore interface {
	AccountLister
	RoleReader
}

// UserDirectory lists registered accounts.
type UserDirectory struct {
	store DirectoryStore
}

func NewUserDirectory(store DirectoryStore) *UserDirectory {
	return &UserDirectory{store: store}
}

// ListUsers returns every account with its roles.
func (d *UserDirectory) ListUsers(ctx context.Context) ([]UserSummary, error) {
	accounts, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]UserSummary, 0, len(accounts))
	for _, acc := range accounts {
		roles, err := d.store.GetRoles(ctx, acc)
		if err != nil {
			return nil, err
		}
		if roles == nil {
			roles = []string{}
		}
		out = append(out, UserSummary{
			ID:       acc.ID.String(),
			FullName: acc.FullName,
			UserName: acc.Username,
			Email:    acc.Email,
			Roles:    roles,
		})
	}
	return out, nil
}

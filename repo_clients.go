package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClientStore persists OAuth client applications.
type ClientStore interface {
	List(ctx context.Context) ([]*Application, error)
	FindByClientID(ctx context.Context, clientID string) (*Application, error)
	Create(ctx context.Context, app *Application) error
	Delete(ctx context.Context, clientID string) error
}

// Applications is the bun backed ClientStore. Lookups and inserts go
// through the generic repository, listing and deletes need the raw query.
type Applications struct {
	repository.Repository[*Application]
	db *bun.DB
}

var _ ClientStore = (*Applications)(nil)

func NewApplicationsRepository(db *bun.DB) *Applications {
	handlers := repository.ModelHandlers[*Application]{
		NewRecord: func() *Application {
			return &Application{}
		},
		GetID: func(record *Application) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Application, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "client_id"
		},
	}
	return &Applications{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

func (a *Applications) List(ctx context.Context) ([]*Application, error) {
	records := make([]*Application, 0)
	err := a.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.client_id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

func (a *Applications) FindByClientID(ctx context.Context, clientID string) (*Application, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, ErrClientNotFound
	}

	// client ids may look like UUIDs, so match the column explicitly
	// instead of going through GetByIdentifier.
	record, err := a.Get(ctx, repository.SelectBy("client_id", "=", clientID))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("find client: %w", err)
	}
	return record, nil
}

func (a *Applications) Create(ctx context.Context, app *Application) error {
	if app.Permissions == nil {
		app.Permissions = []string{}
	}
	if _, err := a.Repository.Create(ctx, app); err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrClientExists, err)
		}
		return err
	}
	return nil
}

func (a *Applications) Delete(ctx context.Context, clientID string) error {
	res, err := a.db.NewDelete().
		Model((*Application)(nil)).
		Where("client_id = ?", clientID).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrClientNotFound
	}
	return nil
}

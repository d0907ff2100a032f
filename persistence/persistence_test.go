package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-auth-server"
)

func memoryDSN(t *testing.T) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: memoryDSN(t), PingTimeout: time.Second})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mysql", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMigrate_CreatesSchema(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Options{Driver: DriverSQLite, DSN: memoryDSN(t), Debug: true})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "migrations are idempotent")

	for _, table := range []string{"users", "roles", "user_roles", "applications"} {
		var count int
		err := db.NewRaw("SELECT COUNT(*) FROM ?", bun.Ident(table)).Scan(ctx, &count)
		require.NoError(t, err, table)
		assert.Zero(t, count, table)
	}

	users := auth.NewUsersRepository(db)
	_, err = users.FindByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestMigrate_UsesDialectDirectory(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Options{Driver: DriverSQLite, DSN: memoryDSN(t)})
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var dir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, d string, opts ...goose.OptionsFunc) error {
		dir = d
		return errors.New("boom")
	}

	err = Migrate(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, auth.MigrationsDir(DriverSQLite), dir)
}


// Package persistence opens the bun database for the configured driver
// and applies the embedded goose migrations.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	auth "github.com/goliatone/go-auth-server"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		sqldb, err = sql.Open(sqliteshim.ShimName, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// sqlite serializes writers, a single connection also keeps
		// in-memory databases alive across queries.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}

	return db, nil
}

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// gooseUpContext is replaced in tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations for the database dialect.
func Migrate(ctx context.Context, db *bun.DB) error {
	name, gooseDialect, err := dialectOf(db)
	if err != nil {
		return err
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(auth.GetMigrationsFS())
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := gooseUpContext(ctx, db.DB, auth.MigrationsDir(name)); err != nil {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	return nil
}

func dialectOf(db *bun.DB) (string, string, error) {
	switch db.Dialect().Name() {
	case dialect.SQLite:
		return DriverSQLite, "sqlite3", nil
	case dialect.PG:
		return DriverPostgres, "postgres", nil
	default:
		return "", "", fmt.Errorf("no migrations for dialect %s", db.Dialect().Name())
	}
}

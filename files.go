package auth

import (
	"embed"
	"path"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// MigrationsRoot is the directory inside GetMigrationsFS holding one
// sub-directory per SQL dialect.
const MigrationsRoot = "data/sql/migrations"

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsDir returns the migrations directory for dialect, either
// "sqlite" or "postgres".
func MigrationsDir(dialect string) string {
	return path.Join(MigrationsRoot, dialect)
}

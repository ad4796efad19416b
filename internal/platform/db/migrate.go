package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// NewMigrator opens the SQL files in dir against the database at dsn.
// dsn must be URL form (postgres://...).
func NewMigrator(dsn, dir string) (*migrate.Migrate, error) {
	url, err := MigrateURL(dsn)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("platform/db: migrations dir: %w", err)
	}
	m, err := migrate.New("file://"+filepath.ToSlash(abs), url)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open migrations: %w", err)
	}
	return m, nil
}

// MigrateURL rewrites a postgres URL to the pgx5 scheme golang-migrate registers.
func MigrateURL(dsn string) (string, error) {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme), nil
		}
	}
	if strings.HasPrefix(dsn, "pgx5://") {
		return dsn, nil
	}
	return "", errors.New("platform/db: migrations need PG_DSN in postgres:// URL form")
}

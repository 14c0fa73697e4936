package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"pet-tracker/internal/general/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrateUp applies every pending embedded migration. dsn must use the "pgx5" scheme.
// Returns nil if the schema is already at the latest version.
func MigrateUp(ctx context.Context, dsn string, log *logger.Logger) error {
	m, err := newMigrate(dsn, log)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}

	log.Info(ctx, "db_migrated", "Database schema is up to date", map[string]any{
		"version": version,
		"dirty":   dirty,
	})
	return nil
}

func newMigrate(dsn string, log *logger.Logger) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{log: log}
	return m, nil
}

// migrateLogger implements migrate.Logger on top of the service logger.
type migrateLogger struct {
	log *logger.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.log.Debug(context.Background(), "db_migrate", fmt.Sprintf(format, v...), nil)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

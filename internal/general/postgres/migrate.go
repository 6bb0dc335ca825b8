package postgres

import (
	"context"
	"errors"
	"fmt"

	"driver-dispatch/internal/general/config"
	"driver-dispatch/internal/general/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies the journal schema migrations found at cfg.Journal.Migrations.
func Migrate(ctx context.Context, cfg *config.Config, logger *logger.Logger) error {
	m, err := migrate.New(cfg.Journal.Migrations, DSN(cfg))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Error(ctx, "migrate_close_failed", "Failed to close migrator", err, nil)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info(ctx, "migrate_no_change", "Journal schema is up to date", nil)
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info(ctx, "migrate_applied", "Journal migrations applied", map[string]any{
		"version": version,
		"dirty":   dirty,
	})
	return nil
}

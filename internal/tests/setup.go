package tests

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/tastykitchen/server/internal/db"
)

// OpenPostgres connects to databaseURL and applies the embedded migrations
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*sql.DB, error) {
	database, err := db.Open(ctx, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return database, nil
}

// TruncateAccounts removes every account for a clean test state
func TruncateAccounts(ctx context.Context, database *sql.DB) error {
	if _, err := database.ExecContext(ctx, "TRUNCATE TABLE accounts"); err != nil {
		return fmt.Errorf("truncate accounts: %w", err)
	}
	return nil
}

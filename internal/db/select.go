package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tastykitchen/server/internal/config"
	"github.com/tastykitchen/server/internal/repo"
)

// ErrStoreUnavailable reports that the durable store could not be reached at start
var ErrStoreUnavailable = errors.New("durable store unavailable")

// Store is the account store chosen at start together with its cleanup
type Store struct {
	Accounts repo.AccountRepo
	close    func(ctx context.Context) error
}

// Close releases the store's connections
func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

func memoryStore() *Store {
	return &Store{Accounts: repo.NewMemoryAccountRepo()}
}

// OpenAccounts selects the account store once for the process lifetime.
// Outside production (or with USE_IN_MEMORY_DB) the volatile store is used.
// Otherwise the durable store is chosen by the DATABASE_URL scheme; if it cannot
// be reached the failure is logged and the volatile store is used instead.
func OpenAccounts(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UseVolatileStore() {
		logger.Info("using in-memory account store", "env", cfg.Env, "use_in_memory_db", cfg.UseInMemoryDB)
		return memoryStore()
	}

	store, err := openDurable(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Warn("falling back to in-memory account store; data will not survive a restart", "error", err)
		return memoryStore()
	}
	logger.Info("using durable account store", "kind", store.Accounts.Kind())
	return store
}

func openDurable(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		database, err := Open(ctx, databaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if err := Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return &Store{
			Accounts: repo.NewPostgresAccountRepo(database),
			close:    func(context.Context) error { return database.Close() },
		}, nil

	case strings.HasPrefix(databaseURL, "mongodb://"), strings.HasPrefix(databaseURL, "mongodb+srv://"):
		client, database, err := OpenMongo(ctx, databaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		accounts, err := repo.NewMongoAccountRepo(ctx, database)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return &Store{Accounts: accounts, close: client.Disconnect}, nil
	}

	return nil, fmt.Errorf("%w: unsupported DATABASE_URL scheme in %s", ErrStoreUnavailable, redactDSN(databaseURL))
}

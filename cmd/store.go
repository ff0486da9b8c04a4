package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/bolt"
	"github.com/kozaktomas/facewatch/internal/database/mariadb"
	"github.com/kozaktomas/facewatch/internal/database/memory"
	"github.com/kozaktomas/facewatch/internal/database/postgres"
)

// openRepository connects the backend selected by FACEWATCH_STORE.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Repository, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	case config.StorePostgres:
		repo, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		logger.Info("using PostgreSQL store")
		return repo, nil
	case config.StoreMariaDB:
		repo, err := mariadb.Open(ctx, &cfg.MariaDB)
		if err != nil {
			return nil, fmt.Errorf("open mariadb: %w", err)
		}
		logger.Info("using MariaDB store")
		return repo, nil
	case config.StoreBolt:
		repo, err := bolt.Open(cfg.Bolt.Path)
		if err != nil {
			return nil, fmt.Errorf("open bolt: %w", err)
		}
		logger.Info("using embedded bolt store", "path", cfg.Bolt.Path)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

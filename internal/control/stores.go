package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/sheetmerge/internal/core/config"
	redisclient "github.com/vietddude/sheetmerge/internal/infra/redis"
	"github.com/vietddude/sheetmerge/internal/infra/storage"
	"github.com/vietddude/sheetmerge/internal/infra/storage/memory"
	"github.com/vietddude/sheetmerge/internal/infra/storage/postgres"
)

// Stores bundles the run history and the failed-sheet ledger.
type Stores struct {
	Runs   storage.RunRepository
	Failed storage.FailedSheetRepository

	db          *postgres.DB
	redisClient *redisclient.Client
}

// MemoryStores keeps everything in process.
func MemoryStores() *Stores {
	store := memory.NewMemoryStorage()
	return &Stores{
		Runs:   memory.NewRunRepo(store),
		Failed: memory.NewFailedRepo(store),
	}
}

// OpenStores connects the configured backends. Run history lives in
// PostgreSQL when a database URL is set; the ledger prefers Redis, then
// PostgreSQL, then memory.
func OpenStores(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Stores, error) {
	s := MemoryStores()

	if cfg.Database.Enabled() {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.db = db
		s.Runs = postgres.NewRunRepo(db)
		s.Failed = postgres.NewFailedSheetRepo(db, cfg.Source.SpreadsheetID)
		log.Info("Using PostgreSQL storage")
	} else {
		log.Info("Using Memory storage")
	}

	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, keeping failed sheets elsewhere", "error", err)
		} else {
			s.redisClient = client
			s.Failed = redisclient.NewFailedSheetRepo(client, cfg.Source.SpreadsheetID)
			log.Info("Using Redis for failed sheets")
		}
	}

	return s, nil
}

// Close releases the backend connections.
func (s *Stores) Close() error {
	var errs []error
	if s.redisClient != nil {
		errs = append(errs, s.redisClient.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

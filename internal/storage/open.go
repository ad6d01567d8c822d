package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Alias1177/MatchPredictor/internal/config"
	"github.com/Alias1177/MatchPredictor/internal/database"
)

// Open builds the repository selected by cfg.StoreDriver:
//
//	file     state as JSON documents in StateDir, history in SQLite
//	sqlite   everything in one SQLite file
//	postgres everything in PostgreSQL
func Open(ctx context.Context, cfg *config.Config) (Repository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.NewPostgres(ctx, database.ConnectionParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db), nil

	case config.DriverSQLite, "":
		return openSQLite(ctx, cfg.SQLitePath)

	case config.DriverFile:
		files, err := NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		history, err := openSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &composite{StateRepository: files, HistoryRepository: history, closers: []func() error{history.Close}}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}
	db, err := database.NewSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db), nil
}

// LockPath is where the writer lock lives for cfg
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "writer.lock")
}

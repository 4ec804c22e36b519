package database

import (
	"fmt"
	"os"
	"path/filepath"

	"docsync/internal/config"
	"docsync/internal/docsync"
)

// NewDatabaseFromConfig opens the database selected by cfg.Type. An in-memory
// database is migrated immediately since it starts empty on every open.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, clock docsync.Clock, idgen docsync.IDGenerator) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "docsync.db"), clock, idgen)
	case "memory":
		db, err := NewSQLiteDatabase(":memory:", clock, idgen)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

package storage

import (
	"fmt"

	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
)

// NewDatabase picks the backend named in storage.db_type and initializes it.
func NewDatabase(cfg *models.MConfig, log *logger.Logger) (interfaces.IDatabase, error) {
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "sqlite", "":
		sqlite, err := NewAsyncSQLiteDB(cfg, log)
		if err != nil {
			return nil, err
		}
		db = sqlite
	case "postgres":
		pg, err := NewPostgresDB(cfg, log)
		if err != nil {
			return nil, err
		}
		db = pg
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Storage.DBType)
	}

	if err := db.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing %s storage: %w", cfg.Storage.DBType, err)
	}
	return db, nil
}

package database

import (
	"fmt"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"gorm.io/driver/sqlite"
)

func newSQLite(config models.DatabaseConfig) (*DB, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file_path is required for SQLite")
	}
	// SQLite serializes writers; one connection avoids "database is locked"
	// under concurrent ledger increments.
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 1
	}
	return open(sqlite.Open(config.FilePath), config, "sqlite3", nil)
}

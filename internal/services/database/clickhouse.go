package database

import (
	"fmt"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"gorm.io/driver/clickhouse"
	"gorm.io/gorm"
)

func newClickHouse(config models.DatabaseConfig) (*DB, error) {
	dialector := clickhouse.New(clickhouse.Config{
		DSN:                    clickhouseDSN(config),
		DefaultGranularity:     3,
		DefaultCompression:     "LZ4",
		DefaultIndexType:       "minmax",
		DefaultTableEngineOpts: "ENGINE=MergeTree() ORDER BY id",
	})

	// Prepared statements are disabled: the driver's support is incomplete.
	// See https://github.com/go-gorm/gorm/issues/7493
	return open(dialector, config, "clickhouse", &gorm.Config{PrepareStmt: false})
}

func clickhouseDSN(config models.DatabaseConfig) string {
	if config.DSN != "" {
		return config.DSN
	}
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%d/%s",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)
}

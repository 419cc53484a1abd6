package database

import (
	"fmt"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"gorm.io/driver/mysql"
)

func newMySQL(config models.DatabaseConfig) (*DB, error) {
	return open(mysql.Open(mysqlDSN(config)), config, "mysql", nil)
}

func mysqlDSN(config models.DatabaseConfig) string {
	if config.DSN != "" {
		return config.DSN
	}
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)
}

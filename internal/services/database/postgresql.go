package database

import (
	"fmt"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	"gorm.io/driver/postgres"
)

func newPostgreSQL(config models.DatabaseConfig) (*DB, error) {
	return open(postgres.Open(postgresDSN(config)), config, "postgres", nil)
}

func postgresDSN(config models.DatabaseConfig) string {
	if config.DSN != "" {
		return config.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host,
		config.Port,
		config.Username,
		config.Password,
		config.Database,
		getSSLMode(config.SSLMode),
	)
}

func getSSLMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}

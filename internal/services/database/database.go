package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps a gorm connection with the driver it was opened with.
type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

// New opens the database selected by config.Type and verifies connectivity.
func New(config models.DatabaseConfig) (*DB, error) {
	switch config.Type {
	case models.PostgreSQL:
		return newPostgreSQL(config)
	case models.MySQL:
		return newMySQL(config)
	case models.SQLite:
		return newSQLite(config)
	case models.ClickHouse:
		return newClickHouse(config)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

func open(dialector gorm.Dialector, config models.DatabaseConfig, driverName string, gormCfg *gorm.Config) (*DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{}
	}
	if gormCfg.Logger == nil {
		gormCfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	gormDB, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driverName, err)
	}

	db := &DB{
		DB:         gormDB,
		config:     config,
		driverName: driverName,
	}
	db.setConnectionPool()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driverName, err)
	}

	return db, nil
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (db *DB) DriverName() string {
	return db.driverName
}

// Type returns the configured database type.
func (db *DB) Type() models.DatabaseType {
	return db.config.Type
}

// SupportsLedger reports whether the driver can serve the usage ledger, which
// needs transactional upserts.
func (db *DB) SupportsLedger() bool {
	return db.config.Type != models.ClickHouse
}

// Migrate creates the tables the service writes. ClickHouse gets hand-written
// DDL; the others use AutoMigrate.
func (db *DB) Migrate() error {
	if db.config.Type == models.ClickHouse {
		return RunClickHouseMigrations(db.DB)
	}
	if err := db.AutoMigrate(&models.UsageRecord{}, &models.InvocationEvent{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", db.driverName, err)
	}
	fiberlog.Debugf("Migrated usage_records and invocation_events on %s", db.driverName)
	return nil
}

func (db *DB) setConnectionPool() {
	if db.DB == nil {
		return
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}

	if db.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.config.MaxOpenConns)
	}
	if db.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.config.MaxIdleConns)
	}
	if db.config.ConnMaxLifetime > 0 {
		// conn_max_lifetime is in seconds
		sqlDB.SetConnMaxLifetime(time.Duration(db.config.ConnMaxLifetime) * time.Second)
	}
}

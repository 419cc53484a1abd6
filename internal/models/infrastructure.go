package models

// DatabaseType selects the gorm driver.
type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgresql"
	MySQL      DatabaseType = "mysql"
	SQLite     DatabaseType = "sqlite"
	ClickHouse DatabaseType = "clickhouse" // Telemetry only
)

// DatabaseConfig describes the relational store behind the database usage
// ledger and the invocation event sink. DSN, when set, wins over the
// individual connection fields.
type DatabaseConfig struct {
	Type     DatabaseType `yaml:"type" json:"type"`
	DSN      string       `yaml:"dsn,omitempty" json:"dsn,omitzero"`
	Host     string       `yaml:"host,omitempty" json:"host,omitzero"`
	Port     int          `yaml:"port,omitempty" json:"port,omitzero"`
	Username string       `yaml:"username,omitempty" json:"username,omitzero"`
	Password string       `yaml:"password,omitempty" json:"password,omitzero"`
	Database string       `yaml:"database" json:"database"`
	SSLMode  string       `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitzero"`
	FilePath string       `yaml:"file_path,omitempty" json:"file_path,omitzero"` // SQLite only

	MaxOpenConns    int `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitzero"`
	MaxIdleConns    int `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitzero"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitzero"` // Seconds
}

// RedisConfig holds the shared redis connection used by the redis ledger,
// the redis rate limiter and the circuit breakers.
type RedisConfig struct {
	URL      string `json:"url,omitzero" yaml:"url"`
	PoolSize int    `json:"pool_size,omitzero" yaml:"pool_size,omitempty"`
}

// TelemetryConfig configures the fire-and-forget event pipeline.
type TelemetryConfig struct {
	Prometheus bool `json:"prometheus,omitzero" yaml:"prometheus"`
	Database   bool `json:"database,omitzero" yaml:"database"` // Persist events through the configured database
	Workers    int  `json:"workers,omitzero" yaml:"workers,omitempty"`
	BufferSize int  `json:"buffer_size,omitzero" yaml:"buffer_size,omitempty"`
}

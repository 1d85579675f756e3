package warehouse

import (
	"errors"
	"strings"
	"time"

	"github.com/wtsi-npg/workbot/internal/config"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// ErrWarehouseURLEmpty is returned by Config.Validate when no warehouse
// connection URL has been configured.
var ErrWarehouseURLEmpty = errors.New("warehouse URL cannot be empty")

// Config holds connection parameters for the read-only warehouse mirror.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads warehouse connection settings from the environment.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("WORKBOT_WAREHOUSE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("WORKBOT_WAREHOUSE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("WORKBOT_WAREHOUSE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("WORKBOT_WAREHOUSE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("WORKBOT_WAREHOUSE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Validate reports whether the config is usable to open a connection.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrWarehouseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns the connection URL with any credentials redacted,
// safe to include in log output.
func (c *Config) MaskDatabaseURL() string {
	return config.MaskDatabaseURL(c.databaseURL)
}

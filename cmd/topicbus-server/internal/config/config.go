// Package config provides configuration management for the topicbus
// standalone server. It loads settings from environment variables with
// sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the topicbus server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Bus      BusConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string // mysql, postgres, sqlite3
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Prefix   string // Table prefix (default: "topicbus_")
}

// BusConfig holds pub/sub engine configuration.
type BusConfig struct {
	ClusterID           int64  // Cluster this server instance belongs to
	BatchSize           int    // Default lease batch size
	PermissionsFile     string // Optional JSON file seeding client permissions
	RedeliveryTimeout   time.Duration
	SweepInterval       time.Duration
	MaxDeliveryCount    int
	EnableNotifications bool
}

// Load loads configuration from environment variables.
// Follows 12-factor app principles - configuration via environment.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "topicbus"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "topicbus"),
			Prefix:   getEnv("DB_PREFIX", "topicbus_"),
		},
		Bus: BusConfig{
			ClusterID:           int64(getEnvInt("BUS_CLUSTER_ID", 1)),
			BatchSize:           getEnvInt("BUS_BATCH_SIZE", 50),
			PermissionsFile:     getEnv("BUS_PERMISSIONS_FILE", ""),
			RedeliveryTimeout:   time.Duration(getEnvInt("BUS_REDELIVERY_TIMEOUT", 120)) * time.Second,
			SweepInterval:       time.Duration(getEnvInt("BUS_SWEEP_INTERVAL", 30)) * time.Second,
			MaxDeliveryCount:    getEnvInt("BUS_MAX_DELIVERY_COUNT", 10),
			EnableNotifications: getEnvBool("BUS_ENABLE_NOTIFICATIONS", true),
		},
	}

	// Validate required fields. SQLite needs no credentials.
	if cfg.Database.Password == "" && !strings.EqualFold(cfg.Database.Driver, "sqlite3") {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required")
	}

	return cfg, nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Database)
	case "sqlite3":
		return c.Database // SQLite uses file path as DSN
	default:
		return ""
	}
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves environment variable as boolean or returns default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

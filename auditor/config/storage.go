package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// StorageConfig holds configuration for snapshot and run-history storage
type StorageConfig struct {
	SnapshotDir   string `yaml:"snapshot_dir"`
	RetentionDays int    `yaml:"retention_days"`
	EnableHistory bool   `yaml:"enable_history"`

	// PostgreSQL configuration
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// PostgreSQLConfig contains database configuration for run history
type PostgreSQLConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// DefaultStorageConfig returns a default storage configuration
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		SnapshotDir:   "snapshots",
		RetentionDays: 30,
		EnableHistory: false,
		PostgreSQL: PostgreSQLConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "unifi_audit",
			User:         "postgres",
			Password:     "",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
	}
}

// LoadStorageConfig loads storage configuration from file
func LoadStorageConfig(path string, log logrus.FieldLogger) (*StorageConfig, error) {
	log = log.WithField("component", "storage_config")

	if path == "" {
		log.Info("No storage config path provided, using defaults")
		return DefaultStorageConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithField("path", path).Info("Storage config file not found, using defaults")
		return DefaultStorageConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage config file: %w", err)
	}

	substituted, err := SubstituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	var cfg StorageConfig
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage config: %w", err)
	}

	// Apply defaults for missing fields
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = "snapshots"
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 30
	}
	if cfg.PostgreSQL.Host == "" {
		cfg.PostgreSQL.Host = "localhost"
	}
	if cfg.PostgreSQL.Port == 0 {
		cfg.PostgreSQL.Port = 5432
	}
	if cfg.PostgreSQL.Database == "" {
		cfg.PostgreSQL.Database = "unifi_audit"
	}
	if cfg.PostgreSQL.User == "" {
		cfg.PostgreSQL.User = "postgres"
	}
	if cfg.PostgreSQL.SSLMode == "" {
		cfg.PostgreSQL.SSLMode = "disable"
	}
	if cfg.PostgreSQL.MaxOpenConns == 0 {
		cfg.PostgreSQL.MaxOpenConns = 10
	}
	if cfg.PostgreSQL.MaxIdleConns == 0 {
		cfg.PostgreSQL.MaxIdleConns = 5
	}

	log.WithFields(logrus.Fields{
		"snapshot_dir":   cfg.SnapshotDir,
		"retention_days": cfg.RetentionDays,
		"enable_history": cfg.EnableHistory,
		"pg_host":        cfg.PostgreSQL.Host,
		"pg_port":        cfg.PostgreSQL.Port,
		"pg_database":    cfg.PostgreSQL.Database,
	}).Info("Loaded storage configuration")

	return &cfg, nil
}

// Validate validates the storage configuration
func (c *StorageConfig) Validate() error {
	if c.SnapshotDir == "" {
		return fmt.Errorf("snapshot_dir is required")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if c.EnableHistory {
		if err := c.PostgreSQL.Validate(); err != nil {
			return fmt.Errorf("invalid PostgreSQL configuration: %w", err)
		}
	}
	return nil
}

// Validate validates the PostgreSQL configuration
func (c *PostgreSQLConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be greater than 0")
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("max_idle_conns must be greater than 0")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgreSQLConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// EnsureSnapshotDir creates the snapshot directory if it doesn't exist
func (c *StorageConfig) EnsureSnapshotDir() error {
	if c.SnapshotDir == "" {
		return nil
	}

	absPath, err := filepath.Abs(c.SnapshotDir)
	if err != nil {
		return fmt.Errorf("failed to resolve snapshot dir: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	return nil
}

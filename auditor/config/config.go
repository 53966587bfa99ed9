package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/unifi-audit/auditor/analysis"
)

// AuditConfig is the root service configuration
type AuditConfig struct {
	Site      string          `yaml:"site"`
	Trend     analysis.Config `yaml:"trend"`
	RSSI      RSSIConfig      `yaml:"rssi"`
	Collector CollectorConfig `yaml:"collector"`
	API       APIConfig       `yaml:"api"`
	Export    ExportConfig    `yaml:"export"`
}

// RSSIConfig controls coverage scoring and min-RSSI recommendations
type RSSIConfig struct {
	Strategy string  `yaml:"strategy"`
	FloorDBM float64 `yaml:"floor_dbm"`
}

// CollectorConfig selects and parameterizes the telemetry source
type CollectorConfig struct {
	Source        string `yaml:"source"` // file or prometheus
	TelemetryPath string `yaml:"telemetry_path"`
	PrometheusURL string `yaml:"prometheus_url"`
	LookbackDays  int    `yaml:"lookback_days"`
}

// APIConfig controls the REST/WebSocket server
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ExportConfig controls report exports
type ExportConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

// DefaultAuditConfig returns the default service configuration
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Site:  "default",
		Trend: analysis.DefaultConfig(),
		RSSI: RSSIConfig{
			Strategy: "balanced",
			FloorDBM: -75,
		},
		Collector: CollectorConfig{
			Source:        "file",
			PrometheusURL: "http://localhost:9090",
			LookbackDays:  30,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  ":8080",
		},
		Export: ExportConfig{
			Dir:     "exports",
			Formats: []string{"json"},
		},
	}
}

// LoadAuditConfig loads the service configuration from a YAML file. A missing
// path falls back to defaults; present keys override them, absent keys keep
// them, so an explicit zero threshold survives loading.
func LoadAuditConfig(path string, log logrus.FieldLogger) (*AuditConfig, error) {
	log = log.WithField("component", "audit_config")

	cfg := DefaultAuditConfig()
	if path == "" {
		log.Info("No config path provided, using defaults")
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithField("path", path).Info("Config file not found, using defaults")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	substituted, err := SubstituteEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	if err := yaml.Unmarshal([]byte(substituted), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.WithFields(logrus.Fields{
		"site":           cfg.Site,
		"trend_enabled":  cfg.Trend.Enabled,
		"rolling_window": cfg.Trend.RollingWindow,
		"source":         cfg.Collector.Source,
		"api_enabled":    cfg.API.Enabled,
	}).Info("Loaded audit configuration")

	return cfg, nil
}

// Validate checks the configuration for structural problems
func (c *AuditConfig) Validate() error {
	if c.Site == "" {
		return fmt.Errorf("site is required")
	}
	if c.Collector.Source != "file" && c.Collector.Source != "prometheus" {
		return fmt.Errorf("collector source must be file or prometheus, got %q", c.Collector.Source)
	}
	if c.Collector.LookbackDays <= 0 {
		return fmt.Errorf("collector lookback_days must be greater than 0")
	}
	if c.Trend.RollingWindow < 1 {
		return fmt.Errorf("trend rolling_window must be at least 1")
	}
	if c.Trend.AnomalySigma <= 0 {
		return fmt.Errorf("trend anomaly_sigma must be greater than 0")
	}
	if c.Trend.DegradingThreshold > c.Trend.ImprovingThreshold {
		return fmt.Errorf("trend degrading_threshold must not exceed improving_threshold")
	}
	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api listen address is required when the api is enabled")
	}
	for _, format := range c.Export.Formats {
		if format != "json" && format != "csv" {
			return fmt.Errorf("unsupported export format %q (want json or csv)", format)
		}
	}
	return nil
}

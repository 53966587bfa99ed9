package storage

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RunsTable holds one row per completed audit
const RunsTable = `
CREATE TABLE IF NOT EXISTS audit_runs (
    id VARCHAR(255) PRIMARY KEY,
    timestamp TIMESTAMPTZ NOT NULL,
    site VARCHAR(255) NOT NULL,
    config_hash VARCHAR(64),
    snapshot_path TEXT,
    source VARCHAR(32),
    health_score DOUBLE PRECISION,
    health_grade VARCHAR(2),
    avg_satisfaction DOUBLE PRECISION,
    total_clients INTEGER,
    ap_count INTEGER,
    flagged_clients INTEGER,
    anomaly_count INTEGER,
    dfs_event_count INTEGER,
    satisfaction_trend VARCHAR(16),
    client_count_trend VARCHAR(16),
    headline TEXT,
    tags JSONB,
    is_baseline BOOLEAN DEFAULT FALSE,
    baseline_name VARCHAR(255),
    environment JSONB,
    full_report JSONB
);`

// MetricsTable holds per-entity metric observations, queryable as cross-run
// series
const MetricsTable = `
CREATE TABLE IF NOT EXISTS audit_metrics (
    time TIMESTAMPTZ NOT NULL,
    run_id VARCHAR(255) NOT NULL,
    site VARCHAR(255) NOT NULL,
    entity_type VARCHAR(32) NOT NULL,
    entity VARCHAR(255) NOT NULL,
    metric VARCHAR(255) NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (time, run_id, entity_type, entity, metric)
);`

// CreateHypertable converts the metrics table for TimescaleDB installs
const CreateHypertable = `SELECT create_hypertable('audit_metrics', 'time', if_not_exists => TRUE);`

// Migration represents a database migration
type Migration struct {
	Version int
	SQL     string
}

// migrations defines all database migrations
var migrations = []Migration{
	{Version: 1, SQL: RunsTable},
	{Version: 2, SQL: MetricsTable},
	{Version: 3, SQL: CreateIndices()},
	{Version: 4, SQL: CreateHypertable}, // Optional: for TimescaleDB
}

// CreateIndices returns SQL for creating performance indices
func CreateIndices() string {
	return `
	CREATE INDEX IF NOT EXISTS idx_audit_runs_timestamp ON audit_runs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_runs_site ON audit_runs(site);
	CREATE INDEX IF NOT EXISTS idx_audit_metrics_time ON audit_metrics(time DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_metrics_entity ON audit_metrics(entity_type, entity);
	CREATE INDEX IF NOT EXISTS idx_audit_metrics_run_id ON audit_metrics(run_id);
	`
}

// RunMigrations runs all database migrations
func RunMigrations(db *sql.DB, log logrus.FieldLogger) error {
	log = log.WithField("component", "migration")

	if err := createMigrationTable(db); err != nil {
		return err
	}

	for _, migration := range migrations {
		applied, err := isMigrationApplied(db, migration.Version)
		if err != nil {
			return err
		}

		if applied {
			log.WithField("version", migration.Version).Debug("Migration already applied")
			continue
		}

		log.WithField("version", migration.Version).Info("Applying migration")
		if err := applyMigration(db, migration, log); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// createMigrationTable creates the migration tracking table
func createMigrationTable(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := db.Exec(query)
	return err
}

// isMigrationApplied checks if a migration version has been applied
func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM schema_migrations WHERE version = $1`
	err := db.QueryRow(query, version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyMigration applies a single migration
func applyMigration(db *sql.DB, migration Migration, log logrus.FieldLogger) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The hypertable migration only applies when TimescaleDB is installed
	if migration.SQL == CreateHypertable {
		var extensionExists bool
		err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')").Scan(&extensionExists)
		if err != nil {
			log.Warn("Could not check for TimescaleDB extension, skipping hypertable creation")
		} else if !extensionExists {
			log.Info("TimescaleDB not available, skipping hypertable creation")
		} else {
			if _, err := tx.Exec(migration.SQL); err != nil {
				log.WithError(err).Warn("Failed to create hypertable, continuing without it")
			}
		}
	} else {
		if _, err := tx.Exec(migration.SQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, migration.Version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

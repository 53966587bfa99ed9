package storage

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/audit"
	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/types"
)

// HistoryStore manages both file and PostgreSQL storage of audit results
type HistoryStore struct {
	db        *Database
	snapshots *SnapshotStore
	retention time.Duration
	log       logrus.FieldLogger
}

// NewHistoryStore creates a history store, connecting to PostgreSQL and
// bringing the schema up to date
func NewHistoryStore(cfg *config.StorageConfig, log logrus.FieldLogger) (*HistoryStore, error) {
	db, err := NewDatabase(&cfg.PostgreSQL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if err := db.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	snapshots, err := NewSnapshotStore(cfg, log)
	if err != nil {
		return nil, err
	}

	return &HistoryStore{
		db:        db,
		snapshots: snapshots,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		log:       log.WithField("component", "history_store"),
	}, nil
}

// DB exposes the underlying database for query handlers
func (h *HistoryStore) DB() *Database {
	return h.db
}

// Snapshots exposes the snapshot file store
func (h *HistoryStore) Snapshots() *SnapshotStore {
	return h.snapshots
}

// Close closes the database connection
func (h *HistoryStore) Close() error {
	return h.db.Close()
}

// SaveRun persists one audit: the raw snapshot to disk, the run record and its
// metric series to PostgreSQL
func (h *HistoryStore) SaveRun(report *audit.Report, snap *types.TelemetrySnapshot, cfg *config.AuditConfig) (*types.AuditRun, error) {
	configHash := calculateConfigHash(cfg)
	runID := generateRunID(report.GeneratedAt, configHash)
	h.log.WithField("run_id", runID).Info("Saving audit run")

	snapshotPath, err := h.snapshots.SaveSnapshot(snap)
	if err != nil {
		// The database record is still worth keeping
		h.log.WithError(err).Error("Failed to save snapshot file")
		snapshotPath = ""
	}

	run := buildRun(report, runID, configHash, snapshotPath)

	if err := h.db.InsertRun(run); err != nil {
		return nil, fmt.Errorf("failed to save run to database: %w", err)
	}

	if err := h.db.InsertMetrics(runMetrics(report, run)); err != nil {
		h.log.WithError(err).Error("Failed to save metrics to PostgreSQL")
	}

	return run, nil
}

// Prune drops runs and snapshot files that fell out of the retention window.
// Baseline runs are kept regardless of age.
func (h *HistoryStore) Prune() error {
	if h.retention <= 0 {
		return nil
	}
	if err := h.db.DeleteOldRuns(time.Now().Add(-h.retention)); err != nil {
		return err
	}
	_, err := h.snapshots.Prune()
	return err
}

// buildRun flattens a report into the run record the database stores
func buildRun(report *audit.Report, runID, configHash, snapshotPath string) *types.AuditRun {
	run := &types.AuditRun{
		ID:            runID,
		Timestamp:     report.GeneratedAt,
		Site:          report.Site,
		ConfigHash:    configHash,
		SnapshotPath:  snapshotPath,
		Source:        report.Source,
		APCount:       report.APCount,
		DFSEventCount: report.DFSEventCount,
		AnomalyCount:  report.AnomalyCount(),
		Headline:      report.Headline(),
	}

	if report.Health != nil {
		run.HealthScore = report.Health.Score
		run.HealthGrade = report.Health.Grade
		run.AvgSatisfaction = report.Health.AvgSatisfaction
		run.TotalClients = report.Health.TotalClients
	}
	if report.Trends != nil {
		run.FlaggedClients = len(report.Trends.FlaggedClients)
		if report.Trends.Network != nil {
			run.SatisfactionTrend = string(report.Trends.Network.Satisfaction.Trend)
			run.ClientCountTrend = string(report.Trends.Network.ClientCount.Trend)
		}
	}

	if env, err := json.Marshal(report.System); err == nil {
		run.Environment = env
	}
	if full, err := json.Marshal(report); err == nil {
		run.FullReport = full
	}

	return run
}

// generateRunID creates a run ID with format: YYYYMMDD-HHMMSS-CFGHASH
func generateRunID(ts time.Time, configHash string) string {
	short := configHash
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s-%s", ts.UTC().Format("20060102-150405"), short)
}

// calculateConfigHash creates a deterministic hash of the configuration so
// runs under identical settings group together
func calculateConfigHash(cfg *config.AuditConfig) string {
	configStr := fmt.Sprintf("%+v", cfg)
	hash := sha256.Sum256([]byte(configStr))
	return fmt.Sprintf("%x", hash)[:16]
}

// runMetrics converts a report into the per-entity metric rows stored
// alongside the run
func runMetrics(report *audit.Report, run *types.AuditRun) []types.TimeSeriesMetric {
	row := func(entityType, entity, metric string, value float64) types.TimeSeriesMetric {
		return types.TimeSeriesMetric{
			Time:       run.Timestamp,
			RunID:      run.ID,
			Site:       run.Site,
			EntityType: entityType,
			Entity:     entity,
			Metric:     metric,
			Value:      value,
		}
	}

	metrics := []types.TimeSeriesMetric{
		row("network", "network", "health_score", run.HealthScore),
		row("network", "network", "avg_satisfaction", run.AvgSatisfaction),
		row("network", "network", "total_clients", float64(run.TotalClients)),
		row("network", "network", "anomaly_count", float64(run.AnomalyCount)),
		row("network", "network", "dfs_event_count", float64(run.DFSEventCount)),
	}

	if report.Health != nil {
		metrics = append(metrics,
			row("network", "network", "coverage_pct", report.Health.CoveragePct),
			row("network", "network", "retry_pct", report.Health.RetryPct),
		)
		for _, ap := range report.Health.AccessPoints {
			metrics = append(metrics,
				row("ap", ap.MAC, "satisfaction", ap.Satisfaction),
				row("ap", ap.MAC, "score", ap.Score),
				row("ap", ap.MAC, "clients", float64(ap.Clients)),
			)
		}
	}

	if report.Trends != nil {
		if report.Trends.Network != nil {
			metrics = append(metrics,
				row("network", "network", "satisfaction_slope", report.Trends.Network.Satisfaction.Slope),
				row("network", "network", "client_count_slope", report.Trends.Network.ClientCount.Slope),
			)
		}
		for _, ap := range report.Trends.AccessPoints {
			metrics = append(metrics, row("ap", ap.MAC, "satisfaction_slope", ap.SatisfactionSlope))
		}
	}

	return metrics
}

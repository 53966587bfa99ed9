package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/types"
)

// Database handles PostgreSQL operations for cross-run history
type Database struct {
	db  *sql.DB
	cfg *config.PostgreSQLConfig
	log logrus.FieldLogger
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.PostgreSQLConfig, log logrus.FieldLogger) (*Database, error) {
	db := &Database{
		cfg: cfg,
		log: log.WithField("component", "postgres"),
	}
	return db, nil
}

// Connect establishes database connection
func (d *Database) Connect() error {
	connStr := d.cfg.ConnectionString()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(d.cfg.MaxOpenConns)
	db.SetMaxIdleConns(d.cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	d.db = db
	d.log.Info("Connected to PostgreSQL database")
	return nil
}

// Migrate brings the schema up to date
func (d *Database) Migrate() error {
	return RunMigrations(d.db, d.log)
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// InsertRun inserts an audit run into the database
func (d *Database) InsertRun(run *types.AuditRun) error {
	query := `
		INSERT INTO audit_runs (
			id, timestamp, site, config_hash, snapshot_path, source,
			health_score, health_grade, avg_satisfaction, total_clients,
			ap_count, flagged_clients, anomaly_count, dfs_event_count,
			satisfaction_trend, client_count_trend, headline, tags,
			is_baseline, baseline_name, environment, full_report
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id) DO UPDATE SET
			health_score = EXCLUDED.health_score,
			health_grade = EXCLUDED.health_grade,
			avg_satisfaction = EXCLUDED.avg_satisfaction,
			headline = EXCLUDED.headline,
			full_report = EXCLUDED.full_report`

	tagsJSON, _ := json.Marshal(run.Tags)

	_, err := d.db.Exec(query,
		run.ID, run.Timestamp, run.Site, run.ConfigHash, run.SnapshotPath,
		run.Source, run.HealthScore, run.HealthGrade, run.AvgSatisfaction,
		run.TotalClients, run.APCount, run.FlaggedClients, run.AnomalyCount,
		run.DFSEventCount, run.SatisfactionTrend, run.ClientCountTrend,
		run.Headline, tagsJSON, run.IsBaseline, run.BaselineName,
		nullableJSON(run.Environment), nullableJSON(run.FullReport),
	)

	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	d.log.WithField("run_id", run.ID).Debug("Inserted audit run")
	return nil
}

// InsertMetrics inserts time-series metrics into the database
func (d *Database) InsertMetrics(metrics []types.TimeSeriesMetric) error {
	if len(metrics) == 0 {
		return nil
	}

	query := `
		INSERT INTO audit_metrics (
			time, run_id, site, entity_type, entity, metric, value
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (time, run_id, entity_type, entity, metric)
		DO UPDATE SET value = EXCLUDED.value`

	stmt, err := d.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, metric := range metrics {
		_, err := stmt.Exec(
			metric.Time, metric.RunID, metric.Site,
			metric.EntityType, metric.Entity, metric.Metric, metric.Value,
		)
		if err != nil {
			return fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	d.log.WithField("count", len(metrics)).Debug("Inserted metrics")
	return nil
}

// GetRun retrieves a run by ID, including the stored report
func (d *Database) GetRun(id string) (*types.AuditRun, error) {
	query := `
		SELECT id, timestamp, site, config_hash, snapshot_path, source,
			health_score, health_grade, avg_satisfaction, total_clients,
			ap_count, flagged_clients, anomaly_count, dfs_event_count,
			satisfaction_trend, client_count_trend, headline, tags,
			is_baseline, baseline_name, environment, full_report
		FROM audit_runs WHERE id = $1`

	var run types.AuditRun
	var tagsJSON, environmentJSON, reportJSON []byte

	err := d.db.QueryRow(query, id).Scan(
		&run.ID, &run.Timestamp, &run.Site, &run.ConfigHash,
		&run.SnapshotPath, &run.Source, &run.HealthScore, &run.HealthGrade,
		&run.AvgSatisfaction, &run.TotalClients, &run.APCount,
		&run.FlaggedClients, &run.AnomalyCount, &run.DFSEventCount,
		&run.SatisfactionTrend, &run.ClientCountTrend, &run.Headline,
		&tagsJSON, &run.IsBaseline, &run.BaselineName,
		&environmentJSON, &reportJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	json.Unmarshal(tagsJSON, &run.Tags)
	run.Environment = json.RawMessage(environmentJSON)
	run.FullReport = json.RawMessage(reportJSON)

	return &run, nil
}

// ListRuns lists runs with filtering. The heavy JSONB columns are left out;
// use GetRun for the full report.
func (d *Database) ListRuns(filter types.RunFilter) ([]*types.AuditRun, error) {
	query := `SELECT id, timestamp, site, source, health_score, health_grade,
		avg_satisfaction, total_clients, ap_count, flagged_clients,
		anomaly_count, dfs_event_count, satisfaction_trend, client_count_trend,
		headline, tags, is_baseline, baseline_name
		FROM audit_runs WHERE 1=1`

	args := []interface{}{}
	argCount := 1

	if filter.Site != "" {
		query += fmt.Sprintf(" AND site = $%d", argCount)
		args = append(args, filter.Site)
		argCount++
	}

	if filter.IsBaseline != nil {
		query += fmt.Sprintf(" AND is_baseline = $%d", argCount)
		args = append(args, *filter.IsBaseline)
		argCount++
	}

	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, filter.Since)
		argCount++
	}

	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, filter.Until)
		argCount++
	}

	if filter.MinScore > 0 {
		query += fmt.Sprintf(" AND health_score >= $%d", argCount)
		args = append(args, filter.MinScore)
		argCount++
	}

	if filter.MaxScore > 0 {
		query += fmt.Sprintf(" AND health_score <= $%d", argCount)
		args = append(args, filter.MaxScore)
		argCount++
	}

	if len(filter.Tags) > 0 {
		tagsJSON, _ := json.Marshal(filter.Tags)
		query += fmt.Sprintf(" AND tags @> $%d::jsonb", argCount)
		args = append(args, tagsJSON)
		argCount++
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.AuditRun
	for rows.Next() {
		run := &types.AuditRun{}
		var tagsJSON []byte

		err := rows.Scan(
			&run.ID, &run.Timestamp, &run.Site, &run.Source,
			&run.HealthScore, &run.HealthGrade, &run.AvgSatisfaction,
			&run.TotalClients, &run.APCount, &run.FlaggedClients,
			&run.AnomalyCount, &run.DFSEventCount, &run.SatisfactionTrend,
			&run.ClientCountTrend, &run.Headline, &tagsJSON,
			&run.IsBaseline, &run.BaselineName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		json.Unmarshal(tagsJSON, &run.Tags)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LatestRun returns the most recent run for a site
func (d *Database) LatestRun(site string) (*types.AuditRun, error) {
	runs, err := d.ListRuns(types.RunFilter{Site: site, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded for site %s", site)
	}
	return runs[0], nil
}

// UpdateBaseline updates baseline status of a run
func (d *Database) UpdateBaseline(runID, baselineName string) error {
	query := `UPDATE audit_runs SET is_baseline = true, baseline_name = $1 WHERE id = $2`
	_, err := d.db.Exec(query, baselineName, runID)
	if err != nil {
		return fmt.Errorf("failed to update baseline: %w", err)
	}
	return nil
}

// GetBaselines retrieves all baseline runs
func (d *Database) GetBaselines() ([]*types.AuditRun, error) {
	filter := types.RunFilter{IsBaseline: &[]bool{true}[0]}
	return d.ListRuns(filter)
}

// DeleteOldRuns deletes runs older than the specified time, keeping baselines
func (d *Database) DeleteOldRuns(before time.Time) error {
	query := `DELETE FROM audit_runs WHERE timestamp < $1 AND is_baseline = false`
	result, err := d.db.Exec(query, before)
	if err != nil {
		return fmt.Errorf("failed to delete old runs: %w", err)
	}

	count, _ := result.RowsAffected()
	d.log.WithField("deleted_count", count).Info("Deleted old runs")
	return nil
}

// QueryMetrics queries time-series metrics, newest first
func (d *Database) QueryMetrics(filter types.MetricFilter) ([]types.TimeSeriesMetric, error) {
	sqlQuery := `SELECT time, run_id, site, entity_type, entity, metric, value
		FROM audit_metrics WHERE 1=1`

	args := []interface{}{}
	argCount := 1

	if filter.Site != "" {
		sqlQuery += fmt.Sprintf(" AND site = $%d", argCount)
		args = append(args, filter.Site)
		argCount++
	}

	if filter.EntityType != "" {
		sqlQuery += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, filter.EntityType)
		argCount++
	}

	if filter.Entity != "" {
		sqlQuery += fmt.Sprintf(" AND entity = $%d", argCount)
		args = append(args, filter.Entity)
		argCount++
	}

	if len(filter.Metrics) > 0 {
		sqlQuery += fmt.Sprintf(" AND metric = ANY($%d)", argCount)
		args = append(args, pq.Array(filter.Metrics))
		argCount++
	}

	if !filter.Since.IsZero() {
		sqlQuery += fmt.Sprintf(" AND time >= $%d", argCount)
		args = append(args, filter.Since)
		argCount++
	}

	sqlQuery += " ORDER BY time DESC"

	if filter.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := d.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []types.TimeSeriesMetric
	for rows.Next() {
		var metric types.TimeSeriesMetric

		err := rows.Scan(
			&metric.Time, &metric.RunID, &metric.Site,
			&metric.EntityType, &metric.Entity, &metric.Metric, &metric.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}

		metrics = append(metrics, metric)
	}

	return metrics, rows.Err()
}

// HealthHistory returns the health-score series for a site in chronological
// order, ready for trend analysis. A limit of 0 returns the whole history.
func (d *Database) HealthHistory(site string, limit int) ([]types.HealthPoint, error) {
	query := `SELECT timestamp, id, health_score FROM audit_runs
		WHERE site = $1 ORDER BY timestamp DESC`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.Query(query, site)
	if err != nil {
		return nil, fmt.Errorf("failed to query health history: %w", err)
	}
	defer rows.Close()

	var points []types.HealthPoint
	for rows.Next() {
		var p types.HealthPoint
		if err := rows.Scan(&p.Timestamp, &p.RunID, &p.Score); err != nil {
			return nil, fmt.Errorf("failed to scan health point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows come back newest first; flip to chronological order
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	return points, nil
}

// nullableJSON maps an absent payload to SQL NULL instead of an empty string
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

package types

import (
	"encoding/json"
	"time"
)

// AuditRun represents one completed audit stored in the database
type AuditRun struct {
	ID           string    `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Site         string    `json:"site" db:"site"`
	ConfigHash   string    `json:"config_hash" db:"config_hash"`
	SnapshotPath string    `json:"snapshot_path" db:"snapshot_path"`
	Source       string    `json:"source" db:"source"`

	HealthScore     float64 `json:"health_score" db:"health_score"`
	HealthGrade     string  `json:"health_grade" db:"health_grade"`
	AvgSatisfaction float64 `json:"avg_satisfaction" db:"avg_satisfaction"`
	TotalClients    int     `json:"total_clients" db:"total_clients"`
	APCount         int     `json:"ap_count" db:"ap_count"`
	FlaggedClients  int     `json:"flagged_clients" db:"flagged_clients"`
	AnomalyCount    int     `json:"anomaly_count" db:"anomaly_count"`
	DFSEventCount   int     `json:"dfs_event_count" db:"dfs_event_count"`

	SatisfactionTrend string `json:"satisfaction_trend" db:"satisfaction_trend"`
	ClientCountTrend  string `json:"client_count_trend" db:"client_count_trend"`
	Headline          string `json:"headline" db:"headline"`

	Tags         []string        `json:"tags,omitempty" db:"tags"`
	IsBaseline   bool            `json:"is_baseline" db:"is_baseline"`
	BaselineName string          `json:"baseline_name,omitempty" db:"baseline_name"`
	Environment  json.RawMessage `json:"environment,omitempty" db:"environment"`
	FullReport   json.RawMessage `json:"full_report,omitempty" db:"full_report"`
}

// RunFilter represents filtering criteria for stored audit runs
type RunFilter struct {
	Site       string    `json:"site,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Until      time.Time `json:"until,omitempty"`
	MinScore   float64   `json:"min_score,omitempty"`
	MaxScore   float64   `json:"max_score,omitempty"`
	IsBaseline *bool     `json:"is_baseline,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}

// TimeSeriesMetric is one per-entity metric row persisted alongside a run,
// queryable as a cross-run series
type TimeSeriesMetric struct {
	Time       time.Time `json:"time" db:"time"`
	RunID      string    `json:"run_id" db:"run_id"`
	Site       string    `json:"site" db:"site"`
	EntityType string    `json:"entity_type" db:"entity_type"` // ap, client, network
	Entity     string    `json:"entity" db:"entity"`           // MAC, or "network"
	Metric     string    `json:"metric" db:"metric"`
	Value      float64   `json:"value" db:"value"`
}

// MetricFilter represents filtering criteria for stored metric series
type MetricFilter struct {
	Site       string    `json:"site,omitempty"`
	EntityType string    `json:"entity_type,omitempty"`
	Entity     string    `json:"entity,omitempty"`
	Metrics    []string  `json:"metrics,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// HealthPoint is one health-score observation in the cross-run history
type HealthPoint struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Score     float64   `json:"score"`
}

// RunComparison summarizes how one run moved relative to another
type RunComparison struct {
	RunID             string  `json:"run_id"`
	BaselineRunID     string  `json:"baseline_run_id"`
	ScoreDelta        float64 `json:"score_delta"`
	SatisfactionDelta float64 `json:"satisfaction_delta"`
	ClientDelta       int     `json:"client_delta"`
	AnomalyDelta      int     `json:"anomaly_delta"`
	Regressed         bool    `json:"regressed"`
	Improved          bool    `json:"improved"`
	Summary           string  `json:"summary"`
}

package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifi-audit/auditor/analysis"
	"github.com/unifi-audit/auditor/analyzer"
	"github.com/unifi-audit/auditor/audit"
	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/types"
)

var reportTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// sampleReport builds a report with every section populated the way a real
// audit pass fills them
func sampleReport() *audit.Report {
	return &audit.Report{
		Site:          "lab",
		GeneratedAt:   reportTime,
		Source:        "file",
		APCount:       2,
		DFSEventCount: 1,
		Health: &analyzer.HealthReport{
			Score:           82.4,
			Grade:           "B",
			AvgSatisfaction: 88.0,
			CoveragePct:     93.0,
			RetryPct:        4.2,
			TotalClients:    42,
			AccessPoints: []analyzer.APHealth{
				{MAC: "aa:bb:cc:dd:ee:01", Name: "Office AP", Score: 71.0, Grade: "C", Satisfaction: 71.0, Clients: 18},
				{MAC: "aa:bb:cc:dd:ee:02", Name: "Warehouse AP", Score: 94.0, Grade: "A", Satisfaction: 94.0, Clients: 24},
			},
		},
		Trends: &analysis.TrendReport{
			Enabled: true,
			Network: &analysis.NetworkTrend{
				Satisfaction: analysis.MetricTrend{Trend: analysis.TrendDegrading, Slope: -1.2},
				ClientCount:  analysis.MetricTrend{Trend: analysis.TrendStable, Slope: 0.1},
				Anomalies:    []analysis.AnomalyEvent{{Metric: "satisfaction", Value: 40.0}},
			},
			AccessPoints: map[string]*analysis.APTrend{
				"Office AP": {
					MAC:               "aa:bb:cc:dd:ee:01",
					SatisfactionSlope: -2.5,
					Anomalies:         []analysis.AnomalyEvent{{Metric: "satisfaction", Value: 35.0}},
				},
			},
			FlaggedClients: []analysis.ClientTrend{
				{MAC: "11:22:33:44:55:01", Slope: -3.0},
				{MAC: "11:22:33:44:55:02", Slope: -1.1},
			},
			Headline: "Network satisfaction is declining.",
		},
		System: types.SystemInfo{Hostname: "audit-host"},
	}
}

func TestBuildRun(t *testing.T) {
	report := sampleReport()
	run := buildRun(report, "20260801-120000-abc1234", "abc1234def567890", "/data/snapshots/lab_20260801-120000.json")

	assert.Equal(t, "20260801-120000-abc1234", run.ID)
	assert.Equal(t, reportTime, run.Timestamp)
	assert.Equal(t, "lab", run.Site)
	assert.Equal(t, "abc1234def567890", run.ConfigHash)
	assert.Equal(t, "/data/snapshots/lab_20260801-120000.json", run.SnapshotPath)
	assert.Equal(t, "file", run.Source)

	assert.Equal(t, 82.4, run.HealthScore)
	assert.Equal(t, "B", run.HealthGrade)
	assert.Equal(t, 88.0, run.AvgSatisfaction)
	assert.Equal(t, 42, run.TotalClients)
	assert.Equal(t, 2, run.APCount)
	assert.Equal(t, 2, run.FlaggedClients)
	assert.Equal(t, 1, run.DFSEventCount)

	// One network anomaly plus one on the office AP
	assert.Equal(t, 2, run.AnomalyCount)

	assert.Equal(t, "degrading", run.SatisfactionTrend)
	assert.Equal(t, "stable", run.ClientCountTrend)
	assert.Equal(t, "Network satisfaction is declining.", run.Headline)

	var env types.SystemInfo
	require.NoError(t, json.Unmarshal(run.Environment, &env))
	assert.Equal(t, "audit-host", env.Hostname)

	var full audit.Report
	require.NoError(t, json.Unmarshal(run.FullReport, &full))
	assert.Equal(t, "lab", full.Site)
	assert.Equal(t, 82.4, full.Health.Score)
}

func TestBuildRunTrendsDisabled(t *testing.T) {
	report := sampleReport()
	report.Trends = &analysis.TrendReport{Enabled: false, Headline: "Trend analysis disabled."}

	run := buildRun(report, "id", "hash", "")

	assert.Empty(t, run.SatisfactionTrend)
	assert.Empty(t, run.ClientCountTrend)
	assert.Zero(t, run.FlaggedClients)
	assert.Zero(t, run.AnomalyCount)
	assert.Equal(t, "Trend analysis disabled.", run.Headline)

	// The health section still flows through
	assert.Equal(t, 82.4, run.HealthScore)
}

func TestGenerateRunID(t *testing.T) {
	assert.Equal(t, "20260801-120000-abcdef0", generateRunID(reportTime, "abcdef0123456789"))

	// Hashes shorter than seven characters are used as-is
	assert.Equal(t, "20260801-120000-ab", generateRunID(reportTime, "ab"))
}

func TestCalculateConfigHash(t *testing.T) {
	cfg := config.DefaultAuditConfig()
	first := calculateConfigHash(cfg)
	second := calculateConfigHash(cfg)

	assert.Len(t, first, 16)
	assert.Equal(t, first, second)

	cfg.Site = "other-site"
	assert.NotEqual(t, first, calculateConfigHash(cfg))
}

func TestRunMetrics(t *testing.T) {
	report := sampleReport()
	run := buildRun(report, "run-1", "hash", "")

	metrics := runMetrics(report, run)

	// 5 run summary rows, 2 health rows, 2 network slopes,
	// 3 rows per AP from the health section, 1 AP trend slope
	assert.Len(t, metrics, 16)

	byKey := make(map[string]types.TimeSeriesMetric)
	for _, m := range metrics {
		assert.Equal(t, "run-1", m.RunID)
		assert.Equal(t, "lab", m.Site)
		assert.Equal(t, reportTime, m.Time)
		byKey[m.EntityType+"/"+m.Entity+"/"+m.Metric] = m
	}

	assert.Equal(t, 82.4, byKey["network/network/health_score"].Value)
	assert.Equal(t, 42.0, byKey["network/network/total_clients"].Value)
	assert.Equal(t, -1.2, byKey["network/network/satisfaction_slope"].Value)
	assert.Equal(t, 71.0, byKey["ap/aa:bb:cc:dd:ee:01/satisfaction"].Value)
	assert.Equal(t, 18.0, byKey["ap/aa:bb:cc:dd:ee:01/clients"].Value)
	assert.Equal(t, -2.5, byKey["ap/aa:bb:cc:dd:ee:01/satisfaction_slope"].Value)
	assert.Equal(t, 94.0, byKey["ap/aa:bb:cc:dd:ee:02/score"].Value)
}

func TestNullableJSON(t *testing.T) {
	assert.Nil(t, nullableJSON(nil))
	assert.Nil(t, nullableJSON(json.RawMessage("")))
	assert.Equal(t, []byte(`{"a":1}`), nullableJSON(json.RawMessage(`{"a":1}`)))
}

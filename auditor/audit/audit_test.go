package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifi-audit/auditor/analysis"
	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/types"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// declineSnapshot has one AP whose satisfaction falls 2 points per day
func declineSnapshot() *types.TelemetrySnapshot {
	base := float64(time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC).Unix())
	mac := "aa:bb:cc:dd:ee:01"

	var daily []types.StatRecord
	for day := 0; day < 10; day++ {
		daily = append(daily, types.StatRecord{
			"mac":          mac,
			"time":         base + float64(day)*86400,
			"satisfaction": 90.0 - float64(day)*2,
			"num_sta":      10.0,
		})
	}

	return &types.TelemetrySnapshot{
		Site:         "lab",
		CollectedAt:  time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		Source:       "file",
		Devices:      []types.Device{{MAC: mac, Name: "Office AP", Type: "uap", Adopted: true}},
		DailyAPStats: daily,
		Events: []types.StatRecord{
			{"key": "EVT_AP_DFS_Radar_Detected", "time": base * 1000},
		},
		Clients: []types.StatRecord{
			{"mac": "11:22:33:44:55:01", "signal": -58.0},
			{"mac": "11:22:33:44:55:02", "signal": -71.0},
			{"mac": "11:22:33:44:55:03", "signal": -82.0},
		},
		ClientHistory: []types.StatRecord{
			{"mac": "11:22:33:44:55:01", "time": base, "ap_mac": mac, "signal": -80.0},
			{"mac": "11:22:33:44:55:01", "time": base + 3600, "ap_mac": "aa:bb:cc:dd:ee:02", "signal": -55.0},
		},
	}
}

type stubCollector struct {
	snap *types.TelemetrySnapshot
	err  error
}

func (s *stubCollector) Collect(ctx context.Context) (*types.TelemetrySnapshot, error) {
	return s.snap, s.err
}

func TestAnalyzeFullReport(t *testing.T) {
	auditor := NewAuditor(config.DefaultAuditConfig(), nil, testLog())

	report := auditor.Analyze(declineSnapshot())

	assert.Equal(t, "lab", report.Site)
	assert.Equal(t, "file", report.Source)
	assert.Equal(t, 1, report.APCount)
	assert.Equal(t, 1, report.DFSEventCount)

	require.NotNil(t, report.Health)
	require.NotNil(t, report.Trends)
	require.NotNil(t, report.Validation)
	require.NotNil(t, report.RadioPlan)

	ap, ok := report.Trends.AccessPoints["Office AP"]
	require.True(t, ok)
	assert.Equal(t, analysis.TrendDegrading, ap.SatisfactionTrend)
	assert.Less(t, ap.SatisfactionSlope, 0.0)

	require.NotNil(t, report.Roaming)
	assert.Equal(t, "balanced", report.Roaming.Strategy)
	assert.Equal(t, 1, report.Roaming.EventCount)
	require.Len(t, report.Roaming.RecentHops, 1)
	assert.Equal(t, "11:22:33:44:55:01", report.Roaming.RecentHops[0].ClientMAC)
	// Balanced strategy: 15th percentile of {-82, -71, -58} interpolates to
	// -78.7, rounded to -79
	assert.Equal(t, -79, report.Roaming.MinRSSIDBM)
}

func TestRoamingUnknownStrategyLeavesRecommendationUnset(t *testing.T) {
	cfg := config.DefaultAuditConfig()
	cfg.RSSI.Strategy = "drastic"

	report := NewAuditor(cfg, nil, testLog()).Analyze(declineSnapshot())

	require.NotNil(t, report.Roaming)
	assert.Zero(t, report.Roaming.MinRSSIDBM)
	assert.Equal(t, 1, report.Roaming.EventCount)
}

func TestRunPropagatesCollectorError(t *testing.T) {
	cfg := config.DefaultAuditConfig()
	auditor := NewAuditor(cfg, &stubCollector{err: fmt.Errorf("controller unreachable")}, testLog())

	_, _, err := auditor.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to collect telemetry")
}

func TestRunAnalyzesCollectedSnapshot(t *testing.T) {
	auditor := NewAuditor(config.DefaultAuditConfig(), &stubCollector{snap: declineSnapshot()}, testLog())

	report, snap, err := auditor.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, snap.CollectedAt, report.GeneratedAt)
}

func TestAnomalyCountAndHeadline(t *testing.T) {
	report := &Report{}
	assert.Zero(t, report.AnomalyCount())
	assert.Equal(t, "No trend data available.", report.Headline())

	report.Trends = &analysis.TrendReport{
		Network: &analysis.NetworkTrend{
			Anomalies: []analysis.AnomalyEvent{{Metric: "satisfaction"}},
		},
		AccessPoints: map[string]*analysis.APTrend{
			"Office AP": {Anomalies: []analysis.AnomalyEvent{{Metric: "satisfaction"}, {Metric: "satisfaction"}}},
		},
		Headline: "Network satisfaction is declining.",
	}
	assert.Equal(t, 3, report.AnomalyCount())
	assert.Equal(t, "Network satisfaction is declining.", report.Headline())
}

func TestNewCollectorSelection(t *testing.T) {
	cfg := config.DefaultAuditConfig()
	log := testLog()

	// file source without a path is a configuration error
	cfg.Collector.Source = "file"
	cfg.Collector.TelemetryPath = ""
	_, err := NewCollector(cfg, log)
	require.Error(t, err)

	cfg.Collector.TelemetryPath = "/tmp/export.json"
	collector, err := NewCollector(cfg, log)
	require.NoError(t, err)
	assert.NotNil(t, collector)

	cfg.Collector.Source = "prometheus"
	collector, err = NewCollector(cfg, log)
	require.NoError(t, err)
	assert.NotNil(t, collector)

	cfg.Collector.Source = "snmp"
	_, err = NewCollector(cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown collector source")
}

func TestAnalyzeTrendsDisabled(t *testing.T) {
	cfg := config.DefaultAuditConfig()
	cfg.Trend.Enabled = false

	auditor := NewAuditor(cfg, nil, testLog())
	report := auditor.Analyze(declineSnapshot())

	require.NotNil(t, report.Trends)
	assert.False(t, report.Trends.Enabled)
	assert.Equal(t, "Trend analysis disabled.", report.Headline())
	assert.Nil(t, report.Trends.Network)
}

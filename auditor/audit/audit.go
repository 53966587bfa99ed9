package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/analysis"
	"github.com/unifi-audit/auditor/analyzer"
	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/ingest"
	"github.com/unifi-audit/auditor/metrics"
	"github.com/unifi-audit/auditor/types"
	"github.com/unifi-audit/auditor/validator"
)

// maxRecentHops caps the roaming events carried verbatim in a report; the
// full count is always reported
const maxRecentHops = 10

// Collector produces a telemetry snapshot from some source
type Collector interface {
	Collect(ctx context.Context) (*types.TelemetrySnapshot, error)
}

// Report bundles everything one audit pass produced
type Report struct {
	Site          string    `json:"site"`
	GeneratedAt   time.Time `json:"generated_at"`
	Source        string    `json:"source"`
	APCount       int       `json:"ap_count"`
	DFSEventCount int       `json:"dfs_event_count"`

	Validation *validator.Report      `json:"validation,omitempty"`
	Health     *analyzer.HealthReport `json:"health,omitempty"`
	Trends     *analysis.TrendReport  `json:"trends,omitempty"`
	RadioPlan  *analyzer.RadioPlan    `json:"radio_plan,omitempty"`
	Roaming    *RoamingReport         `json:"roaming,omitempty"`
	System     types.SystemInfo       `json:"system"`
	Baseline   *types.RunComparison   `json:"baseline,omitempty"`
}

// RoamingReport summarizes client mobility and the min-RSSI recommendation
// derived from the configured strategy
type RoamingReport struct {
	Strategy   string                  `json:"strategy"`
	MinRSSIDBM int                     `json:"min_rssi_dbm"`
	EventCount int                     `json:"event_count"`
	RecentHops []analysis.RoamingEvent `json:"recent_hops,omitempty"`
}

// AnomalyCount totals anomalies across the network series and every AP
func (r *Report) AnomalyCount() int {
	if r.Trends == nil {
		return 0
	}
	count := 0
	if r.Trends.Network != nil {
		count = len(r.Trends.Network.Anomalies)
	}
	for _, ap := range r.Trends.AccessPoints {
		count += len(ap.Anomalies)
	}
	return count
}

// Headline returns the trend headline, or a neutral line when trend analysis
// produced none
func (r *Report) Headline() string {
	if r.Trends != nil && r.Trends.Headline != "" {
		return r.Trends.Headline
	}
	return "No trend data available."
}

// Auditor runs every analysis stage over collected telemetry
type Auditor struct {
	cfg       *config.AuditConfig
	collector Collector
	health    *analyzer.HealthAnalyzer
	trends    *analysis.TrendAnalyzer
	radio     *analyzer.RadioPlanner
	log       logrus.FieldLogger
}

// NewAuditor creates an auditor wired to the given collector
func NewAuditor(cfg *config.AuditConfig, collector Collector, log logrus.FieldLogger) *Auditor {
	return &Auditor{
		cfg:       cfg,
		collector: collector,
		health:    analyzer.NewHealthAnalyzer(cfg.RSSI.FloorDBM, log),
		trends:    analysis.NewTrendAnalyzer(cfg.Trend, log),
		radio:     analyzer.NewRadioPlanner(log),
		log:       log.WithField("component", "auditor"),
	}
}

// NewCollector builds the collector the config asks for
func NewCollector(cfg *config.AuditConfig, log logrus.FieldLogger) (Collector, error) {
	switch cfg.Collector.Source {
	case "prometheus":
		return metrics.NewPrometheusSource(
			cfg.Collector.PrometheusURL, cfg.Site, cfg.Collector.LookbackDays, log)
	case "file":
		if cfg.Collector.TelemetryPath == "" {
			return nil, fmt.Errorf("collector source is file but telemetry_path is empty")
		}
		return ingest.NewFileSource(cfg.Collector.TelemetryPath, cfg.Site, log), nil
	default:
		return nil, fmt.Errorf("unknown collector source: %s", cfg.Collector.Source)
	}
}

// Run collects a snapshot and produces the full audit report
func (a *Auditor) Run(ctx context.Context) (*Report, *types.TelemetrySnapshot, error) {
	snap, err := a.collector.Collect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to collect telemetry: %w", err)
	}

	return a.Analyze(snap), snap, nil
}

// Analyze runs every analysis stage over an already collected snapshot
func (a *Auditor) Analyze(snap *types.TelemetrySnapshot) *Report {
	a.log.WithFields(logrus.Fields{
		"site":    snap.Site,
		"source":  snap.Source,
		"devices": len(snap.Devices),
	}).Info("Starting audit")

	report := &Report{
		Site:          snap.Site,
		GeneratedAt:   snap.CollectedAt,
		Source:        snap.Source,
		APCount:       snap.APCount(),
		DFSEventCount: analysis.CountDFSEvents(snap.Events),
		Validation:    validator.ValidateSnapshot(snap),
		Health:        a.health.Analyze(snap),
		Trends:        a.trends.Run(snap),
		RadioPlan:     a.radio.Plan(snap.Devices),
		Roaming:       a.roamingReport(snap),
		System:        metrics.CollectSystemInfo(),
	}

	a.log.WithFields(logrus.Fields{
		"score":     report.Health.Score,
		"roams":     report.Roaming.EventCount,
		"grade":     report.Health.Grade,
		"anomalies": report.AnomalyCount(),
		"headline":  report.Headline(),
	}).Info("Audit complete")

	return report
}

// roamingReport derives client hops from association history and the min-RSSI
// threshold the configured strategy would set
func (a *Auditor) roamingReport(snap *types.TelemetrySnapshot) *RoamingReport {
	events := analysis.RoamingEvents(snap.ClientHistory)

	report := &RoamingReport{
		Strategy:   a.cfg.RSSI.Strategy,
		EventCount: len(events),
	}
	if n := len(events); n > maxRecentHops {
		events = events[n-maxRecentHops:]
	}
	report.RecentHops = events

	minRSSI, err := analysis.MinRSSIRecommendation(snap.Clients, a.cfg.RSSI.Strategy)
	if err != nil {
		a.log.WithError(err).Warn("Skipping min-RSSI recommendation")
		return report
	}
	report.MinRSSIDBM = minRSSI
	return report
}

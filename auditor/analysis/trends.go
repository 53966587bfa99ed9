package analysis

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/types"
)

// Config holds the tunables of the trend engine. Values are injected from the
// configuration layer; the primitives themselves carry no defaults.
type Config struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	DegradingThreshold float64 `json:"degrading_threshold" yaml:"degrading_threshold"`
	ImprovingThreshold float64 `json:"improving_threshold" yaml:"improving_threshold"`
	RollingWindow      int     `json:"rolling_window" yaml:"rolling_window"`
	AnomalySigma       float64 `json:"anomaly_sigma" yaml:"anomaly_sigma"`
}

// DefaultConfig returns the documented engine defaults
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		DegradingThreshold: -0.5,
		ImprovingThreshold: 0.5,
		RollingWindow:      3,
		AnomalySigma:       2.0,
	}
}

// sparklineLength caps sparklines at the most recent points
const sparklineLength = 20

// flaggedClientLimit caps the flagged-client list in the report
const flaggedClientLimit = 10

// disabledHeadline is the stub headline when the engine is switched off
const disabledHeadline = "Trend analysis disabled."

// MetricTrend pairs a classified slope with the metric's polarity. Direction
// is the display label after polarity is applied.
type MetricTrend struct {
	Trend          Trend   `json:"trend"`
	Slope          float64 `json:"slope"`
	HigherIsBetter bool    `json:"higher_is_better"`
	Direction      string  `json:"direction"`
}

// APTrend summarizes one access point's trajectory
type APTrend struct {
	MAC                   string         `json:"mac"`
	SatisfactionTrend     Trend          `json:"satisfaction_trend"`
	SatisfactionSlope     float64        `json:"satisfaction_slope"`
	ClientCountTrend      Trend          `json:"client_count_trend"`
	ClientCountSlope      float64        `json:"client_count_slope"`
	SatisfactionSparkline []float64      `json:"satisfaction_sparkline"`
	ClientCountSparkline  []float64      `json:"client_count_sparkline"`
	Anomalies             []AnomalyEvent `json:"anomalies,omitempty"`
	DataPoints            int            `json:"data_points"`
}

// NetworkTrend summarizes site-wide trajectories
type NetworkTrend struct {
	ClientCount  MetricTrend    `json:"client_count"`
	Satisfaction MetricTrend    `json:"satisfaction"`
	DFSEvents    MetricTrend    `json:"dfs_events"`
	Anomalies    []AnomalyEvent `json:"anomalies,omitempty"`
}

// ClientTrend is one client whose satisfaction is moving
type ClientTrend struct {
	MAC                string  `json:"mac"`
	Trend              Trend   `json:"trend"`
	Slope              float64 `json:"slope"`
	LatestSatisfaction float64 `json:"latest_satisfaction"`
	DataPoints         int     `json:"data_points"`
}

// TrendReport is the full output of one trend analysis pass
type TrendReport struct {
	Enabled        bool                `json:"enabled"`
	Network        *NetworkTrend       `json:"network,omitempty"`
	AccessPoints   map[string]*APTrend `json:"access_points,omitempty"`
	FlaggedClients []ClientTrend       `json:"flagged_clients,omitempty"`
	Headline       string              `json:"headline"`
}

// TrendAnalyzer turns a telemetry snapshot into a trend report. Analysis is
// pure: identical snapshots produce identical reports, and inputs are never
// mutated.
type TrendAnalyzer struct {
	cfg Config
	log logrus.FieldLogger
}

// NewTrendAnalyzer creates a trend analyzer with the given engine config
func NewTrendAnalyzer(cfg Config, log logrus.FieldLogger) *TrendAnalyzer {
	return &TrendAnalyzer{
		cfg: cfg,
		log: log.WithField("component", "trend-analyzer"),
	}
}

// Run performs the full analysis pass over a snapshot
func (ta *TrendAnalyzer) Run(snap *types.TelemetrySnapshot) *TrendReport {
	if !ta.cfg.Enabled {
		ta.log.Debug("Trend analysis disabled by config")
		return &TrendReport{Enabled: false, Headline: disabledHeadline}
	}

	ta.log.WithFields(logrus.Fields{
		"site":             snap.Site,
		"daily_ap_stats":   len(snap.DailyAPStats),
		"hourly_ap_stats":  len(snap.HourlyAPStats),
		"daily_user_stats": len(snap.DailyUserStats),
		"events":           len(snap.Events),
	}).Info("Running trend analysis")

	flagged := ta.AnalyzeClients(snap.DailyUserStats)
	if len(flagged) > flaggedClientLimit {
		flagged = flagged[:flaggedClientLimit]
	}

	report := &TrendReport{
		Enabled:        true,
		Network:        ta.AnalyzeNetwork(snap.DailyAPStats, snap.Events),
		AccessPoints:   ta.AnalyzeAccessPoints(snap.HourlyAPStats, snap.DailyAPStats, snap.Devices),
		FlaggedClients: flagged,
	}
	report.Headline = ta.headline(report)

	ta.log.WithFields(logrus.Fields{
		"access_points":   len(report.AccessPoints),
		"flagged_clients": len(report.FlaggedClients),
		"anomalies":       len(report.Network.Anomalies),
	}).Info("Trend analysis complete")

	return report
}

// AnalyzeAccessPoints computes per-AP trends from daily records, using hourly
// records for sparklines when the controller retained them. Results are keyed
// by display name, falling back to the MAC.
func (ta *TrendAnalyzer) AnalyzeAccessPoints(hourly, daily []types.StatRecord, devices []types.Device) map[string]*APTrend {
	dailyByAP := GroupByEntity(daily)
	hourlyByAP := GroupByEntity(hourly)

	names := make(map[string]string, len(devices))
	for _, d := range devices {
		if d.Name != "" {
			names[d.MAC] = d.Name
		}
	}

	result := make(map[string]*APTrend, len(dailyByAP))
	for mac, recs := range dailyByAP {
		ap := ta.analyzeAP(mac, recs, hourlyByAP[mac])
		name := names[mac]
		if name == "" {
			name = mac
		}
		result[name] = ap
	}
	return result
}

func (ta *TrendAnalyzer) analyzeAP(mac string, daily, hourly []types.StatRecord) *APTrend {
	satDaily := ExtractPoints(daily, "satisfaction")
	staDaily := ExtractPoints(daily, "num_sta")

	satSlope := LinearSlope(satDaily)
	staSlope := LinearSlope(staDaily)

	sparkSource := hourly
	if len(sparkSource) == 0 {
		sparkSource = daily
	}

	return &APTrend{
		MAC:                   mac,
		SatisfactionTrend:     ta.classify(satSlope),
		SatisfactionSlope:     satSlope,
		ClientCountTrend:      ta.classify(staSlope),
		ClientCountSlope:      staSlope,
		SatisfactionSparkline: ta.sparkline(ExtractPoints(sparkSource, "satisfaction")),
		ClientCountSparkline:  ta.sparkline(ExtractPoints(sparkSource, "num_sta")),
		Anomalies:             DetectAnomalies(satDaily, ta.cfg.AnomalySigma, "satisfaction"),
		DataPoints:            len(satDaily),
	}
}

// AnalyzeNetwork computes site-wide client count, satisfaction, and DFS event
// trends from daily AP stats and the raw event stream
func (ta *TrendAnalyzer) AnalyzeNetwork(dailyAP, events []types.StatRecord) *NetworkTrend {
	clientPoints := DailySum(dailyAP, "num_sta")
	satPoints := DailyAverage(dailyAP, "satisfaction")
	dfsPoints := dfsEventsPerDay(events)

	clientSlope := LinearSlope(clientPoints)
	satSlope := LinearSlope(satPoints)
	dfsSlope := LinearSlope(dfsPoints)

	return &NetworkTrend{
		ClientCount:  ta.metricTrend(clientSlope, true),
		Satisfaction: ta.metricTrend(satSlope, true),
		DFSEvents:    ta.metricTrend(dfsSlope, false),
		Anomalies:    DetectAnomalies(satPoints, ta.cfg.AnomalySigma, "satisfaction"),
	}
}

// AnalyzeClients computes per-client satisfaction trends, keeping only clients
// that are actually moving, worst first
func (ta *TrendAnalyzer) AnalyzeClients(dailyUser []types.StatRecord) []ClientTrend {
	byClient := GroupByEntity(dailyUser)

	var clients []ClientTrend
	for mac, recs := range byClient {
		points := ExtractPoints(recs, "satisfaction")
		if len(points) < 2 {
			continue
		}
		slope := LinearSlope(points)
		trend := ta.classify(slope)
		if trend == TrendStable {
			continue
		}
		clients = append(clients, ClientTrend{
			MAC:                mac,
			Trend:              trend,
			Slope:              slope,
			LatestSatisfaction: round1(points[len(points)-1].Value),
			DataPoints:         len(points),
		})
	}

	sort.Slice(clients, func(i, j int) bool {
		if clients[i].Slope != clients[j].Slope {
			return clients[i].Slope < clients[j].Slope
		}
		return clients[i].MAC < clients[j].MAC
	})
	return clients
}

// WorstAP returns the AP with the most negative satisfaction slope. Ties go to
// the lexicographically smallest name so repeated runs agree.
func (r *TrendReport) WorstAP() (string, *APTrend) {
	var worstName string
	var worst *APTrend
	for name, ap := range r.AccessPoints {
		if worst == nil || ap.SatisfactionSlope < worst.SatisfactionSlope ||
			(ap.SatisfactionSlope == worst.SatisfactionSlope && name < worstName) {
			worstName = name
			worst = ap
		}
	}
	return worstName, worst
}

func (ta *TrendAnalyzer) headline(report *TrendReport) string {
	var head string
	switch report.Network.Satisfaction.Trend {
	case TrendDegrading:
		head = "Network satisfaction is declining."
	case TrendImproving:
		head = "Network satisfaction is improving."
	default:
		head = "Network satisfaction is stable."
	}

	if name, worst := report.WorstAP(); worst != nil && worst.SatisfactionTrend == TrendDegrading {
		head += " Worst AP: " + name + " (satisfaction falling)."
	}
	return head
}

func (ta *TrendAnalyzer) classify(slope float64) Trend {
	return ClassifyTrend(slope, ta.cfg.DegradingThreshold, ta.cfg.ImprovingThreshold)
}

func (ta *TrendAnalyzer) metricTrend(slope float64, higherIsBetter bool) MetricTrend {
	trend := ta.classify(slope)
	return MetricTrend{
		Trend:          trend,
		Slope:          slope,
		HigherIsBetter: higherIsBetter,
		Direction:      trend.DirectionLabel(higherIsBetter),
	}
}

func (ta *TrendAnalyzer) sparkline(points []TimeSeriesPoint) []float64 {
	smoothed := RollingAverage(points, ta.cfg.RollingWindow)
	if len(smoothed) > sparklineLength {
		smoothed = smoothed[len(smoothed)-sparklineLength:]
	}
	return smoothed
}

// CountDFSEvents returns how many events in the stream are radar related
func CountDFSEvents(events []types.StatRecord) int {
	count := 0
	for _, ev := range events {
		if isDFSEvent(ev) {
			count++
		}
	}
	return count
}

// dfsEventsPerDay counts radar-related events per UTC day, sorted ascending.
// Events without a parseable timestamp land in the epoch-0 bucket.
func dfsEventsPerDay(events []types.StatRecord) []TimeSeriesPoint {
	perDay := make(map[float64]float64)
	for _, ev := range events {
		if !isDFSEvent(ev) {
			continue
		}
		perDay[DayBucket(EventTimestamp(ev))]++
	}
	points := make([]TimeSeriesPoint, 0, len(perDay))
	for day, count := range perDay {
		points = append(points, TimeSeriesPoint{Timestamp: day, Value: count})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points
}

// isDFSEvent matches radar detection events across controller versions, which
// disagree on event keys ("EVT_AP_DFS_Radar_Detected", "dfs-channel-change")
// and sometimes only mention radar in the message body.
func isDFSEvent(rec types.StatRecord) bool {
	for _, field := range []string{"key", "msg", "message"} {
		if raw, ok := rec[field]; ok {
			if s, ok := raw.(string); ok {
				lower := strings.ToLower(s)
				if strings.Contains(lower, "dfs") || strings.Contains(lower, "radar") {
					return true
				}
			}
		}
	}
	return false
}

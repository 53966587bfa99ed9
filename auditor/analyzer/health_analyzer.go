package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/analysis"
	"github.com/unifi-audit/auditor/types"
)

// HealthAnalyzer scores the current state of a network on a 0-100 scale
type HealthAnalyzer struct {
	weights   HealthWeights
	rssiFloor float64
	log       logrus.FieldLogger
}

// HealthWeights defines how much each component contributes to the score
type HealthWeights struct {
	Satisfaction float64
	Airtime      float64
	Coverage     float64
	Stability    float64
}

// NewHealthAnalyzer creates a health analyzer. rssiFloor is the dBm boundary
// under which a client counts as poorly covered.
func NewHealthAnalyzer(rssiFloor float64, log logrus.FieldLogger) *HealthAnalyzer {
	return &HealthAnalyzer{
		weights: HealthWeights{
			Satisfaction: 0.40,
			Airtime:      0.25,
			Coverage:     0.20,
			Stability:    0.15,
		},
		rssiFloor: rssiFloor,
		log:       log.WithField("component", "health-analyzer"),
	}
}

// APHealth is the latest-state summary for one access point
type APHealth struct {
	MAC          string  `json:"mac"`
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Grade        string  `json:"grade"`
	Satisfaction float64 `json:"satisfaction"`
	Clients      int     `json:"clients"`
}

// HealthReport is the scored state of a site at audit time
type HealthReport struct {
	Score           float64    `json:"score"`
	Grade           string     `json:"grade"`
	AvgSatisfaction float64    `json:"avg_satisfaction"`
	CoveragePct     float64    `json:"coverage_pct"`
	RetryPct        float64    `json:"retry_pct"`
	StabilityEvents int        `json:"stability_events"`
	TotalClients    int        `json:"total_clients"`
	AccessPoints    []APHealth `json:"access_points"`
	Recommendations []string   `json:"recommendations"`
}

// Analyze scores a snapshot. Components degrade to a neutral 50 when the
// telemetry needed for them is absent, so thin exports still score.
func (ha *HealthAnalyzer) Analyze(snap *types.TelemetrySnapshot) *HealthReport {
	ha.log.WithFields(logrus.Fields{
		"site":    snap.Site,
		"devices": len(snap.Devices),
		"clients": len(snap.Clients),
	}).Info("Scoring network health")

	satScore, avgSat := ha.satisfactionScore(snap.DailyAPStats)
	airScore, retryPct := ha.airtimeScore(snap.Clients)
	covScore, covered := ha.coverageScore(snap.Clients)
	stabScore, events := ha.stabilityScore(snap.Events)

	report := &HealthReport{
		Score: ha.weights.Satisfaction*satScore +
			ha.weights.Airtime*airScore +
			ha.weights.Coverage*covScore +
			ha.weights.Stability*stabScore,
		AvgSatisfaction: avgSat,
		CoveragePct:     covered,
		RetryPct:        retryPct,
		StabilityEvents: events,
		TotalClients:    len(snap.Clients),
		AccessPoints:    ha.apHealth(snap),
	}
	report.Grade = GradeFor(report.Score)
	report.Recommendations = ha.recommendations(report)

	ha.log.WithFields(logrus.Fields{
		"score": report.Score,
		"grade": report.Grade,
	}).Info("Health scoring complete")

	return report
}

// satisfactionScore uses the most recent daily network satisfaction average,
// which is already on a 0-100 scale
func (ha *HealthAnalyzer) satisfactionScore(dailyAP []types.StatRecord) (score, latest float64) {
	points := analysis.DailyAverage(dailyAP, "satisfaction")
	if len(points) == 0 {
		return 50, 0
	}
	latest = points[len(points)-1].Value
	return clampScore(latest), latest
}

// airtimeScore penalizes transmit retry pressure across connected clients
func (ha *HealthAnalyzer) airtimeScore(clients []types.StatRecord) (score, retryPct float64) {
	var sum float64
	var n int
	for _, rec := range clients {
		for _, field := range []string{"tx_retries_pct", "wifi_tx_retries_percentage"} {
			if raw, ok := rec[field]; ok {
				if v, ok := asFloat(raw); ok {
					sum += v
					n++
					break
				}
			}
		}
	}
	if n == 0 {
		return 50, 0
	}
	retryPct = sum / float64(n)
	return clampScore(100 - 2.5*retryPct), retryPct
}

// coverageScore is the share of clients at or above the RSSI floor
func (ha *HealthAnalyzer) coverageScore(clients []types.StatRecord) (score, coveredPct float64) {
	var total, covered int
	for _, rec := range clients {
		signal, ok := analysis.SignalDBM(rec)
		if !ok {
			continue
		}
		total++
		if signal >= ha.rssiFloor {
			covered++
		}
	}
	if total == 0 {
		return 50, 0
	}
	coveredPct = float64(covered) / float64(total) * 100
	return coveredPct, coveredPct
}

// stabilityScore penalizes radar hits and AP restarts in the event window
func (ha *HealthAnalyzer) stabilityScore(events []types.StatRecord) (score float64, count int) {
	for _, rec := range events {
		if eventMentions(rec, "dfs", "radar", "restart") {
			count++
		}
	}
	return clampScore(100 - 5*float64(count)), count
}

// apHealth summarizes each AP from its most recent daily record
func (ha *HealthAnalyzer) apHealth(snap *types.TelemetrySnapshot) []APHealth {
	byAP := analysis.GroupByEntity(snap.DailyAPStats)

	aps := make([]APHealth, 0, len(byAP))
	for mac, recs := range byAP {
		latest := recs[len(recs)-1]
		sat := 0.0
		if v, ok := asFloat(latest["satisfaction"]); ok {
			sat = v
		}
		clients := 0
		if v, ok := asFloat(latest["num_sta"]); ok {
			clients = int(v)
		}
		aps = append(aps, APHealth{
			MAC:          mac,
			Name:         snap.APName(mac),
			Score:        clampScore(sat),
			Grade:        GradeFor(clampScore(sat)),
			Satisfaction: sat,
			Clients:      clients,
		})
	}

	// Worst first; ties by name so output is stable across runs
	sort.Slice(aps, func(i, j int) bool {
		if aps[i].Score != aps[j].Score {
			return aps[i].Score < aps[j].Score
		}
		return aps[i].Name < aps[j].Name
	})
	return aps
}

func (ha *HealthAnalyzer) recommendations(report *HealthReport) []string {
	var recs []string

	if len(report.AccessPoints) > 0 {
		worst := report.AccessPoints[0]
		if worst.Score < 60 {
			recs = append(recs, fmt.Sprintf(
				"AP %s scores %.0f (%s); inspect channel utilization and client load there first",
				worst.Name, worst.Score, worst.Grade))
		}
	}
	if report.CoveragePct > 0 && report.CoveragePct < 90 {
		recs = append(recs, fmt.Sprintf(
			"%.0f%% of clients sit below the RSSI floor; consider min-RSSI enforcement or adding an AP",
			100-report.CoveragePct))
	}
	if report.RetryPct > 15 {
		recs = append(recs, fmt.Sprintf(
			"Transmit retries average %.1f%%; check for co-channel interference", report.RetryPct))
	}
	if report.StabilityEvents > 3 {
		recs = append(recs, fmt.Sprintf(
			"%d radar/restart events in the window; review DFS channel selection", report.StabilityEvents))
	}
	if len(recs) == 0 {
		recs = append(recs, "Network health is good; no action needed")
	}
	return recs
}

// GradeFor maps a 0-100 score to a letter grade
func GradeFor(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func asFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func eventMentions(rec types.StatRecord, terms ...string) bool {
	for _, field := range []string{"key", "msg", "message"} {
		raw, ok := rec[field]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return true
			}
		}
	}
	return false
}

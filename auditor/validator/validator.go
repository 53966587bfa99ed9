package validator

import (
	"fmt"
	"regexp"
	"time"

	"github.com/unifi-audit/auditor/analysis"
	"github.com/unifi-audit/auditor/types"
)

// macPattern matches colon-separated MAC addresses
var macPattern = regexp.MustCompile(`^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$`)

// earliestPlausible is 2015-01-01T00:00:00Z. Controller records older than
// this predate the satisfaction metric and indicate a broken export.
const earliestPlausible = 1420070400

// futureSlack tolerates collector clock skew
const futureSlack = 48 * time.Hour

// Issue describes one structural problem found in a snapshot
type Issue struct {
	Section string `json:"section"`
	Check   string `json:"check"`
	Detail  string `json:"detail"`
}

// Report summarizes the structural validation of a snapshot
type Report struct {
	Valid   bool    `json:"valid"`
	Devices int     `json:"devices"`
	APs     int     `json:"aps"`
	Clients int     `json:"clients"`
	Records int     `json:"records"`
	Issues  []Issue `json:"issues,omitempty"`
}

func (r *Report) add(section, check, format string, args ...interface{}) {
	r.Valid = false
	r.Issues = append(r.Issues, Issue{
		Section: section,
		Check:   check,
		Detail:  fmt.Sprintf(format, args...),
	})
}

// Summary returns a one-line description of the validation outcome
func (r *Report) Summary() string {
	if r.Valid {
		return fmt.Sprintf("snapshot valid: %d devices, %d clients, %d records", r.Devices, r.Clients, r.Records)
	}
	return fmt.Sprintf("snapshot has %d issues across %d devices, %d clients, %d records",
		len(r.Issues), r.Devices, r.Clients, r.Records)
}

// ValidateSnapshot runs structural checks over a parsed snapshot: MAC
// formats, duplicate identities, timestamp plausibility and section presence.
// Schema conformance of the raw export is a separate concern handled before
// parsing.
func ValidateSnapshot(snap *types.TelemetrySnapshot) *Report {
	report := &Report{Valid: true}
	if snap == nil {
		report.add("snapshot", "presence", "snapshot is nil")
		return report
	}

	report.Devices = len(snap.Devices)
	report.APs = snap.APCount()
	report.Clients = len(snap.Clients)
	report.Records = len(snap.HourlyAPStats) + len(snap.DailyAPStats) +
		len(snap.DailyUserStats) + len(snap.Events) + len(snap.ClientHistory)

	checkDevices(snap, report)
	checkClients(snap, report)

	latestPlausible := float64(time.Now().Add(futureSlack).Unix())
	checkTimestamps("hourly_ap_stats", snap.HourlyAPStats, latestPlausible, report)
	checkTimestamps("daily_ap_stats", snap.DailyAPStats, latestPlausible, report)
	checkTimestamps("daily_user_stats", snap.DailyUserStats, latestPlausible, report)
	checkTimestamps("client_history", snap.ClientHistory, latestPlausible, report)

	if len(snap.Devices) == 0 {
		report.add("devices", "empty_section", "export contains no devices")
	}
	if len(snap.DailyAPStats) == 0 {
		report.add("daily_ap_stats", "empty_section", "export contains no daily AP statistics")
	}

	return report
}

func checkDevices(snap *types.TelemetrySnapshot, report *Report) {
	seen := make(map[string]bool, len(snap.Devices))
	for _, device := range snap.Devices {
		if !macPattern.MatchString(device.MAC) {
			report.add("devices", "mac_format", "device %q has malformed MAC %q", device.DisplayName(), device.MAC)
			continue
		}
		if seen[device.MAC] {
			report.add("devices", "duplicate_mac", "device MAC %s appears more than once", device.MAC)
		}
		seen[device.MAC] = true
	}
}

func checkClients(snap *types.TelemetrySnapshot, report *Report) {
	seen := make(map[string]bool, len(snap.Clients))
	for _, client := range snap.Clients {
		mac, _ := client["mac"].(string)
		if mac == "" {
			report.add("clients", "mac_format", "client record without a MAC address")
			continue
		}
		if !macPattern.MatchString(mac) {
			report.add("clients", "mac_format", "client has malformed MAC %q", mac)
			continue
		}
		if seen[mac] {
			report.add("clients", "duplicate_mac", "client MAC %s appears more than once", mac)
		}
		seen[mac] = true
	}
}

// checkTimestamps flags a section once, with a count, rather than spamming an
// issue per record.
func checkTimestamps(section string, records []types.StatRecord, latestPlausible float64, report *Report) {
	implausible := 0
	for _, record := range records {
		raw, ok := record["time"]
		if !ok {
			raw, ok = record["timestamp"]
		}
		if !ok {
			continue
		}
		ts, ok := rawSeconds(raw)
		if !ok {
			continue
		}
		if ts < earliestPlausible || ts > latestPlausible {
			implausible++
		}
	}
	if implausible > 0 {
		report.add(section, "timestamp_range", "%d of %d records have implausible timestamps", implausible, len(records))
	}
}

func rawSeconds(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return analysis.NormalizeTimestamp(v), true
	case int:
		return analysis.NormalizeTimestamp(float64(v)), true
	case int64:
		return analysis.NormalizeTimestamp(float64(v)), true
	}
	return 0, false
}

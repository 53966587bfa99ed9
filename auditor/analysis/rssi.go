package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/unifi-audit/auditor/types"
)

// RoamingEvent is one client hop between access points, reconstructed from
// association history
type RoamingEvent struct {
	ClientMAC  string  `json:"client_mac"`
	Timestamp  float64 `json:"timestamp"`
	FromAP     string  `json:"from_ap"`
	ToAP       string  `json:"to_ap"`
	RSSIBefore float64 `json:"rssi_before"`
	RSSIAfter  float64 `json:"rssi_after"`
	SignalGain float64 `json:"signal_gain"`
}

// RoamingEvents reconstructs hops for all clients in a mixed association
// history. Events come back sorted by timestamp, ties by client MAC.
func RoamingEvents(history []types.StatRecord) []RoamingEvent {
	byClient := GroupByEntity(history)

	var events []RoamingEvent
	for mac, recs := range byClient {
		events = append(events, clientRoamingEvents(mac, recs)...)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp != events[j].Timestamp {
			return events[i].Timestamp < events[j].Timestamp
		}
		return events[i].ClientMAC < events[j].ClientMAC
	})
	return events
}

// clientRoamingEvents diffs consecutive time-sorted history entries of one
// client: a change of serving AP between adjacent records is one hop.
func clientRoamingEvents(mac string, recs []types.StatRecord) []RoamingEvent {
	var events []RoamingEvent
	var prev types.StatRecord
	for _, rec := range recs {
		ap, ok := servingAP(rec)
		if !ok {
			continue
		}
		if prev != nil {
			prevAP, _ := servingAP(prev)
			if ap != prevAP {
				before, _ := SignalDBM(prev)
				after, _ := SignalDBM(rec)
				ts, _ := recordTimestamp(rec)
				events = append(events, RoamingEvent{
					ClientMAC:  mac,
					Timestamp:  ts,
					FromAP:     prevAP,
					ToAP:       ap,
					RSSIBefore: before,
					RSSIAfter:  after,
					SignalGain: after - before,
				})
			}
		}
		prev = rec
	}
	return events
}

func servingAP(rec types.StatRecord) (string, bool) {
	for _, field := range []string{"ap_mac", "ap"} {
		if raw, ok := rec[field]; ok {
			if s, ok := raw.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// SignalDBM extracts a client's signal in dBm. Controllers report either
// "signal" (dBm, negative) or "rssi" (positive offset from the noise floor,
// roughly signal + 95).
func SignalDBM(rec types.StatRecord) (float64, bool) {
	if raw, ok := rec["signal"]; ok {
		if v, ok := numericValue(raw); ok {
			return v, true
		}
	}
	if raw, ok := rec["rssi"]; ok {
		if v, ok := numericValue(raw); ok {
			return v - 95, true
		}
	}
	return 0, false
}

// Min-RSSI strategies pick a percentile of the observed client signal
// distribution: the recommendation cuts loose the weakest tail so those
// clients roam instead of clinging to a distant AP.
var minRSSIPercentiles = map[string]float64{
	"conservative": 5,
	"balanced":     15,
	"aggressive":   30,
}

// UniFi accepts min-RSSI settings in roughly this range; recommendations
// outside it do more harm than good.
const (
	minRSSIFloorDBM   = -85
	minRSSICeilingDBM = -67
)

// MinRSSIRecommendation recommends a per-AP minimum RSSI threshold in dBm from
// observed client signals. Unknown strategy names are the one input error this
// package reports; a history without signal observations yields 0.
func MinRSSIRecommendation(clients []types.StatRecord, strategy string) (int, error) {
	percentile, ok := minRSSIPercentiles[strategy]
	if !ok {
		return 0, fmt.Errorf("unknown min-rssi strategy %q (want conservative, balanced, or aggressive)", strategy)
	}

	var signals []float64
	for _, rec := range clients {
		if v, ok := SignalDBM(rec); ok {
			signals = append(signals, v)
		}
	}
	if len(signals) == 0 {
		return 0, nil
	}

	rec := Percentile(signals, percentile)
	if rec < minRSSIFloorDBM {
		rec = minRSSIFloorDBM
	}
	if rec > minRSSICeilingDBM {
		rec = minRSSICeilingDBM
	}
	return int(math.Round(rec)), nil
}

package analysis

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/unifi-audit/auditor/types"
)

// TimeSeriesPoint is one (timestamp, value) observation. Timestamps are epoch
// seconds; fractional seconds survive millisecond normalization.
type TimeSeriesPoint struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// millisecond epochs are 13 digits, second epochs 10. Anything above this
// cutoff is treated as milliseconds.
const msEpochCutoff = 1e12

// NormalizeTimestamp converts a raw controller timestamp to epoch seconds.
// Controllers mix millisecond and second epochs across stat endpoints.
func NormalizeTimestamp(raw float64) float64 {
	if raw > msEpochCutoff {
		return raw / 1000
	}
	return raw
}

// DayBucket truncates an epoch-seconds timestamp to its UTC day boundary
func DayBucket(ts float64) float64 {
	return math.Floor(ts/86400) * 86400
}

// numericValue coerces the numeric shapes that appear in decoded stat records
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// recordTimestamp pulls the normalized timestamp out of a stat record
func recordTimestamp(rec types.StatRecord) (float64, bool) {
	for _, field := range []string{"time", "timestamp"} {
		if raw, ok := rec[field]; ok {
			if ts, ok := numericValue(raw); ok {
				return NormalizeTimestamp(ts), true
			}
		}
	}
	return 0, false
}

// ExtractPoints pulls (timestamp, field) pairs from stat records. Records
// missing the timestamp or the field are skipped; input order is preserved.
func ExtractPoints(records []types.StatRecord, field string) []TimeSeriesPoint {
	points := make([]TimeSeriesPoint, 0, len(records))
	for _, rec := range records {
		ts, ok := recordTimestamp(rec)
		if !ok {
			continue
		}
		raw, ok := rec[field]
		if !ok {
			continue
		}
		value, ok := numericValue(raw)
		if !ok {
			continue
		}
		points = append(points, TimeSeriesPoint{Timestamp: ts, Value: value})
	}
	return points
}

// defaultIDFields is the identifier probe order for entity grouping
var defaultIDFields = []string{"mac", "ap"}

// GroupByEntity buckets stat records by the first present identifier field.
// Records carrying none of the identifier fields are dropped. Each entity's
// records come back sorted by timestamp.
func GroupByEntity(records []types.StatRecord, idFields ...string) map[string][]types.StatRecord {
	if len(idFields) == 0 {
		idFields = defaultIDFields
	}
	groups := make(map[string][]types.StatRecord)
	for _, rec := range records {
		for _, field := range idFields {
			if raw, ok := rec[field]; ok {
				if id, ok := raw.(string); ok && id != "" {
					groups[id] = append(groups[id], rec)
					break
				}
			}
		}
	}
	for _, recs := range groups {
		sort.SliceStable(recs, func(i, j int) bool {
			ti, _ := recordTimestamp(recs[i])
			tj, _ := recordTimestamp(recs[j])
			return ti < tj
		})
	}
	return groups
}

// DailySum buckets a field by UTC day and sums it, sorted ascending by day
func DailySum(records []types.StatRecord, field string) []TimeSeriesPoint {
	return dailyAggregate(records, field, false)
}

// DailyAverage buckets a field by UTC day and averages it, sorted ascending by day
func DailyAverage(records []types.StatRecord, field string) []TimeSeriesPoint {
	return dailyAggregate(records, field, true)
}

func dailyAggregate(records []types.StatRecord, field string, average bool) []TimeSeriesPoint {
	sums := make(map[float64]float64)
	counts := make(map[float64]int)
	for _, rec := range records {
		ts, ok := recordTimestamp(rec)
		if !ok {
			continue
		}
		raw, ok := rec[field]
		if !ok {
			continue
		}
		value, ok := numericValue(raw)
		if !ok {
			continue
		}
		day := DayBucket(ts)
		sums[day] += value
		counts[day]++
	}
	points := make([]TimeSeriesPoint, 0, len(sums))
	for day, sum := range sums {
		value := sum
		if average {
			value = sum / float64(counts[day])
		}
		points = append(points, TimeSeriesPoint{Timestamp: day, Value: value})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points
}

// event timestamp layouts tried after RFC3339. Controllers emit zone-less
// datetimes on some firmware lines.
var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// EventTimestamp extracts an event's timestamp as epoch seconds. Events carry
// either a numeric epoch (ms or s) or an ISO-8601 datetime string; anything
// unparseable degrades to epoch 0 rather than an error.
func EventTimestamp(rec types.StatRecord) float64 {
	for _, field := range []string{"time", "datetime", "timestamp"} {
		raw, ok := rec[field]
		if !ok {
			continue
		}
		if ts, ok := numericValue(raw); ok {
			return NormalizeTimestamp(ts)
		}
		if s, ok := raw.(string); ok {
			for _, layout := range eventTimeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return float64(t.Unix())
				}
			}
		}
	}
	return 0
}

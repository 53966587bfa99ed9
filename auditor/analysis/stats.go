package analysis

import (
	"math"
	"sort"
)

// Trend classifies the direction of a metric's slope
type Trend string

const (
	// TrendImproving marks a slope at or above the improving threshold
	TrendImproving Trend = "improving"
	// TrendDegrading marks a slope at or below the degrading threshold
	TrendDegrading Trend = "degrading"
	// TrendStable marks a slope between the thresholds
	TrendStable Trend = "stable"
)

// DirectionLabel maps the slope-sign trend through a metric's polarity to the
// label shown in reports. Higher-is-better metrics keep the quality words; for
// higher-is-worse metrics (DFS event counts) the label states the count
// direction instead, since a rising count reads as "improving" otherwise.
func (t Trend) DirectionLabel(higherIsBetter bool) string {
	if higherIsBetter {
		return string(t)
	}
	switch t {
	case TrendImproving:
		return "increasing"
	case TrendDegrading:
		return "decreasing"
	default:
		return "stable"
	}
}

// AnomalyEvent is one observation flagged as a statistical outlier
type AnomalyEvent struct {
	Timestamp float64 `json:"timestamp"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Expected  float64 `json:"expected"`
	Deviation float64 `json:"deviation"` // distance from the mean, in sigmas
}

// LinearSlope fits an ordinary least squares line through the points and
// returns its slope in metric units per calendar day. Timestamps are
// normalized to [0,1] over the observed span before fitting, which keeps the
// regression conditioned for epoch-scale x values; the normalized slope is
// rescaled back through the span. Fewer than two points, a zero time span, or
// degenerate x variance all yield 0.
func LinearSlope(points []TimeSeriesPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	minT, maxT := points[0].Timestamp, points[0].Timestamp
	for _, p := range points[1:] {
		if p.Timestamp < minT {
			minT = p.Timestamp
		}
		if p.Timestamp > maxT {
			maxT = p.Timestamp
		}
	}
	span := maxT - minT
	if span == 0 {
		return 0
	}

	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := (p.Timestamp - minT) / span
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slopeNorm := (n*sumXY - sumX*sumY) / denom
	return slopeNorm / span * 86400
}

// DetectAnomalies flags points deviating from the series mean by more than
// sigma standard deviations. The standard deviation is the population form
// (divide by N): the series is the entire window under audit, not a sample.
// Fewer than three points or a flat series yield no anomalies. Flagged points
// keep their input order.
func DetectAnomalies(points []TimeSeriesPoint, sigma float64, metric string) []AnomalyEvent {
	if len(points) < 3 {
		return nil
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	mean := meanOf(values)
	std := populationStdDev(values, mean)
	if std == 0 {
		return nil
	}

	var anomalies []AnomalyEvent
	for _, p := range points {
		deviation := math.Abs(p.Value - mean)
		if deviation > sigma*std {
			anomalies = append(anomalies, AnomalyEvent{
				Timestamp: p.Timestamp,
				Metric:    metric,
				Value:     round2(p.Value),
				Expected:  round2(mean),
				Deviation: round2(deviation / std),
			})
		}
	}
	return anomalies
}

// RollingAverage smooths the series with a trailing window. The window is
// left-truncated at the start, so the output always has the input's length and
// the first element averages only itself. Values are rounded to two decimals;
// a window of one (or less) is the identity.
func RollingAverage(points []TimeSeriesPoint, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(points))
	for i := range points {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for _, p := range points[start : i+1] {
			sum += p.Value
		}
		out[i] = round2(sum / float64(i+1-start))
	}
	return out
}

// ClassifyTrend buckets a per-day slope against the configured thresholds.
// Both comparisons are inclusive, so a slope sitting exactly on a threshold
// takes that threshold's label.
func ClassifyTrend(slope, degradingThreshold, improvingThreshold float64) Trend {
	switch {
	case slope <= degradingThreshold:
		return TrendDegrading
	case slope >= improvingThreshold:
		return TrendImproving
	default:
		return TrendStable
	}
}

// Percentile computes the p-th percentile (0..100) with linear interpolation
// between closest ranks. Empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

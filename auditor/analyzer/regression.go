package analyzer

import (
	"fmt"

	"github.com/unifi-audit/auditor/types"
)

// Regression thresholds between two runs. Small wobbles in score and
// satisfaction are normal day to day; these mark movements worth flagging.
const (
	scoreRegressionDelta        = 5.0
	satisfactionRegressionDelta = 5.0
	anomalyRegressionDelta      = 3
)

// CompareRuns diffs a run against a baseline run and flags whether the network
// regressed or improved materially
func CompareRuns(current, baseline *types.AuditRun) *types.RunComparison {
	cmp := &types.RunComparison{
		RunID:             current.ID,
		BaselineRunID:     baseline.ID,
		ScoreDelta:        current.HealthScore - baseline.HealthScore,
		SatisfactionDelta: current.AvgSatisfaction - baseline.AvgSatisfaction,
		ClientDelta:       current.TotalClients - baseline.TotalClients,
		AnomalyDelta:      current.AnomalyCount - baseline.AnomalyCount,
	}

	cmp.Regressed = cmp.ScoreDelta <= -scoreRegressionDelta ||
		cmp.SatisfactionDelta <= -satisfactionRegressionDelta ||
		cmp.AnomalyDelta >= anomalyRegressionDelta
	cmp.Improved = !cmp.Regressed &&
		(cmp.ScoreDelta >= scoreRegressionDelta || cmp.SatisfactionDelta >= satisfactionRegressionDelta)

	switch {
	case cmp.Regressed:
		cmp.Summary = fmt.Sprintf("Health regressed: score %.1f -> %.1f, satisfaction %.1f -> %.1f",
			baseline.HealthScore, current.HealthScore,
			baseline.AvgSatisfaction, current.AvgSatisfaction)
	case cmp.Improved:
		cmp.Summary = fmt.Sprintf("Health improved: score %.1f -> %.1f",
			baseline.HealthScore, current.HealthScore)
	default:
		cmp.Summary = fmt.Sprintf("No material change: score %.1f -> %.1f",
			baseline.HealthScore, current.HealthScore)
	}
	return cmp
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/unifi-audit/auditor/analysis"
	"github.com/unifi-audit/auditor/analyzer"
	"github.com/unifi-audit/auditor/metrics"
	"github.com/unifi-audit/auditor/types"
)

// handleHealthz is the liveness probe
func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports the service state: host environment, site, and what the
// store knows about the latest run
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"site":      s.site,
		"timestamp": time.Now().UTC(),
		"system":    metrics.CollectSystemInfo(),
	}

	if latest, err := s.store.LatestRun(s.site); err == nil {
		status["latest_run"] = map[string]interface{}{
			"id":           latest.ID,
			"timestamp":    latest.Timestamp,
			"health_score": latest.HealthScore,
			"health_grade": latest.HealthGrade,
			"headline":     latest.Headline,
		}
	}

	s.writeJSONResponse(w, http.StatusOK, status)
}

// handleListRuns lists stored audit runs, newest first
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := types.RunFilter{
		Site:  r.URL.Query().Get("site"),
		Limit: 50,
	}
	if filter.Site == "" {
		filter.Site = s.site
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Offset = parsed
		}
	}
	if raw := r.URL.Query().Get("baseline"); raw != "" {
		isBaseline := raw == "true"
		filter.IsBaseline = &isBaseline
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		if since, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.Since = since
		}
	}

	runs, err := s.store.ListRuns(filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"runs":   runs,
		"count":  len(runs),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// handleGetRun retrieves a specific audit run
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]
	if runID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	run, err := s.store.GetRun(runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeErrorResponse(w, http.StatusNotFound, "Run not found")
		} else {
			s.log.WithError(err).Error("Failed to get run")
			s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve run")
		}
		return
	}

	s.writeJSONResponse(w, http.StatusOK, run)
}

// handleGetRunReport returns the full stored report of a run
func (s *server) handleGetRunReport(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]
	if runID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	run, err := s.store.GetRun(runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeErrorResponse(w, http.StatusNotFound, "Run not found")
		} else {
			s.log.WithError(err).Error("Failed to get run report")
			s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve run")
		}
		return
	}

	if len(run.FullReport) == 0 {
		s.writeErrorResponse(w, http.StatusNotFound, "Run has no stored report")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(run.FullReport)
}

// handleLatestRun retrieves the most recent run for the configured site
func (s *server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	site := r.URL.Query().Get("site")
	if site == "" {
		site = s.site
	}

	run, err := s.store.LatestRun(site)
	if err != nil {
		if strings.Contains(err.Error(), "no runs") {
			s.writeErrorResponse(w, http.StatusNotFound, "No runs recorded")
		} else {
			s.log.WithError(err).Error("Failed to get latest run")
			s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve latest run")
		}
		return
	}

	s.writeJSONResponse(w, http.StatusOK, run)
}

// handleHealthTrend feeds the cross-run health-score history through the trend
// primitives to answer whether the network is getting better over weeks
func (s *server) handleHealthTrend(w http.ResponseWriter, r *http.Request) {
	site := r.URL.Query().Get("site")
	if site == "" {
		site = s.site
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := s.store.HealthHistory(site, limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to query health history")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve health history")
		return
	}

	points := make([]analysis.TimeSeriesPoint, 0, len(history))
	for _, p := range history {
		points = append(points, analysis.TimeSeriesPoint{
			Timestamp: float64(p.Timestamp.Unix()),
			Value:     p.Score,
		})
	}

	slope := analysis.LinearSlope(points)
	trend := analysis.ClassifyTrend(slope, s.trendCfg.DegradingThreshold, s.trendCfg.ImprovingThreshold)

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"site":      site,
		"trend":     trend,
		"slope":     slope,
		"history":   history,
		"anomalies": analysis.DetectAnomalies(points, s.trendCfg.AnomalySigma, "health_score"),
	})
}

// handleAPSeries returns stored cross-run metric rows for one access point
func (s *server) handleAPSeries(w http.ResponseWriter, r *http.Request) {
	mac := mux.Vars(r)["mac"]
	if mac == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "AP MAC is required")
		return
	}

	filter := types.MetricFilter{
		Site:       s.site,
		EntityType: "ap",
		Entity:     mac,
	}
	if raw := r.URL.Query().Get("metrics"); raw != "" {
		filter.Metrics = strings.Split(raw, ",")
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}

	series, err := s.store.QueryMetrics(filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to query AP series")
		s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve AP series")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"mac":    mac,
		"series": series,
		"count":  len(series),
	})
}

// handleCompareRuns compares a run against a baseline run
func (s *server) handleCompareRuns(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	runID := vars["runId"]
	baselineID := vars["baselineRunId"]

	if runID == "" || baselineID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "Both run IDs are required")
		return
	}

	current, err := s.store.GetRun(runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeErrorResponse(w, http.StatusNotFound, "Run not found")
		} else {
			s.log.WithError(err).Error("Failed to get run for comparison")
			s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compare runs")
		}
		return
	}

	baseline, err := s.store.GetRun(baselineID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.writeErrorResponse(w, http.StatusNotFound, "Baseline run not found")
		} else {
			s.log.WithError(err).Error("Failed to get baseline for comparison")
			s.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compare runs")
		}
		return
	}

	s.writeJSONResponse(w, http.StatusOK, analyzer.CompareRuns(current, baseline))
}

// writeJSONResponse writes a JSON response with the given status code
func (s *server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response with the given status code and message
func (s *server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	})
}

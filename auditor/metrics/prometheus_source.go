package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	prometheus "github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/unifi-audit/auditor/types"
)

// Queries against an unpoller-style exporter. Satisfaction ratios are 0-1
// there and get rescaled to the controller's 0-100 range.
const (
	deviceInfoQuery         = `unpoller_device_info{site_name=%q}`
	apSatisfactionQuery     = `unpoller_device_satisfaction_ratio{site_name=%q,type="uap"}`
	apStationsQuery         = `unpoller_device_num_sta{site_name=%q,type="uap"}`
	totalStationsQuery      = `sum(unpoller_device_num_sta{site_name=%q,type="uap"})`
	avgSatisfactionQuery    = `avg(unpoller_device_satisfaction_ratio{site_name=%q,type="uap"})`
	clientSignalQuery       = `unpoller_client_rssi_dbm{site_name=%q}`
	clientSatisfactionQuery = `unpoller_client_satisfaction_ratio{site_name=%q}`
)

// hourlyLookbackCap bounds the hourly-resolution window; hourly series over
// the full lookback would dwarf the daily data without sharpening trends.
const hourlyLookbackCap = 7 * 24 * time.Hour

// PrometheusSource assembles a telemetry snapshot from a Prometheus server
// scraping a UniFi exporter.
type PrometheusSource struct {
	api      v1.API
	site     string
	lookback time.Duration
	log      logrus.FieldLogger
}

// NewPrometheusSource creates a collector against the given Prometheus address
func NewPrometheusSource(address, site string, lookbackDays int, log logrus.FieldLogger) (*PrometheusSource, error) {
	client, err := prometheus.NewClient(prometheus.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &PrometheusSource{
		api:      v1.NewAPI(client),
		site:     site,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		log:      log.WithField("component", "prometheus_source"),
	}, nil
}

// Collect queries the metrics needed for an audit and assembles a snapshot.
// Controller events are not available from a metrics store, so the events
// section stays empty and DFS analysis degrades to zero counts.
func (s *PrometheusSource) Collect(ctx context.Context) (*types.TelemetrySnapshot, error) {
	now := time.Now()
	snap := &types.TelemetrySnapshot{
		Site:        s.site,
		CollectedAt: now.UTC(),
		Source:      "prometheus",
	}

	devices, err := s.collectDevices(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to collect device inventory: %w", err)
	}
	snap.Devices = devices

	dailyRange := v1.Range{Start: now.Add(-s.lookback), End: now, Step: 24 * time.Hour}
	hourlyWindow := s.lookback
	if hourlyWindow > hourlyLookbackCap {
		hourlyWindow = hourlyLookbackCap
	}
	hourlyRange := v1.Range{Start: now.Add(-hourlyWindow), End: now, Step: time.Hour}

	apSat := fmt.Sprintf(apSatisfactionQuery, s.site)
	apSta := fmt.Sprintf(apStationsQuery, s.site)

	dailySat, err := s.rangeRecords(ctx, apSat, dailyRange, "satisfaction", 100)
	if err != nil {
		return nil, fmt.Errorf("failed to collect daily AP satisfaction: %w", err)
	}
	dailySta, err := s.rangeRecords(ctx, apSta, dailyRange, "num_sta", 1)
	if err != nil {
		return nil, fmt.Errorf("failed to collect daily AP stations: %w", err)
	}
	snap.DailyAPStats = append(dailySat, dailySta...)

	hourlySat, err := s.rangeRecords(ctx, apSat, hourlyRange, "satisfaction", 100)
	if err != nil {
		return nil, fmt.Errorf("failed to collect hourly AP satisfaction: %w", err)
	}
	hourlySta, err := s.rangeRecords(ctx, apSta, hourlyRange, "num_sta", 1)
	if err != nil {
		return nil, fmt.Errorf("failed to collect hourly AP stations: %w", err)
	}
	snap.HourlyAPStats = append(hourlySat, hourlySta...)

	userStats, err := s.collectUserStats(ctx, dailyRange)
	if err != nil {
		return nil, fmt.Errorf("failed to collect site-wide stats: %w", err)
	}
	snap.DailyUserStats = userStats

	clients, err := s.collectClients(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to collect client table: %w", err)
	}
	snap.Clients = clients

	s.log.WithFields(logrus.Fields{
		"site":             snap.Site,
		"devices":          len(snap.Devices),
		"daily_ap_stats":   len(snap.DailyAPStats),
		"hourly_ap_stats":  len(snap.HourlyAPStats),
		"daily_user_stats": len(snap.DailyUserStats),
		"clients":          len(snap.Clients),
	}).Info("Collected snapshot from Prometheus")

	return snap, nil
}

// collectDevices builds the device inventory from the exporter's info metric
func (s *PrometheusSource) collectDevices(ctx context.Context, ts time.Time) ([]types.Device, error) {
	vector, err := s.instantVector(ctx, fmt.Sprintf(deviceInfoQuery, s.site), ts)
	if err != nil {
		return nil, err
	}

	devices := make([]types.Device, 0, len(vector))
	for _, sample := range vector {
		mac := string(sample.Metric["mac"])
		if mac == "" {
			continue
		}
		devices = append(devices, types.Device{
			MAC:     mac,
			Name:    string(sample.Metric["name"]),
			Type:    string(sample.Metric["type"]),
			Model:   string(sample.Metric["model"]),
			IP:      string(sample.Metric["ip"]),
			Version: string(sample.Metric["version"]),
			Adopted: true, // the exporter only polls adopted devices
		})
	}
	return devices, nil
}

// collectUserStats merges the site-wide station and satisfaction series into
// one record per day.
func (s *PrometheusSource) collectUserStats(ctx context.Context, r v1.Range) ([]types.StatRecord, error) {
	stations, err := s.rangeRecords(ctx, fmt.Sprintf(totalStationsQuery, s.site), r, "num_sta", 1)
	if err != nil {
		return nil, err
	}
	satisfaction, err := s.rangeRecords(ctx, fmt.Sprintf(avgSatisfactionQuery, s.site), r, "satisfaction", 100)
	if err != nil {
		return nil, err
	}

	byTime := make(map[float64]types.StatRecord)
	merge := func(records []types.StatRecord, field string) {
		for _, record := range records {
			ts := record["time"].(float64)
			merged, ok := byTime[ts]
			if !ok {
				merged = types.StatRecord{"time": ts}
				byTime[ts] = merged
			}
			merged[field] = record[field]
		}
	}
	merge(stations, "num_sta")
	merge(satisfaction, "satisfaction")

	records := make([]types.StatRecord, 0, len(byTime))
	for _, record := range byTime {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i]["time"].(float64) < records[j]["time"].(float64)
	})
	return records, nil
}

// collectClients builds the association table from instant client metrics
func (s *PrometheusSource) collectClients(ctx context.Context, ts time.Time) ([]types.StatRecord, error) {
	signals, err := s.instantVector(ctx, fmt.Sprintf(clientSignalQuery, s.site), ts)
	if err != nil {
		return nil, err
	}

	byMAC := make(map[string]types.StatRecord, len(signals))
	order := make([]string, 0, len(signals))
	for _, sample := range signals {
		mac := string(sample.Metric["mac"])
		if mac == "" {
			continue
		}
		record := types.StatRecord{
			"mac":    mac,
			"signal": float64(sample.Value),
		}
		if ap := string(sample.Metric["ap_mac"]); ap != "" {
			record["ap_mac"] = ap
		}
		if name := string(sample.Metric["name"]); name != "" {
			record["hostname"] = name
		}
		// Duplicate series for one client (stale target, relabeling) collapse
		// to a single record; the last sample wins
		if _, seen := byMAC[mac]; !seen {
			order = append(order, mac)
		}
		byMAC[mac] = record
	}

	satisfaction, err := s.instantVector(ctx, fmt.Sprintf(clientSatisfactionQuery, s.site), ts)
	if err != nil {
		return nil, err
	}
	for _, sample := range satisfaction {
		mac := string(sample.Metric["mac"])
		if record, ok := byMAC[mac]; ok {
			record["satisfaction"] = float64(sample.Value) * 100
		}
	}

	records := make([]types.StatRecord, 0, len(order))
	for _, mac := range order {
		records = append(records, byMAC[mac])
	}
	return records, nil
}

// rangeRecords runs a range query and flattens the matrix into stat records
// carrying the series MAC (when present), the sample time and one field.
func (s *PrometheusSource) rangeRecords(ctx context.Context, query string, r v1.Range, field string, scale float64) ([]types.StatRecord, error) {
	result, warnings, err := s.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, fmt.Errorf("failed to query prometheus: %w", err)
	}
	if len(warnings) > 0 {
		s.log.WithField("warnings", warnings).Warn("Prometheus returned warnings")
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("expected matrix result, got %s", result.Type())
	}

	var records []types.StatRecord
	for _, series := range matrix {
		mac := string(series.Metric["mac"])
		for _, pair := range series.Values {
			record := types.StatRecord{
				"time": float64(pair.Timestamp.Unix()),
				field:  float64(pair.Value) * scale,
			}
			if mac != "" {
				record["mac"] = mac
			}
			records = append(records, record)
		}
	}
	return records, nil
}

func (s *PrometheusSource) instantVector(ctx context.Context, query string, ts time.Time) (model.Vector, error) {
	result, warnings, err := s.api.Query(ctx, query, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query prometheus: %w", err)
	}
	if len(warnings) > 0 {
		s.log.WithField("warnings", warnings).Warn("Prometheus returned warnings")
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("expected vector result, got %s", result.Type())
	}
	return vector, nil
}

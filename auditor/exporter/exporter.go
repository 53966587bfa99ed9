package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/audit"
	"github.com/unifi-audit/auditor/config"
)

// Exporter writes audit reports to disk as JSON and CSV artifacts
type Exporter struct {
	dir     string
	formats map[string]bool
	log     logrus.FieldLogger
}

// NewExporter creates an exporter for the configured directory and formats
func NewExporter(cfg config.ExportConfig, log logrus.FieldLogger) *Exporter {
	formats := make(map[string]bool, len(cfg.Formats))
	for _, f := range cfg.Formats {
		formats[f] = true
	}
	return &Exporter{
		dir:     cfg.Dir,
		formats: formats,
		log:     log.WithField("component", "exporter"),
	}
}

// Export writes every configured artifact for a report and returns the paths
// written
func (e *Exporter) Export(report *audit.Report) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	stamp := report.GeneratedAt.UTC().Format("20060102-150405")
	prefix := fmt.Sprintf("%s_%s", report.Site, stamp)

	var written []string

	if e.formats["json"] {
		path := filepath.Join(e.dir, prefix+"_report.json")
		if err := e.exportJSON(report, path); err != nil {
			return written, fmt.Errorf("failed to export JSON: %w", err)
		}
		written = append(written, path)
	}

	if e.formats["csv"] {
		csvExports := []struct {
			suffix string
			write  func(*audit.Report, string) error
		}{
			{"_ap_trends.csv", e.exportAPTrendsCSV},
			{"_flagged_clients.csv", e.exportFlaggedClientsCSV},
			{"_anomalies.csv", e.exportAnomaliesCSV},
		}
		for _, export := range csvExports {
			path := filepath.Join(e.dir, prefix+export.suffix)
			if err := export.write(report, path); err != nil {
				return written, fmt.Errorf("failed to export %s: %w", export.suffix, err)
			}
			written = append(written, path)
		}
	}

	e.log.WithFields(logrus.Fields{
		"site":  report.Site,
		"files": len(written),
		"dir":   e.dir,
	}).Info("Exported audit report")

	return written, nil
}

// exportJSON writes the complete report
func (e *Exporter) exportJSON(report *audit.Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// exportAPTrendsCSV writes one row per access point, name-sorted so repeated
// exports diff cleanly
func (e *Exporter) exportAPTrendsCSV(report *audit.Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Name", "MAC", "Satisfaction Trend", "Satisfaction Slope (per day)",
		"Client Count Trend", "Client Count Slope (per day)", "Data Points", "Anomalies",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	if report.Trends == nil {
		return nil
	}

	names := make([]string, 0, len(report.Trends.AccessPoints))
	for name := range report.Trends.AccessPoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ap := report.Trends.AccessPoints[name]
		row := []string{
			name,
			ap.MAC,
			string(ap.SatisfactionTrend),
			fmt.Sprintf("%.4f", ap.SatisfactionSlope),
			string(ap.ClientCountTrend),
			fmt.Sprintf("%.4f", ap.ClientCountSlope),
			strconv.Itoa(ap.DataPoints),
			strconv.Itoa(len(ap.Anomalies)),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return nil
}

// exportFlaggedClientsCSV writes the flagged-client list, already worst first
func (e *Exporter) exportFlaggedClientsCSV(report *audit.Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Client MAC", "Trend", "Slope (per day)", "Latest Satisfaction", "Data Points"}
	if err := writer.Write(header); err != nil {
		return err
	}

	if report.Trends == nil {
		return nil
	}

	for _, client := range report.Trends.FlaggedClients {
		row := []string{
			client.MAC,
			string(client.Trend),
			fmt.Sprintf("%.4f", client.Slope),
			fmt.Sprintf("%.1f", client.LatestSatisfaction),
			strconv.Itoa(client.DataPoints),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return nil
}

// exportAnomaliesCSV writes network anomalies followed by per-AP anomalies
func (e *Exporter) exportAnomaliesCSV(report *audit.Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Scope", "Metric", "Time", "Value", "Expected", "Deviation (sigma)"}
	if err := writer.Write(header); err != nil {
		return err
	}

	if report.Trends == nil {
		return nil
	}

	writeRow := func(scope string, ts float64, metric string, value, expected, deviation float64) error {
		return writer.Write([]string{
			scope,
			metric,
			formatEpoch(ts),
			fmt.Sprintf("%.2f", value),
			fmt.Sprintf("%.2f", expected),
			fmt.Sprintf("%.2f", deviation),
		})
	}

	if report.Trends.Network != nil {
		for _, a := range report.Trends.Network.Anomalies {
			if err := writeRow("network", a.Timestamp, a.Metric, a.Value, a.Expected, a.Deviation); err != nil {
				return err
			}
		}
	}

	names := make([]string, 0, len(report.Trends.AccessPoints))
	for name := range report.Trends.AccessPoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, a := range report.Trends.AccessPoints[name].Anomalies {
			if err := writeRow(name, a.Timestamp, a.Metric, a.Value, a.Expected, a.Deviation); err != nil {
				return err
			}
		}
	}

	return nil
}

func formatEpoch(ts float64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

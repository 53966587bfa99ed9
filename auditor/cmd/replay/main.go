package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/audit"
	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/ingest"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: replay <snapshot.json> [output.json]")
		os.Exit(1)
	}
	snapshotPath := os.Args[1]

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	parser := ingest.NewParser("replay", logger)
	snap, err := parser.LoadSnapshot(snapshotPath)
	if err != nil {
		log.Fatalf("Failed to load snapshot: %v", err)
	}

	fmt.Printf("Replaying analysis over %s\n", snapshotPath)
	fmt.Printf("Site: %s, collected %s\n", snap.Site, snap.CollectedAt)
	fmt.Printf("Devices: %d (%d APs)\n", len(snap.Devices), snap.APCount())
	fmt.Printf("Records: %d daily AP, %d hourly AP, %d daily user, %d events\n",
		len(snap.DailyAPStats), len(snap.HourlyAPStats), len(snap.DailyUserStats), len(snap.Events))

	auditor := audit.NewAuditor(config.DefaultAuditConfig(), nil, logger)
	report := auditor.Analyze(snap)

	fmt.Printf("\nHealth: %.1f (%s)\n", report.Health.Score, report.Health.Grade)
	fmt.Printf("Headline: %s\n", report.Headline())
	fmt.Printf("Anomalies: %d\n", report.AnomalyCount())

	if report.Trends != nil && report.Trends.Network != nil {
		net := report.Trends.Network
		fmt.Printf("Network satisfaction: %s (%.3f/day)\n", net.Satisfaction.Trend, net.Satisfaction.Slope)
		fmt.Printf("Network clients: %s (%.3f/day)\n", net.ClientCount.Trend, net.ClientCount.Slope)
		fmt.Printf("DFS events: %s (%.3f/day)\n", net.DFSEvents.Direction, net.DFSEvents.Slope)
	}

	if report.Trends != nil && len(report.Trends.FlaggedClients) > 0 {
		fmt.Println("\nFlagged clients:")
		for _, c := range report.Trends.FlaggedClients {
			fmt.Printf("  - %s: %s (%.3f/day, last %.1f)\n", c.MAC, c.Trend, c.Slope, c.LatestSatisfaction)
		}
	}

	for _, rec := range report.Health.Recommendations {
		fmt.Printf("Recommendation: %s\n", rec)
	}

	if len(os.Args) > 2 {
		data, _ := json.MarshalIndent(report, "", "  ")
		if err := os.WriteFile(os.Args[2], data, 0644); err != nil {
			log.Printf("Failed to write report: %v", err)
		} else {
			fmt.Printf("\nFull report saved to %s\n", os.Args[2])
		}
	}
}

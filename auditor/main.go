package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/api"
	"github.com/unifi-audit/auditor/audit"
	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/exporter"
	"github.com/unifi-audit/auditor/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML audit configuration file")
	storageConfigPath := flag.String("storage-config", "", "Path to YAML storage configuration file")
	telemetryPath := flag.String("telemetry", "", "Override the telemetry export path from the config")
	serve := flag.Bool("serve", false, "Keep running and serve the API after the audit")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("log_level", *logLevel).Warn("Unknown log level, using info")
	}

	cfg, err := config.LoadAuditConfig(*configPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *telemetryPath != "" {
		cfg.Collector.Source = "file"
		cfg.Collector.TelemetryPath = *telemetryPath
	}

	storageCfg, err := config.LoadStorageConfig(*storageConfigPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load storage configuration")
	}

	collector, err := audit.NewCollector(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create telemetry collector")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditor := audit.NewAuditor(cfg, collector, log)
	report, snap, err := auditor.Run(ctx)
	if err != nil {
		log.WithError(err).Fatal("Audit failed")
	}

	if len(cfg.Export.Formats) > 0 {
		exp := exporter.NewExporter(cfg.Export, log)
		if _, err := exp.Export(report); err != nil {
			log.WithError(err).Error("Failed to export report")
		}
	}

	var history *storage.HistoryStore
	if storageCfg.EnableHistory {
		history, err = storage.NewHistoryStore(storageCfg, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to open run history storage")
		}
		defer history.Close()

		run, err := history.SaveRun(report, snap, cfg)
		if err != nil {
			log.WithError(err).Error("Failed to persist audit run")
		} else {
			log.WithField("run_id", run.ID).Info("Audit run persisted")
		}

		if err := history.Prune(); err != nil {
			log.WithError(err).Warn("Failed to prune old runs")
		}
	}

	if !cfg.API.Enabled && !*serve {
		log.Info("Audit complete")
		return
	}

	if history == nil {
		log.Fatal("The API serves stored runs; enable history storage to use it")
	}

	server := api.NewServer(cfg.API.Listen, cfg.Site, cfg.Trend, history.DB(), log)
	if err := server.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start API server")
	}
	server.Broadcast(api.MessageTypeRunCompleted, map[string]interface{}{
		"site":     report.Site,
		"score":    report.Health.Score,
		"headline": report.Headline(),
	})

	<-ctx.Done()
	if err := server.Stop(); err != nil {
		log.WithError(err).Error("Failed to stop API server")
	}
}

package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/config"
)

// reportSuffix marks full-report artifacts among the exporter's output
const reportSuffix = "_report.json"

// artifactServer serves the export directory and resolves the newest report
// through the exporter's naming convention (site_YYYYMMDD-HHMMSS_report.json),
// so ordering survives copies and backup restores that touch mtimes.
type artifactServer struct {
	dir string
	log logrus.FieldLogger
}

func main() {
	listen := flag.String("listen", ":8081", "Address to serve export artifacts on")
	dir := flag.String("dir", config.DefaultAuditConfig().Export.Dir, "Export directory to serve")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if info, err := os.Stat(*dir); err != nil || !info.IsDir() {
		log.WithField("dir", *dir).Fatal("Export directory is not readable")
	}

	server := &artifactServer{
		dir: *dir,
		log: log.WithField("component", "artifact-server"),
	}

	server.log.WithFields(logrus.Fields{
		"listen": *listen,
		"dir":    *dir,
	}).Info("Serving export artifacts")
	if err := http.ListenAndServe(*listen, server.routes()); err != nil {
		log.WithError(err).Fatal("Artifact server failed")
	}
}

func (s *artifactServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/reports", s.handleListReports)
	mux.HandleFunc("/reports/latest", s.handleLatestReport)
	mux.Handle("/", http.FileServer(http.Dir(s.dir)))
	return mux
}

func (s *artifactServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleListReports returns the available report artifacts, newest first
func (s *artifactServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reportNames()
	if err != nil {
		s.log.WithError(err).Error("Failed to list reports")
		http.Error(w, "failed to list reports", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":   len(reports),
		"reports": reports,
	})
}

// handleLatestReport redirects to the newest report artifact
func (s *artifactServer) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reportNames()
	if err != nil {
		s.log.WithError(err).Error("Failed to list reports")
		http.Error(w, "failed to list reports", http.StatusInternalServerError)
		return
	}
	if len(reports) == 0 {
		http.Error(w, "no reports exported yet", http.StatusNotFound)
		return
	}

	http.Redirect(w, r, "/"+reports[0], http.StatusFound)
}

// reportNames lists report artifacts sorted newest first by their embedded
// export stamp, ties broken by name
func (s *artifactServer) reportNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), reportSuffix) {
			names = append(names, entry.Name())
		}
	}

	sort.Slice(names, func(i, j int) bool {
		si, sj := exportStamp(names[i]), exportStamp(names[j])
		if si != sj {
			return si > sj
		}
		return names[i] < names[j]
	})
	return names, nil
}

// exportStamp pulls the YYYYMMDD-HHMMSS portion out of an artifact name. The
// site prefix may itself contain underscores, so the stamp is the last
// segment before the suffix.
func exportStamp(name string) string {
	base := strings.TrimSuffix(name, reportSuffix)
	if idx := strings.LastIndex(base, "_"); idx >= 0 {
		return base[idx+1:]
	}
	return base
}

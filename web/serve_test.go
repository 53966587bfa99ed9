package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, files ...string) *artifactServer {
	dir := t.TempDir()
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return &artifactServer{dir: dir, log: log}
}

func TestReportNamesNewestFirst(t *testing.T) {
	server := testServer(t,
		"lab_20260801-120000_report.json",
		"lab_20260802-090000_report.json",
		"office_20260802-100000_report.json",
		"lab_20260801-120000_ap_trends.csv", // not a report artifact
		"notes.txt",
	)

	names, err := server.reportNames()
	require.NoError(t, err)

	// Ordered by the embedded stamp, not by site prefix
	assert.Equal(t, []string{
		"office_20260802-100000_report.json",
		"lab_20260802-090000_report.json",
		"lab_20260801-120000_report.json",
	}, names)
}

func TestLatestReportRedirect(t *testing.T) {
	server := testServer(t,
		"lab_20260801-120000_report.json",
		"lab_20260802-090000_report.json",
	)

	req := httptest.NewRequest(http.MethodGet, "/reports/latest", nil)
	w := httptest.NewRecorder()
	server.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/lab_20260802-090000_report.json", w.Header().Get("Location"))
}

func TestLatestReportEmptyDirectory(t *testing.T) {
	server := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/reports/latest", nil)
	w := httptest.NewRecorder()
	server.routes().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListReports(t *testing.T) {
	server := testServer(t, "lab_20260801-120000_report.json")

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	w := httptest.NewRecorder()
	server.routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count   int      `json:"count"`
		Reports []string `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, []string{"lab_20260801-120000_report.json"}, body.Reports)
}

func TestExportStamp(t *testing.T) {
	assert.Equal(t, "20260801-120000", exportStamp("lab_20260801-120000_report.json"))
	assert.Equal(t, "20260801-120000", exportStamp("main_campus_20260801-120000_report.json"))
	assert.Equal(t, "oddname.json", exportStamp("oddname.json"))
}

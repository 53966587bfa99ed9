package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifi-audit/auditor/types"
)

func testParser(site string) *Parser {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return NewParser(site, logger)
}

func TestParseExportFull(t *testing.T) {
	parser := testParser("fallback-site")

	data := []byte(`{
		"site": "main-campus",
		"collected_at": "2026-08-01T12:00:00Z",
		"devices": [
			{
				"mac": "aa:bb:cc:dd:ee:01",
				"name": "Office AP",
				"type": "uap",
				"model": "U6-Pro",
				"ip": "10.0.0.5",
				"version": "7.0.20",
				"adopted": true,
				"state": 1,
				"uptime": 86400,
				"radio_table": [
					{"name": "ra0", "radio": "ng", "channel": 6, "ht": 20, "tx_power_mode": "auto"},
					{"name": "rai0", "radio": "na", "channel": "44", "ht": 80},
					{"name": "rai1", "radio": "na", "channel": "auto"}
				]
			},
			{"mac": "aa:bb:cc:dd:ee:02", "name": "Core Switch", "type": "usw", "adopted": true}
		],
		"daily_ap_stats": [
			{"time": 1700000000, "mac": "aa:bb:cc:dd:ee:01", "satisfaction": 91.5, "num_sta": 12}
		],
		"hourly_ap_stats": [
			{"time": 1700000000, "mac": "aa:bb:cc:dd:ee:01", "satisfaction": 90.0}
		],
		"daily_user_stats": [
			{"time": 1700000000, "satisfaction": 89.0, "num_sta": 31}
		],
		"events": [
			{"time": 1700000000, "key": "EVT_AP_RadarDetected", "msg": "DFS radar detected"}
		],
		"clients": [
			{"mac": "11:22:33:44:55:66", "signal": -58, "satisfaction": 95}
		],
		"client_history": [
			{"time": 1700000000, "mac": "11:22:33:44:55:66", "ap_mac": "aa:bb:cc:dd:ee:01", "signal": -58}
		]
	}`)

	snap, err := parser.ParseExport(data)
	require.NoError(t, err)

	assert.Equal(t, "main-campus", snap.Site)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), snap.CollectedAt)
	assert.Equal(t, "file", snap.Source)

	require.Len(t, snap.Devices, 2)
	ap := snap.Devices[0]
	assert.Equal(t, "aa:bb:cc:dd:ee:01", ap.MAC)
	assert.Equal(t, "Office AP", ap.Name)
	assert.True(t, ap.IsAP())
	assert.True(t, ap.Adopted)
	assert.Equal(t, 1, ap.State)
	assert.Equal(t, int64(86400), ap.Uptime)

	require.Len(t, ap.Radios, 3)
	assert.Equal(t, types.RadioInfo{Name: "ra0", Band: "ng", Channel: 6, ChannelWidth: 20, TxPowerMode: "auto"}, ap.Radios[0])
	assert.Equal(t, 44, ap.Radios[1].Channel, "numeric string channels are parsed")
	assert.Equal(t, 0, ap.Radios[2].Channel, "auto channels come through as zero")

	assert.False(t, snap.Devices[1].IsAP())

	assert.Len(t, snap.DailyAPStats, 1)
	assert.Len(t, snap.HourlyAPStats, 1)
	assert.Len(t, snap.DailyUserStats, 1)
	assert.Len(t, snap.Events, 1)
	assert.Len(t, snap.Clients, 1)
	assert.Len(t, snap.ClientHistory, 1)
	assert.Equal(t, 1, snap.APCount())
}

func TestParseExportSiteFallbacks(t *testing.T) {
	parser := testParser("configured-site")

	snap, err := parser.ParseExport([]byte(`{"site_name": "named-site", "devices": []}`))
	require.NoError(t, err)
	assert.Equal(t, "named-site", snap.Site)

	snap, err = parser.ParseExport([]byte(`{"devices": []}`))
	require.NoError(t, err)
	assert.Equal(t, "configured-site", snap.Site)
}

func TestParseExportSkipsDevicesWithoutMAC(t *testing.T) {
	parser := testParser("default")

	snap, err := parser.ParseExport([]byte(`{
		"devices": [
			{"name": "ghost device"},
			{"mac": "aa:bb:cc:dd:ee:01", "type": "uap"}
		]
	}`))
	require.NoError(t, err)

	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", snap.Devices[0].MAC)
}

func TestParseExportUnparseableCollectedAt(t *testing.T) {
	parser := testParser("default")

	before := time.Now().UTC()
	snap, err := parser.ParseExport([]byte(`{"collected_at": "yesterday-ish", "devices": []}`))
	require.NoError(t, err)

	assert.False(t, snap.CollectedAt.Before(before), "falls back to the parse time")
}

func TestParseExportMalformed(t *testing.T) {
	parser := testParser("default")

	_, err := parser.ParseExport([]byte(`{"devices": "not an array"}`))
	assert.Error(t, err)

	_, err = parser.ParseExport([]byte(`[1, 2, 3]`))
	assert.Error(t, err)
}

func TestParseExportToleratesSchemaViolations(t *testing.T) {
	parser := testParser("default")

	// Bad MAC pattern and a stat record without its required time field:
	// schema violations are logged, the records still flow to the structural
	// validator downstream
	snap, err := parser.ParseExport([]byte(`{
		"devices": [{"mac": "not-a-mac", "type": "uap"}],
		"daily_ap_stats": [{"satisfaction": 80.0}]
	}`))
	require.NoError(t, err)

	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "not-a-mac", snap.Devices[0].MAC)
	assert.Len(t, snap.DailyAPStats, 1)
}

func TestLoadSnapshot(t *testing.T) {
	parser := testParser("default")

	path := filepath.Join(t.TempDir(), "export.json")
	content := `{"site": "from-disk", "devices": [{"mac": "aa:bb:cc:dd:ee:01", "type": "uap"}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	snap, err := parser.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "from-disk", snap.Site)
	assert.Equal(t, 1, snap.APCount())

	_, err = parser.LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read export file")
}

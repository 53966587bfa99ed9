package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/schema"
	"github.com/unifi-audit/auditor/types"
)

// export mirrors the controller export document. Stat sections stay untyped;
// only the device inventory is lifted into structs here.
type export struct {
	Site           string             `json:"site"`
	SiteName       string             `json:"site_name"`
	CollectedAt    string             `json:"collected_at"`
	Devices        []types.StatRecord `json:"devices"`
	HourlyAPStats  []types.StatRecord `json:"hourly_ap_stats"`
	DailyAPStats   []types.StatRecord `json:"daily_ap_stats"`
	DailyUserStats []types.StatRecord `json:"daily_user_stats"`
	Events         []types.StatRecord `json:"events"`
	Clients        []types.StatRecord `json:"clients"`
	ClientHistory  []types.StatRecord `json:"client_history"`
}

// Parser turns controller export documents into typed snapshots
type Parser struct {
	site      string
	validator *schema.SchemaValidator
	log       logrus.FieldLogger
}

// NewParser creates a parser for the given site. The site name is a fallback;
// exports that carry their own site name win.
func NewParser(site string, log logrus.FieldLogger) *Parser {
	log = log.WithField("component", "ingest")

	validator, err := schema.NewSchemaValidator()
	if err != nil {
		// Broken section schemas mean a build problem, not a bad export;
		// parsing still works without them
		log.WithError(err).Warn("Section schemas unavailable, skipping schema validation")
	}

	return &Parser{
		site:      site,
		validator: validator,
		log:       log,
	}
}

// ParseExport parses a raw controller export into a snapshot. Schema
// violations are logged per section but never fatal: exports in the wild carry
// fields and quirks the schemas don't pin down, and the structural validator
// drops unusable records downstream.
func (p *Parser) ParseExport(data []byte) (*types.TelemetrySnapshot, error) {
	if p.validator != nil {
		if valid, violations, err := p.validator.ValidateExport(data); err == nil && !valid {
			for section, messages := range violations {
				p.log.WithFields(logrus.Fields{
					"section":    section,
					"violations": len(messages),
					"first":      messages[0],
				}).Warn("Export section fails schema validation")
			}
		}
	}

	var doc export
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse controller export: %w", err)
	}

	snap := &types.TelemetrySnapshot{
		Site:           p.site,
		CollectedAt:    time.Now().UTC(),
		Source:         "file",
		HourlyAPStats:  doc.HourlyAPStats,
		DailyAPStats:   doc.DailyAPStats,
		DailyUserStats: doc.DailyUserStats,
		Events:         doc.Events,
		Clients:        doc.Clients,
		ClientHistory:  doc.ClientHistory,
	}

	if doc.Site != "" {
		snap.Site = doc.Site
	} else if doc.SiteName != "" {
		snap.Site = doc.SiteName
	}

	if doc.CollectedAt != "" {
		if ts, err := time.Parse(time.RFC3339, doc.CollectedAt); err == nil {
			snap.CollectedAt = ts.UTC()
		} else {
			p.log.WithField("collected_at", doc.CollectedAt).Warn("Ignoring unparseable collected_at in export")
		}
	}

	skipped := 0
	snap.Devices = make([]types.Device, 0, len(doc.Devices))
	for _, record := range doc.Devices {
		device, ok := parseDevice(record)
		if !ok {
			skipped++
			continue
		}
		snap.Devices = append(snap.Devices, device)
	}
	if skipped > 0 {
		p.log.WithField("skipped", skipped).Warn("Skipped device records without a MAC address")
	}

	p.log.WithFields(logrus.Fields{
		"site":             snap.Site,
		"devices":          len(snap.Devices),
		"aps":              snap.APCount(),
		"hourly_ap_stats":  len(snap.HourlyAPStats),
		"daily_ap_stats":   len(snap.DailyAPStats),
		"daily_user_stats": len(snap.DailyUserStats),
		"events":           len(snap.Events),
		"clients":          len(snap.Clients),
	}).Info("Parsed controller export")

	return snap, nil
}

// LoadSnapshot reads and parses a controller export file
func (p *Parser) LoadSnapshot(path string) (*types.TelemetrySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export file: %w", err)
	}
	return p.ParseExport(data)
}

// parseDevice lifts one raw inventory record into a typed device. Records
// without a MAC are unusable as join keys and are dropped.
func parseDevice(record types.StatRecord) (types.Device, bool) {
	mac := strField(record, "mac")
	if mac == "" {
		return types.Device{}, false
	}

	device := types.Device{
		MAC:     mac,
		Name:    strField(record, "name"),
		Type:    strField(record, "type"),
		Model:   strField(record, "model"),
		IP:      strField(record, "ip"),
		Version: strField(record, "version"),
		Adopted: boolField(record, "adopted"),
		State:   intField(record, "state"),
		Uptime:  int64(intField(record, "uptime")),
	}

	if raw, ok := record["radio_table"].([]interface{}); ok {
		device.Radios = parseRadioTable(raw)
	}

	return device, true
}

func parseRadioTable(raw []interface{}) []types.RadioInfo {
	radios := make([]types.RadioInfo, 0, len(raw))
	for _, entry := range raw {
		record, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		radios = append(radios, types.RadioInfo{
			Name:         strField(record, "name"),
			Band:         strField(record, "radio"),
			Channel:      channelField(record, "channel"),
			ChannelWidth: intField(record, "ht"),
			TxPowerMode:  strField(record, "tx_power_mode"),
		})
	}
	return radios
}

func strField(record map[string]interface{}, key string) string {
	s, _ := record[key].(string)
	return s
}

func boolField(record map[string]interface{}, key string) bool {
	b, _ := record[key].(bool)
	return b
}

func intField(record map[string]interface{}, key string) int {
	switch v := record[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

// channelField handles controllers that report "auto" or a numeric string
// instead of a number.
func channelField(record map[string]interface{}, key string) int {
	if s, ok := record[key].(string); ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return n
	}
	return intField(record, key)
}

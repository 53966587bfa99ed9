package types

import (
	"time"
)

// StatRecord is a single untyped stat mapping as exported by the controller.
// Field sets vary across controller versions, so records stay schemaless until
// the extraction layer pulls named fields out of them.
type StatRecord map[string]interface{}

// RadioInfo describes one radio of an access point
type RadioInfo struct {
	Name         string `json:"name"`
	Band         string `json:"band"` // ng = 2.4 GHz, na = 5 GHz
	Channel      int    `json:"channel"`
	ChannelWidth int    `json:"channel_width,omitempty"`
	TxPowerMode  string `json:"tx_power_mode,omitempty"`
}

// Device represents an adopted network device from the controller inventory
type Device struct {
	MAC     string      `json:"mac"`
	Name    string      `json:"name"`
	Type    string      `json:"type"` // uap, usw, ugw
	Model   string      `json:"model,omitempty"`
	IP      string      `json:"ip,omitempty"`
	Version string      `json:"version,omitempty"`
	Adopted bool        `json:"adopted"`
	State   int         `json:"state"`
	Uptime  int64       `json:"uptime,omitempty"`
	Radios  []RadioInfo `json:"radios,omitempty"`
}

// IsAP reports whether the device is an access point
func (d Device) IsAP() bool {
	return d.Type == "uap"
}

// DisplayName returns the configured device name, falling back to the MAC
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.MAC
}

// TelemetrySnapshot bundles everything one collection pass gathers from a site.
// Stat sections keep the controller's raw record shape; only the device
// inventory is parsed into typed structs at the ingest boundary.
type TelemetrySnapshot struct {
	Site        string    `json:"site"`
	CollectedAt time.Time `json:"collected_at"`
	Source      string    `json:"source,omitempty"` // file or prometheus

	Devices []Device `json:"devices"`

	// Stat sections, ordered as collected. Hourly AP stats may be absent on
	// controllers with reduced retention; the analysis layer falls back to
	// daily records.
	HourlyAPStats  []StatRecord `json:"hourly_ap_stats,omitempty"`
	DailyAPStats   []StatRecord `json:"daily_ap_stats,omitempty"`
	DailyUserStats []StatRecord `json:"daily_user_stats,omitempty"`

	// Events holds raw controller events (DFS hits, restarts, roams).
	Events []StatRecord `json:"events,omitempty"`

	// Clients is the current association table (one record per connected
	// client, carrying rssi/signal and the serving AP).
	Clients []StatRecord `json:"clients,omitempty"`

	// ClientHistory holds per-association history records used for roaming
	// reconstruction, ordered as collected.
	ClientHistory []StatRecord `json:"client_history,omitempty"`
}

// APCount returns the number of access points in the device inventory
func (s *TelemetrySnapshot) APCount() int {
	n := 0
	for _, d := range s.Devices {
		if d.IsAP() {
			n++
		}
	}
	return n
}

// APName resolves an AP MAC to its display name, falling back to the MAC
func (s *TelemetrySnapshot) APName(mac string) string {
	for _, d := range s.Devices {
		if d.MAC == mac {
			return d.DisplayName()
		}
	}
	return mac
}

// SystemInfo captures the host environment an audit ran on
type SystemInfo struct {
	Hostname      string    `json:"hostname"`
	OS            string    `json:"os"`
	Platform      string    `json:"platform"`
	KernelVersion string    `json:"kernel_version,omitempty"`
	CPUCount      int       `json:"cpu_count"`
	CPUUsage      float64   `json:"cpu_usage_percent"`
	MemoryTotalMB float64   `json:"memory_total_mb"`
	MemoryUsedPct float64   `json:"memory_used_percent"`
	DiskTotalGB   float64   `json:"disk_total_gb"`
	DiskUsedPct   float64   `json:"disk_used_percent"`
	GoVersion     string    `json:"go_version,omitempty"`
	CollectedAt   time.Time `json:"collected_at"`
}

package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/unifi-audit/auditor/types"
)

// CollectSystemInfo captures the host environment once. Probe failures leave
// the affected fields zero rather than failing the audit.
func CollectSystemInfo() types.SystemInfo {
	info := types.SystemInfo{
		OS:          runtime.GOOS,
		CPUCount:    runtime.NumCPU(),
		GoVersion:   runtime.Version(),
		CollectedAt: time.Now().UTC(),
	}

	if hostInfo, err := host.Info(); err == nil {
		info.Hostname = hostInfo.Hostname
		info.Platform = hostInfo.Platform
		info.KernelVersion = hostInfo.KernelVersion
	}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		info.CPUUsage = cpuPercent[0]
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotalMB = float64(memInfo.Total) / 1024 / 1024
		info.MemoryUsedPct = memInfo.UsedPercent
	}

	if diskInfo, err := disk.Usage("/"); err == nil {
		info.DiskTotalGB = float64(diskInfo.Total) / 1024 / 1024 / 1024
		info.DiskUsedPct = diskInfo.UsedPercent
	}

	return info
}

// SystemCollector refreshes host info in the background so service mode can
// attach a current environment block to each run without probing inline.
type SystemCollector struct {
	mu        sync.RWMutex
	latest    types.SystemInfo
	isRunning bool
	stopCh    chan struct{}
	interval  time.Duration
}

// NewSystemCollector creates a collector with the given refresh interval
func NewSystemCollector(interval time.Duration) *SystemCollector {
	return &SystemCollector{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start takes an initial snapshot and begins refreshing in the background
func (sc *SystemCollector) Start() {
	sc.mu.Lock()
	if sc.isRunning {
		sc.mu.Unlock()
		return
	}
	sc.isRunning = true
	sc.latest = CollectSystemInfo()
	sc.mu.Unlock()

	go sc.refresh()
}

// Stop halts the refresh loop
func (sc *SystemCollector) Stop() {
	sc.mu.Lock()
	if !sc.isRunning {
		sc.mu.Unlock()
		return
	}
	sc.isRunning = false
	sc.mu.Unlock()

	close(sc.stopCh)
}

// Latest returns the most recent host snapshot
func (sc *SystemCollector) Latest() types.SystemInfo {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.latest
}

func (sc *SystemCollector) refresh() {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			info := CollectSystemInfo()
			sc.mu.Lock()
			sc.latest = info
			sc.mu.Unlock()
		case <-sc.stopCh:
			return
		}
	}
}

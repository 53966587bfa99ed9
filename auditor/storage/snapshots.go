package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/types"
)

// snapshotTimeFormat is embedded in snapshot filenames so they sort
// chronologically by name
const snapshotTimeFormat = "20060102-150405"

// latestPointerFile maps each site to its most recent snapshot filename
const latestPointerFile = "latest.json"

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SnapshotStore keeps raw telemetry snapshots on disk, one JSON file per audit
type SnapshotStore struct {
	dir       string
	retention time.Duration
	log       logrus.FieldLogger
}

// NewSnapshotStore creates a snapshot store rooted at the configured directory
func NewSnapshotStore(cfg *config.StorageConfig, log logrus.FieldLogger) (*SnapshotStore, error) {
	if err := cfg.EnsureSnapshotDir(); err != nil {
		return nil, err
	}
	return &SnapshotStore{
		dir:       cfg.SnapshotDir,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		log:       log.WithField("component", "snapshot_store"),
	}, nil
}

// SaveSnapshot writes a snapshot to disk and returns its path
func (s *SnapshotStore) SaveSnapshot(snap *types.TelemetrySnapshot) (string, error) {
	name := fmt.Sprintf("%s_%s.json",
		sanitizeSite(snap.Site), snap.CollectedAt.UTC().Format(snapshotTimeFormat))
	path := filepath.Join(s.dir, name)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	// The snapshot itself is saved; a failed pointer update only costs Latest
	// a directory scan
	if err := s.updateLatestPointer(snap.Site, name); err != nil {
		s.log.WithError(err).Warn("Failed to update latest snapshot pointer")
	}

	s.log.WithFields(logrus.Fields{
		"path": path,
		"site": snap.Site,
	}).Debug("Saved snapshot")
	return path, nil
}

// updateLatestPointer records name as the site's newest snapshot in the
// pointer file
func (s *SnapshotStore) updateLatestPointer(site, name string) error {
	path := filepath.Join(s.dir, latestPointerFile)

	pointers := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		// A corrupt pointer file is rebuilt from this entry on
		_ = json.Unmarshal(data, &pointers)
	}
	pointers[sanitizeSite(site)] = name

	data, err := json.MarshalIndent(pointers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal latest pointer: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// latestFromPointer resolves the site's newest snapshot path via the pointer
// file
func (s *SnapshotStore) latestFromPointer(site string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, latestPointerFile))
	if err != nil {
		return "", false
	}
	var pointers map[string]string
	if err := json.Unmarshal(data, &pointers); err != nil {
		return "", false
	}
	name, ok := pointers[sanitizeSite(site)]
	if !ok || name == "" {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// LoadSnapshot reads one snapshot file
func (s *SnapshotStore) LoadSnapshot(path string) (*types.TelemetrySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap types.TelemetrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}

// List returns the stored snapshot paths for a site, newest first
func (s *SnapshotStore) List(site string) ([]string, error) {
	pattern := filepath.Join(s.dir, sanitizeSite(site)+"_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	// Names embed the collection time, so a reverse sort is newest first
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// Latest loads the most recent snapshot for a site, resolved through the
// pointer file. A stale or missing pointer falls back to a directory scan.
func (s *SnapshotStore) Latest(site string) (*types.TelemetrySnapshot, string, error) {
	if path, ok := s.latestFromPointer(site); ok {
		if snap, err := s.LoadSnapshot(path); err == nil {
			return snap, path, nil
		}
		s.log.WithField("path", path).Warn("Latest pointer is stale, scanning snapshot directory")
	}

	paths, err := s.List(site)
	if err != nil {
		return nil, "", err
	}
	if len(paths) == 0 {
		return nil, "", fmt.Errorf("no snapshots stored for site %s", site)
	}

	snap, err := s.LoadSnapshot(paths[0])
	if err != nil {
		return nil, "", err
	}
	return snap, paths[0], nil
}

// Prune removes snapshots older than the retention window and returns how many
// were removed. Files whose names carry no parseable timestamp are left alone.
func (s *SnapshotStore) Prune() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.retention)

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	removed := 0
	for _, path := range matches {
		ts, ok := snapshotTime(path)
		if !ok || !ts.Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("Failed to remove old snapshot")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.log.WithField("removed", removed).Info("Pruned old snapshots")
	}
	return removed, nil
}

// snapshotTime parses the collection time out of a snapshot filename
func snapshotTime(path string) (time.Time, bool) {
	base := strings.TrimSuffix(filepath.Base(path), ".json")
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return time.Time{}, false
	}
	ts, err := time.Parse(snapshotTimeFormat, base[idx+1:])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func sanitizeSite(site string) string {
	cleaned := unsafePathChars.ReplaceAllString(site, "-")
	if cleaned == "" {
		return "site"
	}
	return cleaned
}

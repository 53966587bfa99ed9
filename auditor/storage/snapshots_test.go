package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/unifi-audit/auditor/config"
	"github.com/unifi-audit/auditor/types"
)

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return log
}

type SnapshotStoreTestSuite struct {
	suite.Suite
	tempDir string
	store   *SnapshotStore
}

func (suite *SnapshotStoreTestSuite) SetupTest() {
	tempDir, err := os.MkdirTemp("", "snapshot_store_test_*")
	suite.Require().NoError(err)
	suite.tempDir = tempDir

	store, err := NewSnapshotStore(&config.StorageConfig{
		SnapshotDir:   tempDir,
		RetentionDays: 30,
	}, quietLog())
	suite.Require().NoError(err)
	suite.store = store
}

func (suite *SnapshotStoreTestSuite) TearDownTest() {
	os.RemoveAll(suite.tempDir)
}

func testSnapshot(site string, collected time.Time) *types.TelemetrySnapshot {
	return &types.TelemetrySnapshot{
		Site:        site,
		CollectedAt: collected,
		Source:      "file",
		Devices: []types.Device{
			{MAC: "aa:bb:cc:dd:ee:01", Name: "Office AP", Type: "uap"},
		},
		DailyAPStats: []types.StatRecord{
			{"mac": "aa:bb:cc:dd:ee:01", "time": 1700006400.0, "satisfaction": 90.0},
		},
	}
}

func (suite *SnapshotStoreTestSuite) TestSaveAndLoadSnapshot() {
	t := suite.T()

	collected := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	path, err := suite.store.SaveSnapshot(testSnapshot("lab", collected))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(suite.tempDir, "lab_20260801-120000.json"), path)

	loaded, err := suite.store.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "lab", loaded.Site)
	assert.Equal(t, collected, loaded.CollectedAt)
	assert.Len(t, loaded.Devices, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", loaded.Devices[0].MAC)
	assert.Len(t, loaded.DailyAPStats, 1)
}

func (suite *SnapshotStoreTestSuite) TestLoadSnapshotErrors() {
	t := suite.T()

	_, err := suite.store.LoadSnapshot(filepath.Join(suite.tempDir, "missing.json"))
	assert.ErrorContains(t, err, "failed to read snapshot")

	bad := filepath.Join(suite.tempDir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = suite.store.LoadSnapshot(bad)
	assert.ErrorContains(t, err, "failed to parse snapshot")
}

func (suite *SnapshotStoreTestSuite) TestListNewestFirst() {
	t := suite.T()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := suite.store.SaveSnapshot(testSnapshot("lab", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := suite.store.SaveSnapshot(testSnapshot("office", base))
	require.NoError(t, err)

	paths, err := suite.store.List("lab")
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Contains(t, paths[0], "lab_20260801-020000.json")
	assert.Contains(t, paths[2], "lab_20260801-000000.json")
}

func (suite *SnapshotStoreTestSuite) TestLatest() {
	t := suite.T()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := suite.store.SaveSnapshot(testSnapshot("lab", base))
	require.NoError(t, err)
	_, err = suite.store.SaveSnapshot(testSnapshot("lab", base.Add(time.Hour)))
	require.NoError(t, err)

	snap, path, err := suite.store.Latest("lab")
	require.NoError(t, err)
	assert.Contains(t, path, "lab_20260801-010000.json")
	assert.Equal(t, base.Add(time.Hour), snap.CollectedAt)

	_, _, err = suite.store.Latest("unknown")
	assert.ErrorContains(t, err, "no snapshots stored for site unknown")
}

func (suite *SnapshotStoreTestSuite) TestLatestPointerFile() {
	t := suite.T()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := suite.store.SaveSnapshot(testSnapshot("lab", base))
	require.NoError(t, err)
	_, err = suite.store.SaveSnapshot(testSnapshot("office", base.Add(time.Hour)))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(suite.tempDir, latestPointerFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lab": "lab_20260801-000000.json"`)
	assert.Contains(t, string(data), `"office": "office_20260801-010000.json"`)
}

func (suite *SnapshotStoreTestSuite) TestLatestFallsBackWhenPointerStale() {
	t := suite.T()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	older, err := suite.store.SaveSnapshot(testSnapshot("lab", base))
	require.NoError(t, err)
	newest, err := suite.store.SaveSnapshot(testSnapshot("lab", base.Add(time.Hour)))
	require.NoError(t, err)

	// The pointed-at file disappears out from under the pointer
	require.NoError(t, os.Remove(newest))

	snap, path, err := suite.store.Latest("lab")
	require.NoError(t, err)
	assert.Equal(t, older, path)
	assert.Equal(t, base, snap.CollectedAt)

	// A corrupt pointer file scans too
	require.NoError(t, os.WriteFile(filepath.Join(suite.tempDir, latestPointerFile), []byte("{broken"), 0644))
	_, path, err = suite.store.Latest("lab")
	require.NoError(t, err)
	assert.Equal(t, older, path)
}

func (suite *SnapshotStoreTestSuite) TestPruneRemovesOldSnapshots() {
	t := suite.T()

	old := time.Now().UTC().Add(-90 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	_, err := suite.store.SaveSnapshot(testSnapshot("lab", old))
	require.NoError(t, err)
	keep, err := suite.store.SaveSnapshot(testSnapshot("lab", recent))
	require.NoError(t, err)

	// Files without an embedded timestamp are not the store's to delete
	stray := filepath.Join(suite.tempDir, "notes.json")
	require.NoError(t, os.WriteFile(stray, []byte("{}"), 0644))

	removed, err := suite.store.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoFileExists(t, filepath.Join(suite.tempDir, "lab_"+old.Format(snapshotTimeFormat)+".json"))
	assert.FileExists(t, keep)
	assert.FileExists(t, stray)
}

func (suite *SnapshotStoreTestSuite) TestPruneDisabledWithoutRetention() {
	t := suite.T()

	store, err := NewSnapshotStore(&config.StorageConfig{SnapshotDir: suite.tempDir}, quietLog())
	require.NoError(t, err)

	_, err = store.SaveSnapshot(testSnapshot("lab", time.Now().UTC().Add(-365*24*time.Hour)))
	require.NoError(t, err)

	removed, err := store.Prune()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func (suite *SnapshotStoreTestSuite) TestSanitizeSite() {
	t := suite.T()

	assert.Equal(t, "Main-Campus-1", sanitizeSite("Main Campus #1"))
	assert.Equal(t, "warehouse_east", sanitizeSite("warehouse_east"))
	assert.Equal(t, "site", sanitizeSite(""))
	assert.Equal(t, "site", sanitizeSite("///"))
}

func TestSnapshotStoreTestSuite(t *testing.T) {
	suite.Run(t, new(SnapshotStoreTestSuite))
}

package ingest

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/types"
)

// FileSource collects snapshots from a controller export file on disk. It
// satisfies the same collector shape as the Prometheus source so callers can
// switch between them by config.
type FileSource struct {
	path   string
	parser *Parser
}

// NewFileSource creates a collector that reads the given export file
func NewFileSource(path, site string, log logrus.FieldLogger) *FileSource {
	return &FileSource{
		path:   path,
		parser: NewParser(site, log),
	}
}

// Collect parses the export file into a snapshot
func (f *FileSource) Collect(ctx context.Context) (*types.TelemetrySnapshot, error) {
	return f.parser.LoadSnapshot(f.path)
}

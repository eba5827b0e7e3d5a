package recorder

import "VCPScanner/internal/model"

// Stats summarises the contents of a capture database.
type Stats struct {
	Captures     int
	SnapshotRows int
	BarRows      int
	Symbols      int
	Providers    []string
}

// Recorder persists raw provider responses so scans can be replayed offline.
type Recorder interface {
	RecordSnapshot(provider string, rows []model.SnapshotRow) error
	RecordBars(provider, code string, bars []model.Bar) error
	Close() error
}

package recorder

import "VCPScanner/internal/model"

// NoopRecorder is a no-op implementation used when capture is not enabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSnapshot(_ string, _ []model.SnapshotRow) error { return nil }
func (n *NoopRecorder) RecordBars(_, _ string, _ []model.Bar) error        { return nil }
func (n *NoopRecorder) Close() error                                       { return nil }

package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"VCPScanner/internal/model"
)

// MockProvider returns controllable fixed data for development and testing.
// Without configured histories it generates a slowly rising series for any code.
type MockProvider struct {
	Label string

	Rows []model.SnapshotRow
	// SnapshotFailures makes the first N Snapshot calls fail.
	SnapshotFailures int
	SnapshotErr      error

	Histories   map[string][]model.Bar
	HistoryErrs map[string]error
	BasePrice   float64

	mu            sync.Mutex
	snapshotCalls int
	historyCalls  []string
}

func (m *MockProvider) Name() string {
	if m.Label != "" {
		return m.Label
	}
	return "mock"
}

func (m *MockProvider) Snapshot(_ context.Context) ([]model.SnapshotRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotCalls++
	if m.SnapshotErr != nil {
		return nil, m.SnapshotErr
	}
	if m.snapshotCalls <= m.SnapshotFailures {
		return nil, fmt.Errorf("%w: mock snapshot failure %d", ErrUpstreamUnavailable, m.snapshotCalls)
	}
	return m.Rows, nil
}

func (m *MockProvider) History(_ context.Context, code string, days int) ([]model.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls = append(m.historyCalls, code)
	if err, ok := m.HistoryErrs[code]; ok {
		return nil, err
	}
	if m.Histories != nil {
		bars, ok := m.Histories[code]
		if !ok {
			return nil, fmt.Errorf("%w: mock has no history for %s", ErrUpstreamUnavailable, code)
		}
		return bars, nil
	}
	base := m.BasePrice
	if base == 0 {
		base = 100
	}
	return generateMockBars(base, days), nil
}

// SnapshotCalls returns how many times Snapshot was called.
func (m *MockProvider) SnapshotCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotCalls
}

// HistoryCalls returns the codes History was called with, in order.
func (m *MockProvider) HistoryCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.historyCalls...)
}

func generateMockBars(basePrice float64, count int) []model.Bar {
	start := time.Now().Truncate(24 * time.Hour)
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:   start.AddDate(0, 0, -(count - i)),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

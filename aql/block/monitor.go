package block

import (
	"sync"

	"github.com/wbrown/janus-aql/aql"
)

// ResourceMonitor accounts memory for a query. Reserve is consulted before
// every block allocation; a failed reservation leaves the accounting
// unchanged.
type ResourceMonitor interface {
	Reserve(bytes uint64) error
	Free(bytes uint64)
}

// Monitor is a byte-accounting ResourceMonitor with an optional limit.
// A zero limit means unlimited. Safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	limit   uint64
	current uint64
	peak    uint64
}

// NewMonitor creates a monitor enforcing limit bytes (0 = unlimited).
func NewMonitor(limit uint64) *Monitor {
	return &Monitor{limit: limit}
}

// Reserve accounts bytes or returns aql.ErrResourceLimitExceeded.
func (m *Monitor) Reserve(bytes uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limit > 0 && m.current+bytes > m.limit {
		return aql.NewResourceLimitError(bytes, m.current, m.limit)
	}
	m.current += bytes
	if m.current > m.peak {
		m.peak = m.current
	}
	return nil
}

// Free returns bytes to the monitor.
func (m *Monitor) Free(bytes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bytes > m.current {
		m.current = 0
		return
	}
	m.current -= bytes
}

// Current returns the bytes currently reserved.
func (m *Monitor) Current() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Peak returns the high-water mark.
func (m *Monitor) Peak() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Limit returns the configured limit.
func (m *Monitor) Limit() uint64 {
	return m.limit
}

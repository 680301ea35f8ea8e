// Package annotations records execution events of a query (block calls,
// suspensions, completions) for tracing and verbose output.
package annotations

import (
	"sync"
	"time"
)

// Event names, hierarchical like "<subject>/<what>".
const (
	// Query lifecycle
	QueryInvoked   = "query/invoked"
	QueryComplete  = "query/completed"
	QueryWaiting   = "query/waiting"
	QueryKilled    = "query/killed"
	QueryBatchSent = "query/batch.sent"

	// Block execution
	BlockExecute     = "block/execute"
	BlockWaiting     = "block/waiting"
	BlockDone        = "block/done"
	BlockPassthrough = "block/passthrough"

	// Subquery splicing
	SubqueryRunStarted  = "subquery/run.started"
	SubqueryRunFinished = "subquery/run.finished"

	// Errors
	ErrorResourceLimit = "error/resource.limit"
	ErrorUpstream      = "error/upstream"
	ErrorInternal      = "error/internal"
)

// Event is a single annotation recorded during execution.
type Event struct {
	Name    string                 // one of the constants above
	Start   time.Time              // start timestamp
	End     time.Time              // end timestamp
	Latency time.Duration          // End - Start
	Data    map[string]interface{} // event specific fields
}

// Handler processes events as they occur.
type Handler func(event Event)

// Collector accumulates events of one query. A collector without a
// handler is disabled and drops everything, so hot paths can call it
// unconditionally.
type Collector struct {
	enabled bool
	handler Handler

	mu     sync.Mutex
	events []Event
}

// NewCollector creates a collector. A nil handler disables collection.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 64),
	}
}

// Enabled reports whether events are recorded.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Add records an event and forwards it to the handler.
// Safe for concurrent use.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Handler runs outside the lock so it may call back into the collector.
	c.handler(event)
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}
	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Count returns how many events of the given name were recorded.
func (c *Collector) Count(name string) int {
	n := 0
	for _, e := range c.Events() {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Reset clears recorded events; the handler is kept.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

package executor

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/annotations"
	"github.com/wbrown/janus-aql/aql/block"
)

// QueryOptions configure a Query. Zero values select defaults.
type QueryOptions struct {
	// BatchSize caps output block sizes (DefaultBatchSize if 0).
	BatchSize int
	// Monitor accounts the query's memory (unlimited if nil).
	Monitor block.ResourceMonitor
	// Logger is the base logger (logrus standard logger if nil).
	Logger *logrus.Logger
	// Annotations receives execution events (disabled if nil).
	Annotations annotations.Handler
}

// Query is the per-query context shared by all blocks of one pipeline:
// block allocation, kill state, logging and the wake-up signal used by
// asynchronous sources.
type Query struct {
	id          string
	batchSize   int
	manager     *block.Manager
	logger      *logrus.Entry
	annotations *annotations.Collector
	killed      int32
	wakeup      chan struct{}
}

// NewQuery creates a query context with a fresh id.
func NewQuery(opts QueryOptions) *Query {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	base := opts.Logger
	if base == nil {
		base = logrus.StandardLogger()
	}
	id := uuid.New().String()
	return &Query{
		id:          id,
		batchSize:   opts.BatchSize,
		manager:     block.NewManager(opts.Monitor),
		logger:      base.WithField("query", id),
		annotations: annotations.NewCollector(opts.Annotations),
		wakeup:      make(chan struct{}, 1),
	}
}

// ID returns the query id.
func (q *Query) ID() string { return q.id }

// BatchSize returns the maximum rows per output block.
func (q *Query) BatchSize() int { return q.batchSize }

// Manager returns the block manager of the query.
func (q *Query) Manager() *block.Manager { return q.manager }

// Logger returns the query's logger.
func (q *Query) Logger() *logrus.Entry { return q.logger }

// Annotations returns the event collector.
func (q *Query) Annotations() *annotations.Collector { return q.annotations }

// Kill marks the query as killed. Every block observes it on its next
// call and fails with aql.ErrQueryKilled.
func (q *Query) Kill() {
	atomic.StoreInt32(&q.killed, 1)
	q.Wakeup()
}

// Killed reports whether Kill was called.
func (q *Query) Killed() bool {
	return atomic.LoadInt32(&q.killed) == 1
}

// Wakeup signals that a suspended source may have made progress. It never
// blocks; pending signals coalesce.
func (q *Query) Wakeup() {
	select {
	case q.wakeup <- struct{}{}:
	default:
	}
}

// WaitForWakeup blocks until Wakeup is called or ctx is done.
func (q *Query) WaitForWakeup(ctx context.Context) error {
	select {
	case <-q.wakeup:
		return nil
	case <-ctx.Done():
		return aql.NewQueryKilledError(ctx.Err())
	}
}

// checkKilled returns the error a killed or cancelled query fails with.
func (q *Query) checkKilled(ctx context.Context) error {
	if q.Killed() {
		return aql.ErrQueryKilled
	}
	if err := ctx.Err(); err != nil {
		return aql.NewQueryKilledError(err)
	}
	return nil
}

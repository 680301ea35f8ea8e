package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/annotations"
	"github.com/wbrown/janus-aql/aql/block"
	"github.com/wbrown/janus-aql/aql/executor"
	"github.com/wbrown/janus-aql/aql/storage"
)

// Result is the outcome of one query.
type Result struct {
	QueryID string
	// Width is the number of registers of every row.
	Width int
	Rows  [][]aql.Value
	// Skipped counts the rows skipped for the client: its offset plus,
	// with fullCount, the rows counted after the limit.
	Skipped    uint64
	Stats      executor.Stats
	Waits      int
	Duration   time.Duration
	PeakMemory uint64
}

// Fingerprint hashes the rows in order. Two results with equal rows have
// equal fingerprints.
func (r *Result) Fingerprint() uint64 {
	rows := make([]aql.Value, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = row
	}
	return aql.HashRow(rows)
}

// Runner builds and runs plans against a store.
type Runner struct {
	cfg     Config
	store   *storage.Store
	logger  *logrus.Logger
	handler annotations.Handler
	metrics *Metrics
}

// NewRunner creates a runner. store may be nil for plans that read no
// collections.
func NewRunner(cfg Config, store *storage.Store) *Runner {
	cfg = cfg.withDefaults()
	return &Runner{
		cfg:     cfg,
		store:   store,
		logger:  cfg.NewLogger(),
		metrics: NewMetrics(),
	}
}

// SetLogger replaces the logger derived from the config.
func (r *Runner) SetLogger(l *logrus.Logger) { r.logger = l }

// SetAnnotationHandler receives the execution events of every query.
// Without a handler events are only recorded when the config is verbose.
func (r *Runner) SetAnnotationHandler(h annotations.Handler) { r.handler = h }

// Metrics returns the runner's metrics.
func (r *Runner) Metrics() *Metrics { return r.metrics }

// Execution is a prepared query: its blocks are built and nothing has
// run yet.
type Execution struct {
	runner   *Runner
	plan     *Plan
	query    *executor.Query
	monitor  *block.Monitor
	remotes  *RemoteGroup
	pipeline *Pipeline
}

// Prepare builds the pipeline of p under a fresh query.
func (r *Runner) Prepare(p *Plan) (*Execution, error) {
	handler := r.handler
	if handler == nil && r.cfg.Verbose {
		handler = func(annotations.Event) {}
	}
	monitor := block.NewMonitor(r.cfg.MemoryLimit)
	q := executor.NewQuery(executor.QueryOptions{
		BatchSize:   r.cfg.BatchSize,
		Monitor:     monitor,
		Logger:      r.logger,
		Annotations: handler,
	})
	remotes := NewRemoteGroup()
	pipeline, err := NewBuilder(q, r.store, remotes).Build(p)
	if err != nil {
		return nil, errors.Wrapf(err, "building plan %q", p.Name)
	}
	return &Execution{
		runner:   r,
		plan:     p,
		query:    q,
		monitor:  monitor,
		remotes:  remotes,
		pipeline: pipeline,
	}, nil
}

// Query returns the query context of the execution.
func (e *Execution) Query() *executor.Query { return e.query }

// Pipeline returns the built blocks.
func (e *Execution) Pipeline() *Pipeline { return e.pipeline }

// Kill aborts the execution. Safe to call from any goroutine.
func (e *Execution) Kill() { e.query.Kill() }

// Run builds and runs p.
func (r *Runner) Run(ctx context.Context, p *Plan) (*Result, error) {
	exec, err := r.Prepare(p)
	if err != nil {
		r.metrics.observe(nil, err)
		return nil, err
	}
	return exec.Run(ctx)
}

// Run pulls the plan's client call through the pipeline until it is
// done. On error the partial result gathered so far is returned with it.
func (e *Execution) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	q := e.query
	log := q.Logger().WithField("plan", e.plan.Name)
	q.Annotations().Add(annotations.Event{
		Name:  annotations.QueryInvoked,
		Start: start,
		Data:  map[string]interface{}{"query.id": q.ID(), "plan": e.plan.Name, "call": e.plan.Call().String()},
	})
	log.Debug("query started")

	res := &Result{QueryID: q.ID(), Width: e.pipeline.Width}
	err := e.pull(ctx, res)
	e.remotes.Wait()

	res.Stats = e.pipeline.Stats()
	res.Duration = time.Since(start)
	res.PeakMemory = e.monitor.Peak()
	e.runner.metrics.observe(res, err)

	data := map[string]interface{}{
		"rows":    len(res.Rows),
		"skipped": res.Skipped,
		"waits":   res.Waits,
	}
	if err != nil {
		data["error"] = err.Error()
		name := annotations.QueryComplete
		if aql.IsQueryKilled(err) {
			name = annotations.QueryKilled
		}
		q.Annotations().AddTiming(name, start, data)
		log.WithError(err).Warn("query failed")
		return res, err
	}
	q.Annotations().AddTiming(annotations.QueryComplete, start, data)
	log.WithFields(logrus.Fields{
		"rows":     len(res.Rows),
		"duration": res.Duration,
	}).Debug("query completed")
	return res, nil
}

func (e *Execution) pull(ctx context.Context, res *Result) error {
	q := e.query
	call := e.plan.Call()
	batch := call.SoftLimit
	for {
		state, skipped, blk, err := e.pipeline.Top.Execute(ctx, executor.NewCallStackFromCall(call))
		if err != nil {
			return err
		}
		if state == aql.Waiting {
			res.Waits++
			waitStart := time.Now()
			if err := q.WaitForWakeup(ctx); err != nil {
				return err
			}
			q.Annotations().AddTiming(annotations.QueryWaiting, waitStart, nil)
			continue
		}

		n := 0
		if blk != nil {
			for i := 0; i < blk.NumRows(); i++ {
				if blk.IsShadowRow(i) {
					blk.Release()
					return errors.AssertionFailedf("shadow row at top level")
				}
				res.Rows = append(res.Rows, blk.Values(i))
			}
			n = blk.NumRows()
			blk.Release()
			q.Annotations().Add(annotations.Event{
				Name:  annotations.QueryBatchSent,
				Start: time.Now(),
				Data:  map[string]interface{}{"rows": n},
			})
		}
		count := skipped.GetSkipCount()
		res.Skipped += count
		call.DidSkip(count)
		call.ResetSkipCount()
		call.DidProduce(uint64(n))

		if state == aql.Done {
			return nil
		}
		if call.GetOffset() == 0 && call.HasSoftLimit() && call.GetLimit() == 0 {
			call = executor.Call{SoftLimit: batch}
		}
	}
}

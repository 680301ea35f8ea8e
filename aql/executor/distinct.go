package executor

import (
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// distinctEntryOverhead approximates the map slot and slice header of one
// remembered value.
const distinctEntryOverhead = 48

// DistinctExecutor passes on the first row for every distinct value of
// one register within a subquery run. Seen values are remembered by
// siphash with an equality check on collision, and their memory is
// reserved on the query's monitor.
type DistinctExecutor struct {
	input    aql.RegisterID
	monitor  block.ResourceMonitor
	seen     map[uint64][]aql.Value
	reserved uint64
}

// NewDistinctExecutor creates a distinct over input. A nil monitor skips
// accounting.
func NewDistinctExecutor(input aql.RegisterID, monitor block.ResourceMonitor) *DistinctExecutor {
	return &DistinctExecutor{
		input:   input,
		monitor: monitor,
		seen:    make(map[uint64][]aql.Value),
	}
}

// Properties implements Executor.
func (e *DistinctExecutor) Properties() Properties {
	return Properties{
		PreservesOrder:               true,
		AllowsBlockPassthrough:       true,
		InputSizeRestrictsOutputSize: true,
	}
}

// ExpectedNumberOfRows implements RowEstimator.
func (e *DistinctExecutor) ExpectedNumberOfRows(input *block.InputRange, call Call) uint64 {
	return countDataRows(input, call)
}

// Reset implements Resetter.
func (e *DistinctExecutor) Reset() {
	e.seen = make(map[uint64][]aql.Value)
	if e.monitor != nil && e.reserved > 0 {
		e.monitor.Free(e.reserved)
	}
	e.reserved = 0
}

// ProduceRows implements Executor.
func (e *DistinctExecutor) ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	var stats Stats
	for !output.IsFull() && input.HasDataRow() {
		_, row := input.NextDataRow()
		fresh, err := e.remember(row.Value(e.input))
		if err != nil {
			return aql.ExecutorDone, stats, Call{}, err
		}
		if !fresh {
			stats.Filtered++
			continue
		}
		output.CopyRow(row)
		output.AdvanceRow()
	}
	return input.UpstreamState(), stats, Call{}, nil
}

// SkipRowsRange implements Executor. Skipped values are remembered, so
// they are not produced later in the run.
func (e *DistinctExecutor) SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	var (
		stats   Stats
		skipped uint64
	)
	for call.ShouldSkip() && input.HasDataRow() {
		_, row := input.NextDataRow()
		fresh, err := e.remember(row.Value(e.input))
		if err != nil {
			return aql.ExecutorDone, stats, skipped, Call{}, err
		}
		if !fresh {
			stats.Filtered++
			continue
		}
		call.DidSkip(1)
		skipped++
	}
	return input.UpstreamState(), stats, skipped, Call{}, nil
}

// remember reports whether v was not seen before in this run.
func (e *DistinctExecutor) remember(v aql.Value) (bool, error) {
	h := aql.Hash(v)
	for _, other := range e.seen[h] {
		if aql.ValuesEqual(v, other) {
			return false, nil
		}
	}
	if e.monitor != nil {
		size := aql.MemoryUsage(v) + distinctEntryOverhead
		if err := e.monitor.Reserve(size); err != nil {
			return false, err
		}
		e.reserved += size
	}
	e.seen[h] = append(e.seen[h], v)
	return true, nil
}

package executor

import (
	"math"

	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// NoLimit is the limit of a LimitExecutor that only skips.
const NoLimit = math.MaxUint64

// LimitExecutor implements LIMIT offset, count within one subquery run.
// With fullCount it reports every input row of the run as FullCount,
// including rows before the offset and after the limit.
type LimitExecutor struct {
	offset    uint64
	limit     uint64
	fullCount bool

	skipped  uint64
	produced uint64
}

// NewLimitExecutor creates a LIMIT offset, limit. Use NoLimit for an
// unbounded limit.
func NewLimitExecutor(offset, limit uint64, fullCount bool) *LimitExecutor {
	return &LimitExecutor{offset: offset, limit: limit, fullCount: fullCount}
}

// Properties implements Executor. Fast forwarding has to pass through
// the executor so the full count sees every row.
func (e *LimitExecutor) Properties() Properties {
	return Properties{
		PreservesOrder:         true,
		AllowsBlockPassthrough: true,
		FastForwardViaExecutor: true,
	}
}

// Reset implements Resetter.
func (e *LimitExecutor) Reset() {
	e.skipped = 0
	e.produced = 0
}

func (e *LimitExecutor) limitReached() bool {
	return e.produced >= e.limit
}

func (e *LimitExecutor) count(stats *Stats, n uint64) {
	if e.fullCount {
		stats.FullCount += n
	}
}

// skipOffset consumes the part of the offset not yet skipped.
func (e *LimitExecutor) skipOffset(input *block.InputRange, stats *Stats) {
	if e.skipped < e.offset {
		n := input.Skip(e.offset - e.skipped)
		e.skipped += n
		e.count(stats, n)
	}
}

// upstreamCall asks for exactly the rows that can still matter.
func (e *LimitExecutor) upstreamCall() Call {
	if e.limitReached() {
		if e.fullCount {
			return Call{}
		}
		return DiscardCall()
	}
	if e.fullCount || e.limit == NoLimit {
		return Call{}
	}
	return Call{SoftLimit: LimitOf(e.offset - e.skipped + e.limit - e.produced)}
}

// ProduceRows implements Executor.
func (e *LimitExecutor) ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	var stats Stats
	e.skipOffset(input, &stats)
	for !e.limitReached() && !output.IsFull() && input.HasDataRow() {
		_, row := input.NextDataRow()
		output.CopyRow(row)
		output.AdvanceRow()
		e.produced++
		e.count(&stats, 1)
	}
	if e.limitReached() {
		return aql.ExecutorDone, stats, e.upstreamCall(), nil
	}
	return input.UpstreamState(), stats, e.upstreamCall(), nil
}

// SkipRowsRange implements Executor. Rows between offset and limit are
// skipped on behalf of call; rows past the limit are only counted.
func (e *LimitExecutor) SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	var (
		stats   Stats
		skipped uint64
	)
	e.skipOffset(input, &stats)
	for !e.limitReached() && call.ShouldSkip() && input.HasDataRow() {
		want := call.GetOffset()
		if want == 0 {
			want = math.MaxUint64
		}
		if left := e.limit - e.produced; want > left {
			want = left
		}
		n := input.Skip(want)
		e.produced += n
		e.count(&stats, n)
		call.DidSkip(n)
		skipped += n
	}
	if e.limitReached() {
		e.count(&stats, input.SkipAll())
	}
	return input.UpstreamState(), stats, skipped, e.upstreamCall(), nil
}

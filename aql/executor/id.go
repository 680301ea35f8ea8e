package executor

import (
	"math"

	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// IdExecutor copies its input unchanged. It is used for sources and as
// the pipeline head, and it always allows block passthrough.
type IdExecutor struct {
	// scan makes every row read count as Scanned.
	scan bool
}

// NewIdExecutor creates an IdExecutor.
func NewIdExecutor() *IdExecutor {
	return &IdExecutor{}
}

// NewScanExecutor creates an IdExecutor for a source block. It reports
// the rows it hands on or skips as Scanned.
func NewScanExecutor() *IdExecutor {
	return &IdExecutor{scan: true}
}

// Properties implements Executor.
func (e *IdExecutor) Properties() Properties {
	return Properties{
		PreservesOrder:         true,
		AllowsBlockPassthrough: true,
	}
}

// ProduceRows implements Executor.
func (e *IdExecutor) ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	var stats Stats
	for !output.IsFull() && input.HasDataRow() {
		_, row := input.NextDataRow()
		output.CopyRow(row)
		output.AdvanceRow()
		stats.Scanned++
	}
	if !e.scan {
		stats = Stats{}
	}
	// Ask upstream for what the client still wants.
	return input.UpstreamState(), stats, output.ClientCall(), nil
}

// SkipRowsRange implements Executor.
func (e *IdExecutor) SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	skipped := skipDataRows(input, call)
	var stats Stats
	if e.scan {
		stats.Scanned = skipped
	}
	return input.UpstreamState(), stats, skipped, Call{}, nil
}

// skipDataRows skips input rows one for one against call, as long as the
// call wants rows skipped. A pending full count consumes the whole run.
func skipDataRows(input *block.InputRange, call *Call) uint64 {
	var skipped uint64
	for call.ShouldSkip() && input.HasDataRow() {
		want := call.GetOffset()
		if want == 0 {
			want = math.MaxUint64
		}
		n := input.Skip(want)
		call.DidSkip(n)
		skipped += n
	}
	return skipped
}

// countDataRows is the row estimate of executors that emit at most one
// row per input row.
func countDataRows(input *block.InputRange, call Call) uint64 {
	n := input.CountDataRows()
	if limit := call.GetLimit(); limit < n {
		return limit
	}
	return n
}

package executor

import (
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// SubqueryEndExecutor collects the values of one register over a
// subquery run and, when the run's relevant shadow row arrives, turns
// that shadow row back into a data row carrying the collected array.
//
// The collected values are reserved on the monitor until they are handed
// to the output or the run is reset.
type SubqueryEndExecutor struct {
	input    aql.RegisterID
	output   aql.RegisterID
	monitor  block.ResourceMonitor
	values   []aql.Value
	reserved uint64
}

// NewSubqueryEndExecutor collects input into output. A nil monitor skips
// accounting.
func NewSubqueryEndExecutor(input, output aql.RegisterID, monitor block.ResourceMonitor) *SubqueryEndExecutor {
	return &SubqueryEndExecutor{input: input, output: output, monitor: monitor}
}

// Properties implements Executor.
func (e *SubqueryEndExecutor) Properties() Properties {
	return Properties{
		PreservesOrder:               true,
		InputSizeRestrictsOutputSize: true,
	}
}

// ExpectedNumberOfRows implements RowEstimator. Data rows are swallowed;
// only shadow rows reach the output.
func (e *SubqueryEndExecutor) ExpectedNumberOfRows(*block.InputRange, Call) uint64 {
	return 0
}

// Reset implements Resetter.
func (e *SubqueryEndExecutor) Reset() {
	e.values = nil
	e.free()
}

func (e *SubqueryEndExecutor) free() {
	if e.monitor != nil && e.reserved > 0 {
		e.monitor.Free(e.reserved)
	}
	e.reserved = 0
}

// ProduceRows implements Executor. It never writes: data rows of the
// run are accumulated.
func (e *SubqueryEndExecutor) ProduceRows(input *block.InputRange, _ *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	if err := e.accumulate(input); err != nil {
		return aql.ExecutorDone, Stats{}, Call{}, err
	}
	return input.UpstreamState(), Stats{}, Call{}, nil
}

// SkipRowsRange implements Executor. The subquery result is one row per
// run, so rows inside a run are never skipped individually.
func (e *SubqueryEndExecutor) SkipRowsRange(input *block.InputRange, _ *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	if err := e.accumulate(input); err != nil {
		return aql.ExecutorDone, Stats{}, 0, Call{}, err
	}
	return input.UpstreamState(), Stats{}, 0, Call{}, nil
}

func (e *SubqueryEndExecutor) accumulate(input *block.InputRange) error {
	for input.HasDataRow() {
		_, row := input.PeekDataRow()
		v := row.Value(e.input)
		if e.monitor != nil {
			size := aql.MemoryUsage(v) + 16
			if err := e.monitor.Reserve(size); err != nil {
				return err
			}
			e.reserved += size
		}
		input.NextDataRow()
		e.values = append(e.values, v)
	}
	return nil
}

// ConsumeShadowRow writes the collected array into sr's row.
func (e *SubqueryEndExecutor) ConsumeShadowRow(sr block.ShadowRow, output *OutputRow) error {
	result := e.values
	if result == nil {
		result = []aql.Value{}
	}
	e.values = nil
	output.ConsumeShadowRow(e.output, sr, result)
	e.free()
	return nil
}

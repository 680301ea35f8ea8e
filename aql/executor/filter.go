package executor

import (
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
	"github.com/wbrown/janus-aql/aql/expr"
)

// FilterExecutor passes on the input rows whose condition is truthy.
// The condition is either an input register holding a precomputed
// boolean or an expression evaluated per row.
type FilterExecutor struct {
	condition expr.Expression
}

// NewFilterExecutor filters on the value of reg.
func NewFilterExecutor(reg aql.RegisterID) *FilterExecutor {
	return &FilterExecutor{condition: expr.Reference{Register: reg}}
}

// NewExpressionFilterExecutor filters on an expression over the row.
func NewExpressionFilterExecutor(condition expr.Expression) *FilterExecutor {
	return &FilterExecutor{condition: condition}
}

// Properties implements Executor.
func (e *FilterExecutor) Properties() Properties {
	return Properties{
		PreservesOrder:               true,
		AllowsBlockPassthrough:       true,
		InputSizeRestrictsOutputSize: true,
	}
}

// ExpectedNumberOfRows implements RowEstimator.
func (e *FilterExecutor) ExpectedNumberOfRows(input *block.InputRange, call Call) uint64 {
	return countDataRows(input, call)
}

// ProduceRows implements Executor.
func (e *FilterExecutor) ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	var stats Stats
	for !output.IsFull() && input.HasDataRow() {
		_, row := input.NextDataRow()
		ok, err := e.accepts(row)
		if err != nil {
			return aql.ExecutorDone, stats, Call{}, err
		}
		if !ok {
			stats.Filtered++
			continue
		}
		output.CopyRow(row)
		output.AdvanceRow()
	}
	return input.UpstreamState(), stats, Call{}, nil
}

// SkipRowsRange implements Executor. Only rows passing the condition
// count as skipped.
func (e *FilterExecutor) SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	var (
		stats   Stats
		skipped uint64
	)
	for call.ShouldSkip() && input.HasDataRow() {
		_, row := input.NextDataRow()
		ok, err := e.accepts(row)
		if err != nil {
			return aql.ExecutorDone, stats, skipped, Call{}, err
		}
		if !ok {
			stats.Filtered++
			continue
		}
		call.DidSkip(1)
		skipped++
	}
	return input.UpstreamState(), stats, skipped, Call{}, nil
}

func (e *FilterExecutor) accepts(row block.InputRow) (bool, error) {
	v, err := e.condition.Evaluate(row)
	if err != nil {
		return false, err
	}
	return aql.Truthy(v), nil
}

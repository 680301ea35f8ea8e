package executor

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
	"github.com/wbrown/janus-aql/aql/expr"
)

// CalculationExecutor evaluates an expression for every input row and
// writes the result into an output register.
type CalculationExecutor struct {
	expression expr.Expression
	output     aql.RegisterID
}

// NewCalculationExecutor writes the value of expression into output.
func NewCalculationExecutor(expression expr.Expression, output aql.RegisterID) *CalculationExecutor {
	return &CalculationExecutor{expression: expression, output: output}
}

// Properties implements Executor.
func (e *CalculationExecutor) Properties() Properties {
	return Properties{
		PreservesOrder:               true,
		InputSizeRestrictsOutputSize: true,
	}
}

// ExpectedNumberOfRows implements RowEstimator.
func (e *CalculationExecutor) ExpectedNumberOfRows(input *block.InputRange, call Call) uint64 {
	return countDataRows(input, call)
}

// ProduceRows implements Executor.
func (e *CalculationExecutor) ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	for !output.IsFull() && input.HasDataRow() {
		_, row := input.PeekDataRow()
		v, err := e.expression.Evaluate(row)
		if err != nil {
			return aql.ExecutorDone, Stats{}, Call{}, errors.Wrapf(err, "evaluating %s", e.expression)
		}
		input.NextDataRow()
		output.SetValue(e.output, row, v)
		output.AdvanceRow()
	}
	return input.UpstreamState(), Stats{}, output.ClientCall(), nil
}

// SkipRowsRange implements Executor. Skipped rows are not evaluated.
func (e *CalculationExecutor) SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	skipped := skipDataRows(input, call)
	return input.UpstreamState(), Stats{}, skipped, Call{}, nil
}

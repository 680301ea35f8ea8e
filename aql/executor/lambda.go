package executor

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// ProduceFunc is the body of a LambdaExecutor's ProduceRows.
type ProduceFunc func(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error)

// SkipFunc is the body of a LambdaExecutor's SkipRowsRange.
type SkipFunc func(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error)

// LambdaExecutor delegates to injected closures. It lets callers plug an
// ad hoc transformation into a pipeline without a dedicated type.
type LambdaExecutor struct {
	props   Properties
	produce ProduceFunc
	skip    SkipFunc
	reset   func()
}

// NewLambdaExecutor creates an executor with the given properties. A nil
// skip skips rows one for one.
func NewLambdaExecutor(props Properties, produce ProduceFunc, skip SkipFunc) *LambdaExecutor {
	if produce == nil {
		panic(errors.AssertionFailedf("lambda executor without produce function"))
	}
	if props.InputSizeRestrictsOutputSize {
		panic(errors.AssertionFailedf("lambda executor cannot estimate its output size"))
	}
	if skip == nil {
		skip = func(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
			skipped := skipDataRows(input, call)
			return input.UpstreamState(), Stats{}, skipped, Call{}, nil
		}
	}
	return &LambdaExecutor{props: props, produce: produce, skip: skip}
}

// WithReset installs a function called at the end of every subquery run.
func (e *LambdaExecutor) WithReset(fn func()) *LambdaExecutor {
	e.reset = fn
	return e
}

// Properties implements Executor.
func (e *LambdaExecutor) Properties() Properties { return e.props }

// ProduceRows implements Executor.
func (e *LambdaExecutor) ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	return e.produce(input, output)
}

// SkipRowsRange implements Executor.
func (e *LambdaExecutor) SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	return e.skip(input, call)
}

// Reset implements Resetter.
func (e *LambdaExecutor) Reset() {
	if e.reset != nil {
		e.reset()
	}
}

// CopyProducer is a ProduceFunc that copies rows unchanged.
func CopyProducer(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	for !output.IsFull() && input.HasDataRow() {
		_, row := input.NextDataRow()
		output.CopyRow(row)
		output.AdvanceRow()
	}
	return input.UpstreamState(), Stats{}, Call{}, nil
}

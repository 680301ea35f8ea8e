package executor

import (
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// SubqueryStartExecutor opens one subquery run per input row. For every
// data row it first writes a copy (the row the subquery body sees) and
// then, through the driver, the same row as a relevant shadow row that
// closes the run. Shadow rows from enclosing subqueries are forwarded one
// level deeper.
//
// Between the copy and its shadow row the input row is pending: it stays
// in the input range until ProduceShadowRow consumes it.
type SubqueryStartExecutor struct {
	pending bool
}

// NewSubqueryStartExecutor creates a SubqueryStartExecutor.
func NewSubqueryStartExecutor() *SubqueryStartExecutor {
	return &SubqueryStartExecutor{}
}

// Properties implements Executor.
func (e *SubqueryStartExecutor) Properties() Properties {
	return Properties{
		PreservesOrder:               true,
		InputSizeRestrictsOutputSize: true,
		FastForwardViaExecutor:       true,
	}
}

// ExpectedNumberOfRows implements RowEstimator. Every data row turns into
// a copy and a shadow row.
func (e *SubqueryStartExecutor) ExpectedNumberOfRows(input *block.InputRange, _ Call) uint64 {
	return 2 * input.CountDataRows()
}

// Reset implements Resetter.
func (e *SubqueryStartExecutor) Reset() {
	e.pending = false
}

// ProduceRows implements Executor. It writes at most one row and reports
// Done, so the driver closes the run before taking the next input row.
func (e *SubqueryStartExecutor) ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	if e.pending {
		return aql.ExecutorDone, Stats{}, Call{}, nil
	}
	if output.IsFull() || !input.HasDataRow() {
		return input.UpstreamState(), Stats{}, Call{}, nil
	}
	_, row := input.PeekDataRow()
	output.CopyRow(row)
	output.AdvanceRow()
	e.pending = true
	return aql.ExecutorDone, Stats{}, Call{}, nil
}

// SkipRowsRange implements Executor. The copy of the next row is skipped
// on behalf of call; the row itself stays pending for its shadow row.
func (e *SubqueryStartExecutor) SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	if e.pending {
		return aql.ExecutorDone, Stats{}, 0, Call{}, nil
	}
	if !call.ShouldSkip() || !input.HasDataRow() {
		return input.UpstreamState(), Stats{}, 0, Call{}, nil
	}
	e.pending = true
	call.DidSkip(1)
	return aql.ExecutorDone, Stats{}, 1, Call{}, nil
}

// ProduceShadowRow consumes the pending row and writes it as a relevant
// shadow row. It reports false when no row is pending.
func (e *SubqueryStartExecutor) ProduceShadowRow(input *block.InputRange, output *OutputRow) bool {
	if !e.pending || !input.HasDataRow() {
		return false
	}
	_, row := input.NextDataRow()
	output.CreateShadowRow(row)
	e.pending = false
	return true
}

package executor

import (
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// ReturnExecutor projects one input register into register 0 of a fresh
// single-register output. It is the last block of a query.
type ReturnExecutor struct {
	input   aql.RegisterID
	doCount bool
}

// NewReturnExecutor returns the value of input. With doCount the rows
// written are reported as Counted.
func NewReturnExecutor(input aql.RegisterID, doCount bool) *ReturnExecutor {
	return &ReturnExecutor{input: input, doCount: doCount}
}

// ReturnRegisterInfos is the layout a ReturnExecutor writes: numIn input
// registers and a single output register 0 that keeps nothing.
func ReturnRegisterInfos(numIn int) RegisterInfos {
	return RegisterInfos{
		NumInputRegisters:  numIn,
		NumOutputRegisters: 1,
		OutputRegisters:    aql.RegisterSet{0},
		RegistersToKeep:    aql.RegisterSet{},
	}
}

// Properties implements Executor.
func (e *ReturnExecutor) Properties() Properties {
	return Properties{
		PreservesOrder:               true,
		InputSizeRestrictsOutputSize: true,
	}
}

// ExpectedNumberOfRows implements RowEstimator.
func (e *ReturnExecutor) ExpectedNumberOfRows(input *block.InputRange, call Call) uint64 {
	return countDataRows(input, call)
}

// ProduceRows implements Executor.
func (e *ReturnExecutor) ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error) {
	var stats Stats
	for !output.IsFull() && input.HasDataRow() {
		_, row := input.NextDataRow()
		output.SetValue(0, row, row.Value(e.input))
		output.AdvanceRow()
		if e.doCount {
			stats.Counted++
		}
	}
	return input.UpstreamState(), stats, output.ClientCall(), nil
}

// SkipRowsRange implements Executor.
func (e *ReturnExecutor) SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error) {
	skipped := skipDataRows(input, call)
	return input.UpstreamState(), Stats{}, skipped, Call{}, nil
}

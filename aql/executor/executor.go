// Package executor implements the pull-based execution pipeline: the call
// model, fetchers, executors and the ExecutionBlock driver that ties
// them together.
package executor

import (
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// DefaultBatchSize is the number of rows an output block is sized for
// when nothing smaller is known.
const DefaultBatchSize = 1000

// Properties are static facts about an executor that the driver relies on.
type Properties struct {
	// PreservesOrder is true when output rows keep input order.
	PreservesOrder bool
	// AllowsBlockPassthrough lets the driver reuse the input block as the
	// output block. Only executors that write no new registers and never
	// emit more rows than they read may set it.
	AllowsBlockPassthrough bool
	// InputSizeRestrictsOutputSize lets the driver size output blocks from
	// ExpectedNumberOfRows.
	InputSizeRestrictsOutputSize bool
	// FastForwardViaExecutor makes the driver discard remaining input by
	// calling SkipRowsRange with FastForwardCall, for executors whose
	// skip has to observe every row.
	FastForwardViaExecutor bool
}

// Stats are counters an executor reports per call. Scanned counts rows
// read by source blocks.
type Stats struct {
	Filtered  uint64
	Scanned   uint64
	Counted   uint64
	FullCount uint64
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Filtered += other.Filtered
	s.Scanned += other.Scanned
	s.Counted += other.Counted
	s.FullCount += other.FullCount
}

// Executor is the per-operation transformation unit.
//
// ProduceRows consumes data rows from input and writes into output until
// output.IsFull() or the input run ends. It returns its local state, stats
// and the call it wants its own upstream to receive next.
//
// SkipRowsRange advances over rows the caller does not want materialised.
// It returns the number of output rows it skipped, which is also
// accounted on call.
//
// Executors never see shadow rows: the input range ends a run at a shadow
// row and the driver forwards it.
type Executor interface {
	Properties() Properties
	ProduceRows(input *block.InputRange, output *OutputRow) (aql.ExecutorState, Stats, Call, error)
	SkipRowsRange(input *block.InputRange, call *Call) (aql.ExecutorState, Stats, uint64, Call, error)
}

// Resetter is implemented by executors with per-run state. Reset is called
// when a relevant shadow row has been forwarded.
type Resetter interface {
	Reset()
}

// RowEstimator is implemented by executors with InputSizeRestrictsOutputSize.
type RowEstimator interface {
	ExpectedNumberOfRows(input *block.InputRange, call Call) uint64
}

// shadowRowProducer turns the current input data row into a shadow row
// after its copy was produced.
type shadowRowProducer interface {
	ProduceShadowRow(input *block.InputRange, output *OutputRow) bool
}

// shadowRowConsumer turns a relevant shadow row into a data row.
type shadowRowConsumer interface {
	ConsumeShadowRow(sr block.ShadowRow, output *OutputRow) error
}

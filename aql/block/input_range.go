package block

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
)

// InputRange is a cursor over one block plus the final state the producer
// reported for it.
//
// Data rows and shadow rows are exposed through separate accessors: a
// shadow row ends the current run of data rows, so HasDataRow is false
// while the cursor sits on one.
type InputRange struct {
	ref        *SharedBlock
	blk        *itemBlock
	rowIndex   int
	endIndex   int
	finalState aql.ExecutorState
}

// NewInputRange takes over the reference blk and starts reading at start.
// A nil block yields an empty range.
func NewInputRange(state aql.ExecutorState, blk *SharedBlock, start int) *InputRange {
	r := &InputRange{finalState: state}
	if blk != nil {
		r.ref = blk
		r.blk = blk.storage()
		r.rowIndex = start
		r.endIndex = r.blk.numRows
	}
	return r
}

// EmptyInputRange returns a range without rows.
func EmptyInputRange(state aql.ExecutorState) *InputRange {
	return &InputRange{finalState: state}
}

// FinalState returns the state the producer reported for this range.
func (r *InputRange) FinalState() aql.ExecutorState {
	return r.finalState
}

// UpstreamState returns HasMore while data rows remain, Done when the
// cursor sits on a shadow row, otherwise the final state.
func (r *InputRange) UpstreamState() aql.ExecutorState {
	if r.HasDataRow() {
		return aql.ExecutorHasMore
	}
	if r.HasShadowRow() {
		return aql.ExecutorDone
	}
	return r.finalState
}

// HasValidRow reports whether any row, data or shadow, remains.
func (r *InputRange) HasValidRow() bool {
	return r.blk != nil && r.rowIndex < r.endIndex
}

// HasDataRow reports whether the next row is a data row.
func (r *InputRange) HasDataRow() bool {
	return r.HasValidRow() && !r.blk.isShadowRow(r.rowIndex)
}

// HasShadowRow reports whether the next row is a shadow row.
func (r *InputRange) HasShadowRow() bool {
	return r.HasValidRow() && r.blk.isShadowRow(r.rowIndex)
}

// PeekDataRow returns the next data row without consuming it, together
// with the state the range would have after consuming it.
func (r *InputRange) PeekDataRow() (aql.ExecutorState, InputRow) {
	if !r.HasDataRow() {
		return r.UpstreamState(), InputRow{}
	}
	row := InputRow{blk: r.blk, row: r.rowIndex}
	return r.stateAfter(r.rowIndex + 1), row
}

// NextDataRow consumes the next data row. It is a contract violation to
// call it without a data row available.
func (r *InputRange) NextDataRow() (aql.ExecutorState, InputRow) {
	if !r.HasDataRow() {
		panic(errors.AssertionFailedf("NextDataRow called without a data row"))
	}
	row := InputRow{blk: r.blk, row: r.rowIndex}
	r.rowIndex++
	return r.UpstreamState(), row
}

// Skip advances over up to n data rows and returns the number skipped.
func (r *InputRange) Skip(n uint64) uint64 {
	var skipped uint64
	for skipped < n && r.HasDataRow() {
		r.rowIndex++
		skipped++
	}
	return skipped
}

// SkipAll advances over all data rows of the current run.
func (r *InputRange) SkipAll() uint64 {
	var skipped uint64
	for r.HasDataRow() {
		r.rowIndex++
		skipped++
	}
	return skipped
}

// PeekShadowRow returns the next shadow row without consuming it.
func (r *InputRange) PeekShadowRow() ShadowRow {
	if !r.HasShadowRow() {
		panic(errors.AssertionFailedf("PeekShadowRow called without a shadow row"))
	}
	return ShadowRow{InputRow{blk: r.blk, row: r.rowIndex}}
}

// NextShadowRow consumes the next shadow row. The returned state is
// HasMore if any row follows, otherwise the final state.
func (r *InputRange) NextShadowRow() (aql.ExecutorState, ShadowRow) {
	sr := r.PeekShadowRow()
	r.rowIndex++
	if r.HasValidRow() {
		return aql.ExecutorHasMore, sr
	}
	return r.finalState, sr
}

// CountDataRows counts the data rows left in the block, across runs.
func (r *InputRange) CountDataRows() uint64 {
	var n uint64
	for i := r.rowIndex; r.blk != nil && i < r.endIndex; i++ {
		if !r.blk.isShadowRow(i) {
			n++
		}
	}
	return n
}

// CountShadowRows counts the shadow rows left in the block.
func (r *InputRange) CountShadowRows() uint64 {
	var n uint64
	for i := r.rowIndex; r.blk != nil && i < r.endIndex; i++ {
		if r.blk.isShadowRow(i) {
			n++
		}
	}
	return n
}

// NumRegisters returns the register count of the underlying block, or -1
// for an empty range.
func (r *InputRange) NumRegisters() int {
	if r.blk == nil {
		return -1
	}
	return r.blk.numRegs
}

func (r *InputRange) stateAfter(index int) aql.ExecutorState {
	if index < r.endIndex {
		if r.blk.isShadowRow(index) {
			return aql.ExecutorDone
		}
		return aql.ExecutorHasMore
	}
	return r.finalState
}

// TakeBlock grants passthrough ownership of the range's block. If the range
// holds the only reference, the same storage is returned writable and the
// range keeps reading from it; writers must only touch rows the range has
// already passed. Otherwise a fresh block of the same shape is allocated.
func (r *InputRange) TakeBlock(m *Manager) (*OwnedBlock, error) {
	if r.blk == nil {
		panic(errors.AssertionFailedf("TakeBlock on an empty range"))
	}
	if r.ref != nil && r.ref.b != nil && atomic.LoadInt32(&r.blk.refs) == 1 {
		owned := &OwnedBlock{b: r.blk}
		r.ref.b = nil
		r.ref = nil
		return owned, nil
	}
	return m.RequestBlock(r.blk.numRows, r.blk.numRegs)
}

// Detach copies the unread rows into storage owned by the range. It is
// required before a block taken with TakeBlock is handed on while the
// range still has rows to read.
func (r *InputRange) Detach(m *Manager) error {
	if r.ref != nil || r.blk == nil {
		return nil
	}
	if !r.HasValidRow() {
		r.blk = nil
		r.rowIndex, r.endIndex = 0, 0
		return nil
	}
	n := r.endIndex - r.rowIndex
	owned, err := m.RequestBlock(n, r.blk.numRegs)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		owned.CopyRow(i, InputRow{blk: r.blk, row: r.rowIndex + i})
	}
	r.ref = owned.Freeze()
	r.blk = r.ref.b
	r.rowIndex, r.endIndex = 0, n
	return nil
}

// IsBlockTaken reports whether the range reads from storage it no longer
// owns.
func (r *InputRange) IsBlockTaken() bool {
	return r.blk != nil && r.ref == nil
}

// Release drops the range's block reference.
func (r *InputRange) Release() {
	if r.ref != nil {
		r.ref.Release()
		r.ref = nil
	}
	r.blk = nil
	r.rowIndex, r.endIndex = 0, 0
}

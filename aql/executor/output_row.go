package executor

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// OutputRow is the write cursor an executor fills. It tracks the client
// call so executors stop when the consumer is satisfied: IsFull is true
// once either the block or the call's limit is exhausted.
type OutputRow struct {
	blk       *block.OwnedBlock
	call      Call
	keep      aql.RegisterSet
	outputs   aql.RegisterSet
	baseIndex int
	rowCopied bool
}

// NewOutputRow wraps blk for writing under call.
func NewOutputRow(blk *block.OwnedBlock, infos RegisterInfos, call Call) *OutputRow {
	return &OutputRow{
		blk:     blk,
		call:    call,
		keep:    infos.keptRegisters(),
		outputs: infos.OutputRegisters,
	}
}

// IsInitialized reports whether the row has a block to write into.
func (o *OutputRow) IsInitialized() bool {
	return o != nil && o.blk != nil
}

// NumRowsLeft returns how many data rows may still be written.
func (o *OutputRow) NumRowsLeft() uint64 {
	if o.blk == nil {
		return 0
	}
	left := uint64(o.blk.NumRows() - o.baseIndex)
	if limit := o.call.GetLimit(); limit < left {
		return limit
	}
	return left
}

// IsFull reports whether no further data row may be written.
func (o *OutputRow) IsFull() bool {
	return o.NumRowsLeft() == 0
}

// AllRowsUsed reports whether the block itself is exhausted. Shadow rows
// only need block space.
func (o *OutputRow) AllRowsUsed() bool {
	if o.blk == nil {
		return true
	}
	return o.baseIndex >= o.blk.NumRows()
}

// NumRowsWritten returns the rows written so far.
func (o *OutputRow) NumRowsWritten() int {
	return o.baseIndex
}

// ClientCall returns the remaining client call.
func (o *OutputRow) ClientCall() Call {
	return o.call
}

// SetCall replaces the client call.
func (o *OutputRow) SetCall(call Call) {
	o.call = call
}

// CopyRow copies the kept registers of input into the current row.
func (o *OutputRow) CopyRow(input block.InputRow) {
	o.copyRegisters(input, o.keep)
	o.blk.MakeDataRow(o.baseIndex)
	o.rowCopied = true
}

// SetValue writes an output register of the current row. The input row is
// copied first if that has not happened yet.
func (o *OutputRow) SetValue(reg aql.RegisterID, input block.InputRow, v aql.Value) {
	if !o.outputs.Contains(reg) {
		panic(errors.AssertionFailedf("write to register %d which is not an output register", reg))
	}
	if !o.rowCopied {
		o.CopyRow(input)
	}
	o.blk.SetValue(o.baseIndex, reg, v)
}

// AdvanceRow moves to the next row, counting a data row against the call.
func (o *OutputRow) AdvanceRow() {
	if !o.rowCopied {
		panic(errors.AssertionFailedf("advance of an output row that was not written"))
	}
	if !o.blk.IsShadowRow(o.baseIndex) {
		o.call.DidProduce(1)
	}
	o.baseIndex++
	o.rowCopied = false
}

// CreateShadowRow writes input as a relevant shadow row and advances.
func (o *OutputRow) CreateShadowRow(input block.InputRow) {
	o.copyAll(input)
	o.blk.MakeShadowRow(o.baseIndex, 0)
	o.advanceShadow()
}

// CopyShadowRow forwards a shadow row unchanged and advances.
func (o *OutputRow) CopyShadowRow(sr block.ShadowRow) {
	o.copyAll(sr.InputRow)
	o.blk.MakeShadowRow(o.baseIndex, sr.Depth())
	o.advanceShadow()
}

// IncreaseShadowRowDepth forwards a shadow row one level deeper.
func (o *OutputRow) IncreaseShadowRowDepth(sr block.ShadowRow) {
	o.copyAll(sr.InputRow)
	o.blk.MakeShadowRow(o.baseIndex, sr.Depth()+1)
	o.advanceShadow()
}

// DecreaseShadowRowDepth forwards a non-relevant shadow row one level up.
func (o *OutputRow) DecreaseShadowRowDepth(sr block.ShadowRow) {
	if sr.IsRelevant() {
		panic(errors.AssertionFailedf("decrease of a relevant shadow row"))
	}
	o.copyAll(sr.InputRow)
	o.blk.MakeShadowRow(o.baseIndex, sr.Depth()-1)
	o.advanceShadow()
}

// ConsumeShadowRow turns a relevant shadow row into a data row carrying v
// in reg, and advances.
func (o *OutputRow) ConsumeShadowRow(reg aql.RegisterID, sr block.ShadowRow, v aql.Value) {
	if !sr.IsRelevant() {
		panic(errors.AssertionFailedf("consume of a shadow row at depth %d", sr.Depth()))
	}
	o.copyAll(sr.InputRow)
	o.blk.MakeDataRow(o.baseIndex)
	o.rowCopied = true
	o.SetValue(reg, sr.InputRow, v)
	o.AdvanceRow()
}

// StealBlock returns the written rows as a frozen block and detaches it.
// Nothing written yields nil.
func (o *OutputRow) StealBlock() *block.SharedBlock {
	if o.blk == nil {
		return nil
	}
	blk := o.blk
	o.blk = nil
	if o.baseIndex == 0 {
		blk.Release()
		return nil
	}
	blk.Shrink(o.baseIndex)
	return blk.Freeze()
}

// Release discards the output without handing it on.
func (o *OutputRow) Release() {
	if o == nil || o.blk == nil {
		return
	}
	o.blk.Release()
	o.blk = nil
}

func (o *OutputRow) copyRegisters(input block.InputRow, regs aql.RegisterSet) {
	if o.AllRowsUsed() {
		panic(errors.AssertionFailedf("write beyond the end of the output block"))
	}
	width := input.NumRegisters()
	for _, reg := range regs {
		if int(reg) >= width || int(reg) >= o.blk.NumRegisters() {
			continue
		}
		o.blk.SetValue(o.baseIndex, reg, input.Value(reg))
	}
}

// copyAll copies every register a shadow row carries.
func (o *OutputRow) copyAll(input block.InputRow) {
	if o.AllRowsUsed() {
		panic(errors.AssertionFailedf("write beyond the end of the output block"))
	}
	o.blk.CopyRow(o.baseIndex, input)
	o.rowCopied = true
}

func (o *OutputRow) advanceShadow() {
	o.baseIndex++
	o.rowCopied = false
}

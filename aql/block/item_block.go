// Package block holds the batched row model of the execution pipeline:
// register-based item blocks, their ownership types, and the input range
// cursor executors read from.
package block

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
)

const (
	// valueSlotSize is the accounted size of one register slot.
	valueSlotSize = 16
	// rowOverhead is the accounted size of per-row bookkeeping.
	rowOverhead = 8
)

// dataRowDepth marks a row as a data row in itemBlock.depths.
const dataRowDepth = -1

// itemBlock is the storage behind OwnedBlock and SharedBlock. Values are
// stored row-major.
type itemBlock struct {
	numRows int
	numRegs int
	values  []aql.Value
	depths  []int32
	shadows int

	refs    int32
	memory  uint64
	manager *Manager
}

// BlockMemory returns the bytes accounted for a block of the given shape.
func BlockMemory(rows, regs int) uint64 {
	return uint64(rows)*uint64(regs)*valueSlotSize + uint64(rows)*rowOverhead
}

func (b *itemBlock) checkRow(row int) {
	if row < 0 || row >= b.numRows {
		panic(errors.AssertionFailedf("row %d out of range [0,%d)", row, b.numRows))
	}
}

func (b *itemBlock) checkRegister(reg aql.RegisterID) {
	if int(reg) >= b.numRegs {
		panic(errors.AssertionFailedf("register %d out of range [0,%d)", reg, b.numRegs))
	}
}

func (b *itemBlock) value(row int, reg aql.RegisterID) aql.Value {
	b.checkRow(row)
	b.checkRegister(reg)
	return b.values[row*b.numRegs+int(reg)]
}

func (b *itemBlock) isShadowRow(row int) bool {
	b.checkRow(row)
	return b.depths[row] != dataRowDepth
}

func (b *itemBlock) shadowDepth(row int) uint64 {
	if !b.isShadowRow(row) {
		panic(errors.AssertionFailedf("row %d is not a shadow row", row))
	}
	return uint64(b.depths[row])
}

func (b *itemBlock) release() {
	if n := atomic.AddInt32(&b.refs, -1); n == 0 {
		if b.manager != nil {
			b.manager.returnBlock(b)
		}
		b.values = nil
		b.depths = nil
	} else if n < 0 {
		panic(errors.AssertionFailedf("item block released more often than retained"))
	}
}

// OwnedBlock is a block under construction. Only the stage that allocated
// it (or was granted passthrough ownership) holds one, and only an
// OwnedBlock can be written.
type OwnedBlock struct {
	b *itemBlock
}

func (o *OwnedBlock) storage() *itemBlock {
	if o == nil || o.b == nil {
		panic(errors.AssertionFailedf("use of a frozen or released owned block"))
	}
	return o.b
}

// NumRows returns the row capacity.
func (o *OwnedBlock) NumRows() int { return o.storage().numRows }

// NumRegisters returns the number of registers per row.
func (o *OwnedBlock) NumRegisters() int { return o.storage().numRegs }

// Value reads a register.
func (o *OwnedBlock) Value(row int, reg aql.RegisterID) aql.Value {
	return o.storage().value(row, reg)
}

// SetValue writes a register.
func (o *OwnedBlock) SetValue(row int, reg aql.RegisterID, v aql.Value) {
	b := o.storage()
	b.checkRow(row)
	b.checkRegister(reg)
	b.values[row*b.numRegs+int(reg)] = v
}

// MakeShadowRow marks row as a shadow row of the given depth.
func (o *OwnedBlock) MakeShadowRow(row int, depth uint64) {
	b := o.storage()
	b.checkRow(row)
	if b.depths[row] == dataRowDepth {
		b.shadows++
	}
	b.depths[row] = int32(depth)
}

// MakeDataRow marks row as a data row.
func (o *OwnedBlock) MakeDataRow(row int) {
	b := o.storage()
	b.checkRow(row)
	if b.depths[row] != dataRowDepth {
		b.shadows--
	}
	b.depths[row] = dataRowDepth
}

// IsShadowRow reports whether row is a shadow row.
func (o *OwnedBlock) IsShadowRow(row int) bool { return o.storage().isShadowRow(row) }

// ShadowRowDepth returns the depth of a shadow row.
func (o *OwnedBlock) ShadowRowDepth(row int) uint64 { return o.storage().shadowDepth(row) }

// CopyRow copies all values and the row kind from src into row dst.
// Registers beyond src's width are left untouched.
func (o *OwnedBlock) CopyRow(dst int, src InputRow) {
	b := o.storage()
	b.checkRow(dst)
	if src.blk == b && src.row == dst {
		return
	}
	n := src.blk.numRegs
	if n > b.numRegs {
		n = b.numRegs
	}
	for reg := 0; reg < n; reg++ {
		b.values[dst*b.numRegs+reg] = src.blk.values[src.row*src.blk.numRegs+reg]
	}
	if src.blk.depths[src.row] == dataRowDepth {
		o.MakeDataRow(dst)
	} else {
		o.MakeShadowRow(dst, uint64(src.blk.depths[src.row]))
	}
}

// Shrink truncates the block to rows. Shrinking to zero is allowed; the
// accounted memory is kept until release.
func (o *OwnedBlock) Shrink(rows int) {
	b := o.storage()
	if rows > b.numRows || rows < 0 {
		panic(errors.AssertionFailedf("cannot shrink block of %d rows to %d", b.numRows, rows))
	}
	for i := rows; i < b.numRows; i++ {
		if b.depths[i] != dataRowDepth {
			b.shadows--
		}
	}
	b.numRows = rows
	b.values = b.values[:rows*b.numRegs]
	b.depths = b.depths[:rows]
}

// Freeze hands the block over for reading. The OwnedBlock must not be used
// afterwards.
func (o *OwnedBlock) Freeze() *SharedBlock {
	b := o.storage()
	o.b = nil
	return &SharedBlock{b: b}
}

// Release discards an unfrozen block and returns its memory.
func (o *OwnedBlock) Release() {
	if o == nil || o.b == nil {
		return
	}
	b := o.b
	o.b = nil
	b.release()
}

// SharedBlock is a frozen, read-only, reference-counted block. Each
// holder of a *SharedBlock owns one reference and must Release it.
type SharedBlock struct {
	b *itemBlock
}

func (s *SharedBlock) storage() *itemBlock {
	if s == nil || s.b == nil {
		panic(errors.AssertionFailedf("use of a released shared block"))
	}
	return s.b
}

// NumRows returns the number of rows.
func (s *SharedBlock) NumRows() int { return s.storage().numRows }

// NumRegisters returns the number of registers per row.
func (s *SharedBlock) NumRegisters() int { return s.storage().numRegs }

// Value reads a register.
func (s *SharedBlock) Value(row int, reg aql.RegisterID) aql.Value {
	return s.storage().value(row, reg)
}

// Row returns a row handle.
func (s *SharedBlock) Row(row int) InputRow {
	b := s.storage()
	b.checkRow(row)
	return InputRow{blk: b, row: row}
}

// IsShadowRow reports whether row is a shadow row.
func (s *SharedBlock) IsShadowRow(row int) bool { return s.storage().isShadowRow(row) }

// ShadowRowDepth returns the depth of a shadow row.
func (s *SharedBlock) ShadowRowDepth(row int) uint64 { return s.storage().shadowDepth(row) }

// HasShadowRows reports whether any row is a shadow row.
func (s *SharedBlock) HasShadowRows() bool { return s.storage().shadows > 0 }

// Retain returns a new reference to the same block.
func (s *SharedBlock) Retain() *SharedBlock {
	b := s.storage()
	atomic.AddInt32(&b.refs, 1)
	return &SharedBlock{b: b}
}

// Release drops this reference. The handle must not be used afterwards.
func (s *SharedBlock) Release() {
	if s == nil || s.b == nil {
		return
	}
	b := s.b
	s.b = nil
	b.release()
}

// Unshare converts this reference into a writable block. When it is the
// only reference the storage is reused without copying; otherwise the rows
// are copied into a block from m and this reference is released. Either
// way the SharedBlock handle is consumed.
func (s *SharedBlock) Unshare(m *Manager) (*OwnedBlock, error) {
	b := s.storage()
	if atomic.LoadInt32(&b.refs) == 1 {
		s.b = nil
		return &OwnedBlock{b: b}, nil
	}
	owned, err := m.RequestBlock(b.numRows, b.numRegs)
	if err != nil {
		return nil, err
	}
	copy(owned.b.values, b.values)
	copy(owned.b.depths, b.depths)
	owned.b.shadows = b.shadows
	s.Release()
	return owned, nil
}

// Values returns a copy of one row's registers.
func (s *SharedBlock) Values(row int) []aql.Value {
	b := s.storage()
	b.checkRow(row)
	out := make([]aql.Value, b.numRegs)
	copy(out, b.values[row*b.numRegs:(row+1)*b.numRegs])
	return out
}

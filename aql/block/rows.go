package block

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
)

// InputRow is a read-only handle on one row of a block. The zero value is
// an uninitialised row.
type InputRow struct {
	blk *itemBlock
	row int
}

// IsInitialized reports whether the row refers to a block.
func (r InputRow) IsInitialized() bool {
	return r.blk != nil
}

// Value reads a register of the row.
func (r InputRow) Value(reg aql.RegisterID) aql.Value {
	if r.blk == nil {
		panic(errors.AssertionFailedf("read from uninitialised input row"))
	}
	return r.blk.value(r.row, reg)
}

// NumRegisters returns the width of the row.
func (r InputRow) NumRegisters() int {
	return r.blk.numRegs
}

// IsShadowRow reports whether the row is a shadow row.
func (r InputRow) IsShadowRow() bool {
	return r.blk.isShadowRow(r.row)
}

// Values returns a copy of the row's registers.
func (r InputRow) Values() []aql.Value {
	out := make([]aql.Value, r.blk.numRegs)
	copy(out, r.blk.values[r.row*r.blk.numRegs:(r.row+1)*r.blk.numRegs])
	return out
}

// IsSameRowAs reports whether both handles point at the same storage row.
func (r InputRow) IsSameRowAs(other InputRow) bool {
	return r.blk == other.blk && r.row == other.row
}

// ShadowRow marks a subquery boundary in the row stream. Depth 0 is the
// innermost (relevant) level.
type ShadowRow struct {
	InputRow
}

// Depth returns the relative nesting depth.
func (s ShadowRow) Depth() uint64 {
	return s.blk.shadowDepth(s.row)
}

// IsRelevant reports whether the shadow row closes the innermost run.
func (s ShadowRow) IsRelevant() bool {
	return s.Depth() == 0
}

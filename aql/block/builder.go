package block

import (
	"github.com/wbrown/janus-aql/aql"
)

// Builder assembles a frozen block row by row. It is used by sources that
// already hold materialised rows (constants, storage scans, tests).
type Builder struct {
	regs   int
	values [][]aql.Value
	depths []int32
}

// NewBuilder creates a builder for rows of regs registers.
func NewBuilder(regs int) *Builder {
	return &Builder{regs: regs}
}

// AddRow appends a data row. Missing registers are null.
func (b *Builder) AddRow(values ...aql.Value) *Builder {
	b.values = append(b.values, values)
	b.depths = append(b.depths, dataRowDepth)
	return b
}

// AddShadowRow appends a shadow row of the given depth.
func (b *Builder) AddShadowRow(depth uint64, values ...aql.Value) *Builder {
	b.values = append(b.values, values)
	b.depths = append(b.depths, int32(depth))
	return b
}

// Len returns the number of rows added so far.
func (b *Builder) Len() int {
	return len(b.values)
}

// Build allocates the block from m and freezes it. An empty builder
// yields a nil block.
func (b *Builder) Build(m *Manager) (*SharedBlock, error) {
	if len(b.values) == 0 {
		return nil, nil
	}
	owned, err := m.RequestBlock(len(b.values), b.regs)
	if err != nil {
		return nil, err
	}
	for row, vals := range b.values {
		for reg, v := range vals {
			if reg >= b.regs {
				break
			}
			owned.SetValue(row, aql.RegisterID(reg), v)
		}
		if b.depths[row] != dataRowDepth {
			owned.MakeShadowRow(row, uint64(b.depths[row]))
		}
	}
	return owned.Freeze(), nil
}

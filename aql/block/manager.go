package block

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
)

// Manager allocates item blocks against a ResourceMonitor.
type Manager struct {
	monitor ResourceMonitor
	live    int64
}

// NewManager creates a manager. A nil monitor means unlimited memory.
func NewManager(monitor ResourceMonitor) *Manager {
	if monitor == nil {
		monitor = NewMonitor(0)
	}
	return &Manager{monitor: monitor}
}

// Monitor returns the resource monitor blocks are accounted against.
func (m *Manager) Monitor() ResourceMonitor {
	return m.monitor
}

// LiveBlocks returns the number of blocks allocated and not yet released.
func (m *Manager) LiveBlocks() int64 {
	return atomic.LoadInt64(&m.live)
}

// RequestBlock allocates an empty block of rows x regs data rows. Memory is
// reserved before anything is allocated; on failure no block exists.
func (m *Manager) RequestBlock(rows, regs int) (*OwnedBlock, error) {
	if rows <= 0 {
		panic(errors.AssertionFailedf("requested block with %d rows", rows))
	}
	if regs < 0 || aql.RegisterID(regs) > aql.MaxRegisterID {
		panic(errors.AssertionFailedf("requested block with %d registers", regs))
	}
	memory := BlockMemory(rows, regs)
	if err := m.monitor.Reserve(memory); err != nil {
		return nil, errors.Wrapf(err, "allocating block of %d rows and %d registers", rows, regs)
	}
	b := &itemBlock{
		numRows: rows,
		numRegs: regs,
		values:  make([]aql.Value, rows*regs),
		depths:  make([]int32, rows),
		refs:    1,
		memory:  memory,
		manager: m,
	}
	for i := range b.depths {
		b.depths[i] = dataRowDepth
	}
	atomic.AddInt64(&m.live, 1)
	return &OwnedBlock{b: b}, nil
}

func (m *Manager) returnBlock(b *itemBlock) {
	m.monitor.Free(b.memory)
	atomic.AddInt64(&m.live, -1)
}

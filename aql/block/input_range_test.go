package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-aql/aql"
)

func buildRange(t *testing.T, m *Manager, state aql.ExecutorState, b *Builder) *InputRange {
	t.Helper()
	shared, err := b.Build(m)
	require.NoError(t, err)
	return NewInputRange(state, shared, 0)
}

func TestInputRangeDataRows(t *testing.T) {
	m := NewManager(nil)
	r := buildRange(t, m, aql.ExecutorDone, NewBuilder(1).AddRow(int64(1)).AddRow(int64(2)))
	defer r.Release()

	assert.True(t, r.HasDataRow())
	assert.Equal(t, aql.ExecutorHasMore, r.UpstreamState())

	state, row := r.PeekDataRow()
	assert.Equal(t, aql.ExecutorHasMore, state)
	assert.Equal(t, int64(1), row.Value(0))

	state, row = r.NextDataRow()
	assert.Equal(t, aql.ExecutorHasMore, state)
	assert.Equal(t, int64(1), row.Value(0))

	state, row = r.NextDataRow()
	assert.Equal(t, aql.ExecutorDone, state)
	assert.Equal(t, int64(2), row.Value(0))

	assert.False(t, r.HasDataRow())
	assert.Panics(t, func() { r.NextDataRow() })
}

func TestInputRangeShadowRowsEndARun(t *testing.T) {
	m := NewManager(nil)
	r := buildRange(t, m, aql.ExecutorHasMore, NewBuilder(1).
		AddRow(int64(1)).
		AddShadowRow(0, int64(1)).
		AddShadowRow(1, int64(9)).
		AddRow(int64(2)))
	defer r.Release()

	state, _ := r.NextDataRow()
	assert.Equal(t, aql.ExecutorDone, state, "a shadow row ends the run")
	assert.False(t, r.HasDataRow())
	assert.True(t, r.HasShadowRow())
	assert.Equal(t, aql.ExecutorDone, r.UpstreamState())

	state, sr := r.NextShadowRow()
	assert.Equal(t, aql.ExecutorHasMore, state)
	assert.True(t, sr.IsRelevant())

	state, sr = r.NextShadowRow()
	assert.Equal(t, aql.ExecutorHasMore, state)
	assert.Equal(t, uint64(1), sr.Depth())

	state, _ = r.NextDataRow()
	assert.Equal(t, aql.ExecutorHasMore, state, "final state of the range")
	assert.False(t, r.HasValidRow())
}

func TestInputRangeSkipAndCount(t *testing.T) {
	m := NewManager(nil)
	r := buildRange(t, m, aql.ExecutorDone, NewBuilder(1).
		AddRow(1).AddRow(2).AddRow(3).
		AddShadowRow(0).
		AddRow(4))
	defer r.Release()

	assert.Equal(t, uint64(4), r.CountDataRows())
	assert.Equal(t, uint64(1), r.CountShadowRows())

	assert.Equal(t, uint64(2), r.Skip(2))
	assert.Equal(t, uint64(1), r.SkipAll(), "SkipAll stops at the shadow row")
	assert.True(t, r.HasShadowRow())
	r.NextShadowRow()
	assert.Equal(t, uint64(1), r.Skip(5))
	assert.Equal(t, aql.ExecutorDone, r.UpstreamState())
}

func TestEmptyInputRange(t *testing.T) {
	r := EmptyInputRange(aql.ExecutorHasMore)
	assert.False(t, r.HasValidRow())
	assert.Equal(t, aql.ExecutorHasMore, r.UpstreamState())
	assert.Equal(t, uint64(0), r.SkipAll())
	assert.Equal(t, -1, r.NumRegisters())
}

func TestTakeBlockAndDetach(t *testing.T) {
	m := NewManager(nil)
	r := buildRange(t, m, aql.ExecutorDone, NewBuilder(1).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))

	owned, err := r.TakeBlock(m)
	require.NoError(t, err)
	assert.True(t, r.IsBlockTaken())

	_, row := r.NextDataRow()
	owned.CopyRow(0, row)

	require.NoError(t, r.Detach(m))
	assert.False(t, r.IsBlockTaken())
	owned.Shrink(1)
	out := owned.Freeze()

	_, row = r.NextDataRow()
	assert.Equal(t, int64(2), row.Value(0))
	out.Release()
	r.Release()
	assert.Equal(t, int64(0), m.LiveBlocks())
}

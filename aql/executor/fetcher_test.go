package executor

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

func TestConstFetcher(t *testing.T) {
	q := newTestQuery(t, QueryOptions{})
	f := NewConstFetcher(intBlock(t, q, 1, 2), nil, intBlock(t, q, 3))
	stack := NewCallStackFromCall(Call{})

	state, skipped, r, err := f.Execute(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, aql.HasMore, state)
	assert.Equal(t, 1, skipped.Depth())
	assert.Equal(t, uint64(2), r.CountDataRows())
	r.Release()

	state, _, r, err = f.Execute(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, aql.Done, state)
	assert.Equal(t, uint64(1), r.CountDataRows())
	r.Release()

	assert.Panics(t, func() { f.Execute(context.Background(), stack) })
	assert.Equal(t, int64(0), q.Manager().LiveBlocks())
}

func TestEmptyConstFetcher(t *testing.T) {
	state, _, r, err := NewConstFetcher().Execute(context.Background(), NewCallStackFromCall(Call{}))
	require.NoError(t, err)
	assert.Equal(t, aql.Done, state)
	assert.False(t, r.HasValidRow())
}

func TestAllRowsFetcherLoads(t *testing.T) {
	q := newTestQuery(t, QueryOptions{})
	loads := 0
	load := func(ctx context.Context, m *block.Manager) ([]*block.SharedBlock, error) {
		loads++
		return []*block.SharedBlock{intBlock(t, q, 1, 2), intBlock(t, q, 3)}, nil
	}
	src := mustBlock(t, "all", q, NewAllRowsFetcher(q.Manager(), load), NewIdExecutor(), NewRegisterInfos(1, 1))

	r := drain(t, src, Call{})
	assert.Equal(t, ints(1, 2, 3), firstColumn(r.rows))
	assert.Equal(t, 1, loads)

	require.NoError(t, src.InitializeCursor(nil))
	r = drain(t, src, Call{Offset: 2})
	assert.Equal(t, ints(3), firstColumn(r.rows))
	assert.Equal(t, 2, loads)
}

func TestAllRowsFetcherLoadError(t *testing.T) {
	q := newTestQuery(t, QueryOptions{})
	boom := errors.New("disk on fire")
	load := func(context.Context, *block.Manager) ([]*block.SharedBlock, error) { return nil, boom }
	src := mustBlock(t, "all", q, NewAllRowsFetcher(q.Manager(), load), NewIdExecutor(), NewRegisterInfos(1, 1))

	_, _, _, err := src.Execute(context.Background(), NewCallStackFromCall(Call{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "loading input rows")
}

func TestDrainingFetcherWaits(t *testing.T) {
	q := newTestQuery(t, QueryOptions{})
	poller := &scriptedPoller{waits: 1, blocks: []*block.SharedBlock{
		intBlock(t, q, 1, 2),
		intBlock(t, q, 3),
	}}
	remote := mustBlock(t, "remote", q, NewPollFetcher(poller), NewIdExecutor(), NewRegisterInfos(1, 1))
	sink := mustBlock(t, "sink", q, NewDrainingFetcher(remote), NewIdExecutor(), NewRegisterInfos(1, 1))

	first := executeOnce(t, sink, Call{SoftLimit: LimitOf(1)})
	assert.Equal(t, aql.Waiting, first.state)

	r := drain(t, sink, Call{SoftLimit: LimitOf(1)})
	assert.Equal(t, ints(1, 2, 3), firstColumn(r.rows))
	assert.Equal(t, 3, poller.polls)
}

func TestDrainingFetcherRejectsSubqueries(t *testing.T) {
	q := newTestQuery(t, QueryOptions{})
	f := NewDrainingFetcher(sourceBlock(t, q, 0, 1))
	stack := NewCallStackFromCall(Call{})
	stack.PushCall(Call{})
	assert.Panics(t, func() { f.Execute(context.Background(), stack) })
}

func TestMultiDependencyFetcher(t *testing.T) {
	q := newTestQuery(t, QueryOptions{})
	a := sourceBlock(t, q, 2, 1, 2, 3)
	b := sourceBlock(t, q, 0)
	c := sourceBlock(t, q, 0, 4, 5)
	union := mustBlock(t, "union", q, NewMultiDependencyFetcher(a, b, c), NewIdExecutor(), NewRegisterInfos(1, 1))

	r := drain(t, union, Call{})
	assert.Equal(t, aql.Done, r.state)
	assert.Equal(t, ints(1, 2, 3, 4, 5), firstColumn(r.rows))
}

func TestMultiDependencyFetcherWrapsErrors(t *testing.T) {
	q := newTestQuery(t, QueryOptions{})
	boom := errors.New("boom")
	union := mustBlock(t, "union", q,
		NewMultiDependencyFetcher(sourceBlock(t, q, 0), &failingBlock{err: boom}),
		NewIdExecutor(), NewRegisterInfos(1, 1))

	_, _, _, err := union.Execute(context.Background(), NewCallStackFromCall(Call{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "dependency 1")
}

func TestPollFetcherPassesWaiting(t *testing.T) {
	q := newTestQuery(t, QueryOptions{})
	p := &scriptedPoller{waits: 1, blocks: []*block.SharedBlock{intBlock(t, q, 1)}}
	f := NewPollFetcher(p)
	stack := NewCallStackFromCall(Call{})

	state, skipped, r, err := f.Execute(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, aql.Waiting, state)
	assert.True(t, skipped.Nothing())
	assert.Nil(t, r)

	state, _, r, err = f.Execute(context.Background(), stack)
	require.NoError(t, err)
	assert.Equal(t, aql.Done, state)
	assert.True(t, r.HasDataRow())
	r.Release()
	assert.Panics(t, func() { f.Execute(context.Background(), stack) })
}

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertScanCount(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Insert("users",
		map[string]aql.Value{"name": "alice", "age": int64(30)},
		map[string]aql.Value{"name": "bob", "age": int64(25)},
	))
	require.NoError(t, s.Insert("users", map[string]aql.Value{"name": "carol", "age": 41.5}))
	require.NoError(t, s.Insert("other", int64(1)))

	var names []aql.Value
	err := s.Scan(context.Background(), "users", func(doc aql.Value) error {
		names = append(names, doc.(map[string]aql.Value)["name"])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []aql.Value{"alice", "bob", "carol"}, names)

	n, err := s.Count("users")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.Count("other")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Count("missing")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestNumbersDecodeLikeRowValues(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert("c", int64(7), 2.5, []aql.Value{int64(1), "x"}, nil))

	var docs []aql.Value
	require.NoError(t, s.Scan(context.Background(), "c", func(doc aql.Value) error {
		docs = append(docs, doc)
		return nil
	}))
	assert.Equal(t, []aql.Value{int64(7), 2.5, []aql.Value{int64(1), "x"}, nil}, docs)
}

func TestScanBatchResumes(t *testing.T) {
	s := openTestStore(t)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, s.Insert("c", i))
	}

	ctx := context.Background()
	var (
		all  []aql.Value
		from []byte
		runs int
	)
	for {
		docs, next, err := s.ScanBatch(ctx, "c", from, 4)
		require.NoError(t, err)
		all = append(all, docs...)
		runs++
		if next == nil {
			break
		}
		from = next
	}
	assert.Equal(t, 3, runs)
	require.Len(t, all, 10)
	for i, v := range all {
		assert.Equal(t, int64(i), v)
	}
}

func TestScanBatchRejectsForeignKey(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.ScanBatch(context.Background(), "c", []byte("zzz"), 4)
	assert.Error(t, err)
}

func TestScanStopsOnCancel(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert("c", int64(1), int64(2)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Scan(ctx, "c", func(aql.Value) error { return nil })
	assert.True(t, aql.IsQueryKilled(err))
}

func TestDrop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert("c", int64(1), int64(2)))
	require.NoError(t, s.Insert("keep", int64(3)))
	require.NoError(t, s.Drop("c"))

	n, err := s.Count("c")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.Count("keep")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCollectionBlocks(t *testing.T) {
	s := openTestStore(t)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.Insert("c", i))
	}

	m := block.NewManager(nil)
	blocks, err := CollectionBlocks(s, "c", 2)(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, 2, blocks[0].NumRows())
	assert.Equal(t, 1, blocks[2].NumRows())
	assert.Equal(t, int64(4), blocks[2].Value(0, 0))

	for _, b := range blocks {
		b.Release()
	}
	assert.Equal(t, int64(0), m.LiveBlocks())
}

func TestBuildBlocksReleasesOnLimit(t *testing.T) {
	docs := make([]aql.Value, 10)
	for i := range docs {
		docs[i] = int64(i)
	}
	m := block.NewManager(block.NewMonitor(block.BlockMemory(4, 1) + 1))
	_, err := BuildBlocks(m, docs, 4)
	require.Error(t, err)
	assert.True(t, aql.IsResourceLimitExceeded(err))
	assert.Equal(t, int64(0), m.LiveBlocks())
}

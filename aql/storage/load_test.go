package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-aql/aql"
)

func TestLoadJSONLines(t *testing.T) {
	s := openTestStore(t)
	input := `{"name": "alice", "age": 30}

[1, 2.5, "x"]
  7
`
	n, err := s.LoadJSONLines("docs", strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var docs []aql.Value
	require.NoError(t, s.Scan(context.Background(), "docs", func(doc aql.Value) error {
		docs = append(docs, doc)
		return nil
	}))
	assert.Equal(t, []aql.Value{
		map[string]aql.Value{"name": "alice", "age": int64(30)},
		[]aql.Value{int64(1), 2.5, "x"},
		int64(7),
	}, docs)
}

func TestLoadJSONLinesBatches(t *testing.T) {
	s := openTestStore(t)
	var sb strings.Builder
	for i := 0; i < loadBatchSize*2+3; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	n, err := s.LoadJSONLines("c", strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, loadBatchSize*2+3, n)

	count, err := s.Count("c")
	require.NoError(t, err)
	assert.Equal(t, int64(loadBatchSize*2+3), count)
}

func TestLoadJSONLinesKeepsDocumentsBeforeError(t *testing.T) {
	s := openTestStore(t)
	n, err := s.LoadJSONLines("c", strings.NewReader("1\n2\n{oops\n3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
	assert.Equal(t, 2, n)

	count, err := s.Count("c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

package engine

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-aql/aql"
)

func TestTableFormatter(t *testing.T) {
	formatter := NewTableFormatter()

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, "_No rows_", formatter.FormatResult(&Result{Width: 1}))
		assert.Equal(t, "_No rows_", formatter.FormatResult(nil))
	})

	t.Run("Rows", func(t *testing.T) {
		res := &Result{
			Width:   2,
			Skipped: 4,
			Rows: [][]aql.Value{
				{int64(1), "a"},
				{2.5, nil},
				{true, []aql.Value{int64(1), "b"}},
			},
		}
		out := formatter.FormatResult(res)
		for _, want := range []string{"$0", "$1", `"a"`, "2.5", "null", `[1,"b"]`, "_3 rows_", "_4 skipped_"} {
			assert.Contains(t, out, want)
		}
	})

	t.Run("Truncate", func(t *testing.T) {
		f := &TableFormatter{MaxWidth: 8, TruncateString: "..."}
		assert.Equal(t, `"abcd...`, f.formatValue("abcdefghijkl"))
		assert.Equal(t, `"abc"`, f.formatValue("abc"))
	})
}

func TestJSONLines(t *testing.T) {
	wide := &Result{Width: 2, Rows: [][]aql.Value{
		{int64(1), map[string]aql.Value{"a": "x"}},
		{2.5, nil},
	}}
	narrow := &Result{Width: 1, Rows: [][]aql.Value{
		{[]aql.Value{int64(1), int64(2)}},
		{"s"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteJSONLines(&buf, narrow))
	assert.Equal(t, "[1,2]\n\"s\"\n", buf.String())

	for _, compressed := range []bool{false, true} {
		for _, res := range []*Result{wide, narrow} {
			var buf bytes.Buffer
			if compressed {
				require.NoError(t, WriteCompressedJSONLines(&buf, res))
			} else {
				require.NoError(t, WriteJSONLines(&buf, res))
			}
			rows, err := ReadJSONLines(&buf, compressed, res.Width)
			require.NoError(t, err)
			assert.Equal(t, res.Rows, rows)
		}
	}
}

func TestReadJSONLinesRejectsWidth(t *testing.T) {
	_, err := ReadJSONLines(strings.NewReader("[1,2,3]\n"), false, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0 is not an array of 2 values")
}

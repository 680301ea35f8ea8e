package engine

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/expr"
)

// WriteJSONLines writes one JSON document per row. Single-register rows
// are written as their value, wider rows as arrays.
func WriteJSONLines(w io.Writer, res *Result) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, row := range res.Rows {
		var doc interface{} = row
		if len(row) == 1 {
			doc = row[0]
		}
		if err := enc.Encode(doc); err != nil {
			return errors.Wrapf(err, "encoding row %d", i)
		}
	}
	return bw.Flush()
}

// WriteCompressedJSONLines is WriteJSONLines through a zstd stream.
func WriteCompressedJSONLines(w io.Writer, res *Result) error {
	z, err := zstd.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "creating zstd writer")
	}
	if err := WriteJSONLines(z, res); err != nil {
		z.Close()
		return err
	}
	return errors.Wrap(z.Close(), "closing zstd stream")
}

// ReadJSONLines reads rows written by WriteJSONLines (optionally zstd
// compressed). Every row is read back as width registers.
func ReadJSONLines(r io.Reader, compressed bool, width int) ([][]aql.Value, error) {
	if compressed {
		z, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd reader")
		}
		defer z.Close()
		r = z
	}
	dec := json.NewDecoder(r)
	var rows [][]aql.Value
	for {
		var doc interface{}
		err := dec.Decode(&doc)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "decoding row %d", len(rows))
		}
		doc = expr.Normalize(doc)
		if width == 1 {
			rows = append(rows, []aql.Value{doc})
			continue
		}
		arr, ok := doc.([]aql.Value)
		if !ok || len(arr) != width {
			return nil, errors.Newf("row %d is not an array of %d values", len(rows), width)
		}
		rows = append(rows, arr)
	}
}

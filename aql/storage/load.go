package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/expr"
)

// loadBatchSize is the number of documents inserted per transaction.
const loadBatchSize = 512

// maxLineSize bounds a single JSON document.
const maxLineSize = 16 << 20

// LoadJSONLines appends one document per non-blank line of r to
// collection and returns the number loaded. Documents before a malformed
// line stay loaded.
func (s *Store) LoadJSONLines(collection string, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	loaded := 0
	batch := make([]aql.Value, 0, loadBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.Insert(collection, batch...); err != nil {
			return err
		}
		loaded += len(batch)
		batch = batch[:0]
		return nil
	}

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		var doc interface{}
		if err := json.Unmarshal(text, &doc); err != nil {
			if ferr := flush(); ferr != nil {
				return loaded, ferr
			}
			return loaded, errors.Wrapf(err, "line %d", line)
		}
		batch = append(batch, expr.Normalize(doc))
		if len(batch) == loadBatchSize {
			if err := flush(); err != nil {
				return loaded, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return loaded, errors.Wrapf(err, "reading line %d", line+1)
	}
	return loaded, flush()
}

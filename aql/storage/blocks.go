package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// BuildBlocks packs documents into frozen single-register blocks of at
// most batchSize rows. On error every block built so far is released.
func BuildBlocks(m *block.Manager, docs []aql.Value, batchSize int) ([]*block.SharedBlock, error) {
	if batchSize <= 0 {
		return nil, errors.Newf("invalid batch size %d", batchSize)
	}
	var out []*block.SharedBlock
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		b := block.NewBuilder(1)
		for _, doc := range docs[start:end] {
			b.AddRow(doc)
		}
		blk, err := b.Build(m)
		if err != nil {
			for _, done := range out {
				done.Release()
			}
			return nil, err
		}
		out = append(out, blk)
	}
	return out, nil
}

// CollectionBlocks returns a loader that reads a whole collection into
// single-register blocks of at most batchSize rows. It is used as the
// Loader of an executor.AllRowsFetcher.
func CollectionBlocks(s *Store, collection string, batchSize int) func(context.Context, *block.Manager) ([]*block.SharedBlock, error) {
	return func(ctx context.Context, m *block.Manager) ([]*block.SharedBlock, error) {
		var docs []aql.Value
		err := s.Scan(ctx, collection, func(doc aql.Value) error {
			docs = append(docs, doc)
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "scanning %s", collection)
		}
		return BuildBlocks(m, docs, batchSize)
	}
}

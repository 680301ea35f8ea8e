// Package storage keeps document collections in BadgerDB and turns them
// into item blocks for source blocks.
package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/s2"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/expr"
)

const (
	documentPrefix = 'd'
	sequencePrefix = 's'
	// sequenceBandwidth is the number of document ids leased per lease.
	sequenceBandwidth = 1000
)

// Store implements collections of JSON documents on BadgerDB. Documents
// are stored s2 compressed under keys ordered by insertion.
type Store struct {
	db *badger.DB
}

// Open opens a store at path. An empty path opens an in-memory store.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable BadgerDB logs

	opts.ValueThreshold = 1 << 10 // 1KB - keep small documents in the LSM tree
	opts.NumCompactors = 2

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger")
	}
	return &Store{db: db}, nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}

func collectionPrefix(collection string) []byte {
	key := make([]byte, 0, len(collection)+2)
	key = append(key, documentPrefix)
	key = append(key, collection...)
	return append(key, 0)
}

func documentKey(collection string, id uint64) []byte {
	return binary.BigEndian.AppendUint64(collectionPrefix(collection), id)
}

func sequenceKey(collection string) []byte {
	return append([]byte{sequencePrefix}, collection...)
}

// Insert appends documents to collection in one transaction.
func (s *Store) Insert(collection string, docs ...aql.Value) error {
	if collection == "" {
		return errors.New("empty collection name")
	}
	seq, err := s.db.GetSequence(sequenceKey(collection), sequenceBandwidth)
	if err != nil {
		return errors.Wrapf(err, "leasing ids for %s", collection)
	}
	defer seq.Release()

	return s.db.Update(func(txn *badger.Txn) error {
		for i, doc := range docs {
			value, err := encodeDocument(doc)
			if err != nil {
				return errors.Wrapf(err, "document %d", i)
			}
			id, err := seq.Next()
			if err != nil {
				return err
			}
			if err := txn.Set(documentKey(collection, id), value); err != nil {
				return errors.Wrapf(err, "failed to write document %d", i)
			}
		}
		return nil
	})
}

// Scan calls fn for every document of collection in insertion order.
func (s *Store) Scan(ctx context.Context, collection string, fn func(doc aql.Value) error) error {
	var from []byte
	for {
		docs, next, err := s.ScanBatch(ctx, collection, from, 1000)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := fn(doc); err != nil {
				return err
			}
		}
		if next == nil {
			return nil
		}
		from = next
	}
}

// ScanBatch reads up to limit documents starting at the key from (the
// collection start when nil). It returns the key to continue from, or
// nil when the collection is exhausted.
func (s *Store) ScanBatch(ctx context.Context, collection string, from []byte, limit int) ([]aql.Value, []byte, error) {
	if limit <= 0 {
		return nil, nil, errors.Newf("invalid batch limit %d", limit)
	}
	prefix := collectionPrefix(collection)
	start := prefix
	if from != nil {
		if !bytes.HasPrefix(from, prefix) {
			return nil, nil, errors.Newf("resume key %x is not in collection %s", from, collection)
		}
		start = from
	}
	var (
		docs []aql.Value
		next []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = limit

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return aql.NewQueryKilledError(err)
			}
			item := it.Item()
			if len(docs) == limit {
				next = item.KeyCopy(nil)
				return nil
			}
			err := item.Value(func(val []byte) error {
				doc, err := decodeDocument(val)
				if err != nil {
					return errors.Wrapf(err, "decoding %x", item.Key())
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return docs, next, nil
}

// Count counts the documents of collection without reading values.
func (s *Store) Count(collection string) (int64, error) {
	prefix := collectionPrefix(collection)
	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // KEY ONLY
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Drop deletes every document of collection.
func (s *Store) Drop(collection string) error {
	return s.db.DropPrefix(collectionPrefix(collection), sequenceKey(collection))
}

func encodeDocument(doc aql.Value) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return s2.Encode(nil, raw), nil
}

func decodeDocument(val []byte) (aql.Value, error) {
	raw, err := s2.Decode(nil, val)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return expr.Normalize(doc), nil
}

package engine

import (
	"context"
	"sync"

	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
	"github.com/wbrown/janus-aql/aql/executor"
	"github.com/wbrown/janus-aql/aql/storage"
	"golang.org/x/sync/errgroup"
)

// RemoteGroup runs the background fetches of the remote sources of one
// query. Wait joins them once the query is finished.
type RemoteGroup struct {
	g errgroup.Group
}

// NewRemoteGroup creates an empty group.
func NewRemoteGroup() *RemoteGroup {
	return &RemoteGroup{}
}

// Source creates a remote source reading collection in batches.
func (r *RemoteGroup) Source(q *executor.Query, s *storage.Store, collection string, batchSize int) *RemoteSource {
	return &RemoteSource{
		group:      r,
		query:      q,
		store:      s,
		collection: collection,
		batchSize:  batchSize,
	}
}

// Wait blocks until every fetch started by the group has returned. Fetch
// errors are delivered through Poll, not here.
func (r *RemoteGroup) Wait() {
	_ = r.g.Wait()
}

type fetchResult struct {
	docs []aql.Value
	next []byte
	err  error
}

// RemoteSource is an executor.Poller that reads a collection
// asynchronously, one batch per fetch, like a shard answering over the
// network. Poll never blocks: it starts a fetch and returns Waiting, and
// the finished fetch wakes the query up.
type RemoteSource struct {
	group      *RemoteGroup
	query      *executor.Query
	store      *storage.Store
	collection string
	batchSize  int

	mu       sync.Mutex
	inFlight bool
	ready    *fetchResult
	next     []byte
	fetches  int
}

var _ executor.Poller = (*RemoteSource)(nil)

// Poll implements executor.Poller.
func (s *RemoteSource) Poll(ctx context.Context) (aql.ExecutionState, *block.SharedBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready == nil {
		if !s.inFlight {
			s.startLocked(ctx)
		}
		return aql.Waiting, nil, nil
	}
	res := s.ready
	s.ready = nil
	if res.err != nil {
		return aql.Done, nil, res.err
	}
	var blk *block.SharedBlock
	if len(res.docs) > 0 {
		blocks, err := storage.BuildBlocks(s.query.Manager(), res.docs, len(res.docs))
		if err != nil {
			return aql.Done, nil, err
		}
		blk = blocks[0]
	}
	if res.next == nil {
		return aql.Done, blk, nil
	}
	s.next = res.next
	// Prefetch while the pipeline works on this batch.
	s.startLocked(ctx)
	return aql.HasMore, blk, nil
}

// Fetches returns the number of fetches started so far.
func (s *RemoteSource) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *RemoteSource) startLocked(ctx context.Context) {
	from := s.next
	s.inFlight = true
	s.fetches++
	s.group.g.Go(func() error {
		docs, next, err := s.store.ScanBatch(ctx, s.collection, from, s.batchSize)
		s.mu.Lock()
		s.ready = &fetchResult{docs: docs, next: next, err: err}
		s.inFlight = false
		s.mu.Unlock()
		s.query.Wakeup()
		return nil
	})
}

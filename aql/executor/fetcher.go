package executor

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/block"
)

// ExecutionBlock is the pull API every pipeline stage exposes.
//
// Execute returns Waiting with nothing else when the stage cannot make
// progress yet; the caller must repeat the identical request later. The
// SkipResult has one level per level of stack. Each returned block is a
// reference owned by the caller.
type ExecutionBlock interface {
	Execute(ctx context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.SharedBlock, error)
}

// Fetcher supplies a block's input as ranges.
type Fetcher interface {
	Execute(ctx context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.InputRange, error)
}

// Resettable fetchers can be rewound for a new cursor.
type Resettable interface {
	Reset()
}

func toExecutorState(s aql.ExecutionState) aql.ExecutorState {
	if s == aql.Done {
		return aql.ExecutorDone
	}
	return aql.ExecutorHasMore
}

// SingleRowFetcher pulls from one dependency block.
type SingleRowFetcher struct {
	dependency ExecutionBlock
	done       bool
}

// NewSingleRowFetcher creates a fetcher over dependency.
func NewSingleRowFetcher(dependency ExecutionBlock) *SingleRowFetcher {
	return &SingleRowFetcher{dependency: dependency}
}

// Execute forwards stack to the dependency. Waiting is passed on with
// nothing consumed, so a later identical call is safe.
func (f *SingleRowFetcher) Execute(ctx context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.InputRange, error) {
	if f.done {
		panic(errors.AssertionFailedf("fetch from a dependency that returned DONE"))
	}
	state, skipped, blk, err := f.dependency.Execute(ctx, stack)
	if err != nil {
		return aql.Done, SkipResult{}, nil, err
	}
	if state == aql.Waiting {
		if blk != nil || !skipped.Nothing() {
			panic(errors.AssertionFailedf("dependency returned WAITING with a result"))
		}
		return aql.Waiting, skipped, nil, nil
	}
	if state == aql.Done {
		f.done = true
	}
	return state, skipped, block.NewInputRange(toExecutorState(state), blk, 0), nil
}

// Reset allows fetching again after the dependency was reinitialised.
func (f *SingleRowFetcher) Reset() {
	f.done = false
}

// ConstFetcher serves injected blocks, one per call. It never waits and
// ignores the call; the block on top of it applies offsets and limits.
type ConstFetcher struct {
	blocks []*block.SharedBlock
	done   bool
}

// NewConstFetcher creates a fetcher over blocks. It takes over the
// references.
func NewConstFetcher(blocks ...*block.SharedBlock) *ConstFetcher {
	f := &ConstFetcher{}
	for _, b := range blocks {
		if b != nil {
			f.blocks = append(f.blocks, b)
		}
	}
	return f
}

// InjectBlock appends a block and makes the fetcher fetchable again.
func (f *ConstFetcher) InjectBlock(blk *block.SharedBlock) {
	if blk != nil {
		f.blocks = append(f.blocks, blk)
	}
	f.done = false
}

// Execute returns the next injected block; the last one is Done.
func (f *ConstFetcher) Execute(_ context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.InputRange, error) {
	if f.done {
		panic(errors.AssertionFailedf("fetch from a const fetcher that returned DONE"))
	}
	skipped := NewSkipResult(stack.Depth())
	if len(f.blocks) == 0 {
		f.done = true
		return aql.Done, skipped, block.EmptyInputRange(aql.ExecutorDone), nil
	}
	blk := f.blocks[0]
	f.blocks = f.blocks[1:]
	state := aql.HasMore
	if len(f.blocks) == 0 {
		state = aql.Done
		f.done = true
	}
	return state, skipped, block.NewInputRange(toExecutorState(state), blk, 0), nil
}

// Reset makes the fetcher fetchable again.
func (f *ConstFetcher) Reset() {
	f.done = false
}

// Release drops blocks that were never fetched.
func (f *ConstFetcher) Release() {
	for _, b := range f.blocks {
		b.Release()
	}
	f.blocks = nil
}

// Loader materialises a source's complete content.
type Loader func(ctx context.Context, m *block.Manager) ([]*block.SharedBlock, error)

// AllRowsFetcher materialises its whole input on first use and then
// serves it block by block. The input is either a Loader or a dependency
// that is drained completely; while draining, the dependency may wait,
// but once loaded the fetcher never returns Waiting.
type AllRowsFetcher struct {
	load       Loader
	dependency ExecutionBlock
	manager    *block.Manager

	collected []*block.SharedBlock
	loaded    bool
	consts    *ConstFetcher
}

// NewAllRowsFetcher creates a fetcher that loads through load, allocating
// from m.
func NewAllRowsFetcher(m *block.Manager, load Loader) *AllRowsFetcher {
	return &AllRowsFetcher{load: load, manager: m}
}

// NewDrainingFetcher creates a fetcher that drains dependency before
// serving anything. It only supports top-level pipelines.
func NewDrainingFetcher(dependency ExecutionBlock) *AllRowsFetcher {
	return &AllRowsFetcher{dependency: dependency}
}

// Execute loads on first call and serves the next block.
func (f *AllRowsFetcher) Execute(ctx context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.InputRange, error) {
	if !f.loaded {
		var err error
		if f.dependency != nil {
			var waiting bool
			waiting, err = f.drain(ctx, stack)
			if err == nil && waiting {
				return aql.Waiting, NewSkipResult(stack.Depth()), nil, nil
			}
		} else {
			f.collected, err = f.load(ctx, f.manager)
			if err != nil {
				err = errors.Wrap(err, "loading input rows")
			}
		}
		if err != nil {
			return aql.Done, SkipResult{}, nil, err
		}
		f.consts = NewConstFetcher(f.collected...)
		f.collected = nil
		f.loaded = true
	}
	return f.consts.Execute(ctx, stack)
}

// drain pulls everything from the dependency. Blocks collected before a
// Waiting are kept for the next attempt.
func (f *AllRowsFetcher) drain(ctx context.Context, stack *CallStack) (bool, error) {
	if stack.Depth() != 1 {
		panic(errors.AssertionFailedf("draining fetcher inside a subquery (call stack depth %d)", stack.Depth()))
	}
	for {
		state, _, blk, err := f.dependency.Execute(ctx, NewCallStackFromCall(Call{}))
		if err != nil {
			return false, err
		}
		if state == aql.Waiting {
			return true, nil
		}
		if blk != nil {
			if blk.HasShadowRows() {
				panic(errors.AssertionFailedf("draining fetcher received shadow rows"))
			}
			f.collected = append(f.collected, blk)
		}
		if state == aql.Done {
			return false, nil
		}
	}
}

// Reset reloads the source on the next call. A dependency must have been
// reinitialised by the caller.
func (f *AllRowsFetcher) Reset() {
	if f.consts != nil {
		f.consts.Release()
	}
	for _, b := range f.collected {
		b.Release()
	}
	f.consts = nil
	f.collected = nil
	f.loaded = false
}

// Poller is the capability of an asynchronous source, such as a remote
// shard. Poll returns Waiting until data is available and must be safe to
// call again after Waiting.
type Poller interface {
	Poll(ctx context.Context) (aql.ExecutionState, *block.SharedBlock, error)
}

// PollFetcher adapts a Poller.
type PollFetcher struct {
	poller Poller
	done   bool
}

// NewPollFetcher creates a fetcher over poller.
func NewPollFetcher(poller Poller) *PollFetcher {
	return &PollFetcher{poller: poller}
}

// Execute polls once.
func (f *PollFetcher) Execute(ctx context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.InputRange, error) {
	if f.done {
		panic(errors.AssertionFailedf("poll of a source that returned DONE"))
	}
	state, blk, err := f.poller.Poll(ctx)
	if err != nil {
		return aql.Done, SkipResult{}, nil, err
	}
	skipped := NewSkipResult(stack.Depth())
	if state == aql.Waiting {
		return aql.Waiting, skipped, nil, nil
	}
	if state == aql.Done {
		f.done = true
	}
	return state, skipped, block.NewInputRange(toExecutorState(state), blk, 0), nil
}

// MultiDependencyFetcher concatenates several dependencies, draining them
// in order. It serves top-level pipelines only; a shadow row from any
// dependency is a contract violation.
type MultiDependencyFetcher struct {
	dependencies []ExecutionBlock
	current      int
}

// NewMultiDependencyFetcher creates a fetcher over dependencies.
func NewMultiDependencyFetcher(dependencies ...ExecutionBlock) *MultiDependencyFetcher {
	return &MultiDependencyFetcher{dependencies: dependencies}
}

// Execute pulls from the current dependency, moving on when it is Done.
func (f *MultiDependencyFetcher) Execute(ctx context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.InputRange, error) {
	if stack.Depth() != 1 {
		panic(errors.AssertionFailedf("multiple dependencies inside a subquery (call stack depth %d)", stack.Depth()))
	}
	for {
		if f.current >= len(f.dependencies) {
			panic(errors.AssertionFailedf("fetch from exhausted dependencies"))
		}
		state, skipped, blk, err := f.dependencies[f.current].Execute(ctx, stack)
		if err != nil {
			return aql.Done, SkipResult{}, nil, errors.Wrapf(err, "dependency %d", f.current)
		}
		if state == aql.Waiting {
			return aql.Waiting, skipped, nil, nil
		}
		if blk != nil && blk.HasShadowRows() {
			panic(errors.AssertionFailedf("dependency %d returned shadow rows to a multi-dependency fetcher", f.current))
		}
		if state == aql.Done {
			f.current++
			if f.current < len(f.dependencies) {
				state = aql.HasMore
				if blk == nil {
					continue
				}
			}
		}
		return state, skipped, block.NewInputRange(toExecutorState(state), blk, 0), nil
	}
}

// Reset starts again from the first dependency.
func (f *MultiDependencyFetcher) Reset() {
	f.current = 0
}

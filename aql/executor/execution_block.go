package executor

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/annotations"
	"github.com/wbrown/janus-aql/aql/block"
)

// execState is the driver's internal position between and within calls.
type execState int

const (
	stateCheckCall execState = iota
	stateSkip
	stateProduce
	stateFastForward
	stateUpstream
	stateShadowRows
	stateNextSubquery
	stateDone
)

func (s execState) String() string {
	switch s {
	case stateCheckCall:
		return "CHECKCALL"
	case stateSkip:
		return "SKIP"
	case stateProduce:
		return "PRODUCE"
	case stateFastForward:
		return "FASTFORWARD"
	case stateUpstream:
		return "UPSTREAM"
	case stateShadowRows:
		return "SHADOWROWS"
	case stateNextSubquery:
		return "NEXTSUBQUERY"
	case stateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// blockKind selects the call stack handling of a block.
type blockKind int

const (
	kindGeneric blockKind = iota
	// kindSubqueryStart blocks forward the outer stack unchanged and
	// create shadow rows.
	kindSubqueryStart
	// kindSubqueryEnd blocks push a call level for the subquery body and
	// consume shadow rows.
	kindSubqueryEnd
)

type fastForwardVariant int

const (
	// fastForwardFullCount skips through the executor and reports it.
	fastForwardFullCount fastForwardVariant = iota
	// fastForwardExecutor skips through the executor without reporting.
	fastForwardExecutor
	// fastForwardFetcher drops the input and asks upstream to discard.
	fastForwardFetcher
)

// Block is the ExecutionBlock driver. It owns one fetcher and one
// executor, allocates output blocks and applies the call contract.
//
// A Block is not safe for concurrent use; a pipeline is pulled by one
// goroutine at a time.
type Block struct {
	name     string
	query    *Query
	fetcher  Fetcher
	executor Executor
	infos    RegisterInfos
	props    Properties
	kind     blockKind
	log      *logrus.Entry

	producer shadowRowProducer
	consumer shadowRowConsumer

	state                execState
	lastRange            *block.InputRange
	upstreamState        aql.ExecutionState
	upstreamRequest      Call
	output               *OutputRow
	outputPassthrough    bool
	executorReturnedDone bool
	skipped              SkipResult
	stats                Stats

	// Saved when returning Waiting and restored by the repeated call.
	waitingCall     Call
	waitingCallList CallList
	waitingStack    *CallStack

	done bool
	err  error
}

var _ ExecutionBlock = (*Block)(nil)

// NewBlock creates a driver for executor reading through fetcher.
func NewBlock(name string, query *Query, fetcher Fetcher, executor Executor, infos RegisterInfos) (*Block, error) {
	if err := infos.Validate(); err != nil {
		return nil, errors.Wrapf(err, "block %s", name)
	}
	b := &Block{
		name:          name,
		query:         query,
		fetcher:       fetcher,
		executor:      executor,
		infos:         infos,
		props:         executor.Properties(),
		log:           query.Logger().WithField("block", name),
		lastRange:     block.EmptyInputRange(aql.ExecutorHasMore),
		upstreamState: aql.HasMore,
	}
	if p, ok := executor.(shadowRowProducer); ok {
		b.kind = kindSubqueryStart
		b.producer = p
	}
	if c, ok := executor.(shadowRowConsumer); ok {
		b.kind = kindSubqueryEnd
		b.consumer = c
	}
	return b, nil
}

// Name returns the block's name.
func (b *Block) Name() string { return b.name }

// Stats returns the executor statistics accumulated so far.
func (b *Block) Stats() Stats { return b.stats }

// Execute pulls according to stack. See ExecutionBlock.
func (b *Block) Execute(ctx context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.SharedBlock, error) {
	depth := stack.Depth()
	if b.err != nil {
		return aql.Done, NewSkipResult(depth), nil, b.err
	}
	if b.done {
		return aql.Done, NewSkipResult(depth), nil, nil
	}
	if err := b.query.checkKilled(ctx); err != nil {
		return b.fail(depth, err)
	}

	start := time.Now()
	state, skipped, out, err := b.execute(ctx, stack.Clone())
	if err != nil {
		return b.fail(depth, err)
	}
	b.annotate(start, stack, state, skipped, out)
	return state, skipped, out, nil
}

// GetSome returns up to atMost rows. atMost must be positive.
func (b *Block) GetSome(ctx context.Context, atMost uint64) (aql.ExecutionState, *block.SharedBlock, error) {
	state, _, out, err := b.Execute(ctx, NewCallStackFromCall(Call{SoftLimit: LimitOf(atMost)}))
	return state, out, err
}

// SkipSome skips up to atMost rows and returns how many were skipped.
// atMost must be positive.
func (b *Block) SkipSome(ctx context.Context, atMost uint64) (aql.ExecutionState, uint64, error) {
	state, skipped, out, err := b.Execute(ctx, NewCallStackFromCall(Call{Offset: atMost, SoftLimit: LimitOf(0)}))
	if out != nil {
		out.Release()
		panic(errors.AssertionFailedf("block %s produced rows for a skip-only call", b.name))
	}
	return state, skipped.GetSkipCount(), err
}

// InitializeCursor rewinds the block for a new cursor. A non-nil input is
// injected into a ConstFetcher; other fetchers cannot take input.
func (b *Block) InitializeCursor(input *block.SharedBlock) error {
	b.output.Release()
	b.output = nil
	b.outputPassthrough = false
	b.lastRange.Release()
	b.lastRange = block.EmptyInputRange(aql.ExecutorHasMore)
	b.upstreamState = aql.HasMore
	b.state = stateCheckCall
	b.waitingStack = nil
	b.done = false
	b.err = nil
	b.resetExecutor()
	if r, ok := b.fetcher.(Resettable); ok {
		r.Reset()
	}
	if input == nil {
		return nil
	}
	c, ok := b.fetcher.(*ConstFetcher)
	if !ok {
		input.Release()
		return errors.Newf("block %s cannot take injected input", b.name)
	}
	c.InjectBlock(input)
	return nil
}

func (b *Block) execute(ctx context.Context, stack *CallStack) (aql.ExecutionState, SkipResult, *block.SharedBlock, error) {
	callerDepth := stack.Depth()
	var (
		clientCallList CallList
		clientCall     Call
	)
	if b.waitingStack != nil {
		// Repeated call after Waiting: continue the saved request.
		clientCall = b.waitingCall
		clientCallList = b.waitingCallList
		stack = b.waitingStack
		b.waitingStack = nil
	} else {
		if b.state == stateUpstream {
			panic(errors.AssertionFailedf("block %s re-entered upstream without a saved request", b.name))
		}
		clientCallList = stack.PopCallList()
		if b.kind == kindSubqueryEnd {
			// The client's call applies to this block's output rows; the
			// subquery body gets a call level of its own.
			clientCallList.PeekNextCall().Validate()
			stack.PushCallList(clientCallList)
			clientCallList = NewCallListWithDefault(Call{}, Call{})
		}
		clientCall = clientCallList.PopNextCall()
		clientCall.Validate()
		b.skipped = NewSkipResult(stack.Depth() + 1)
	}
	b.log.Tracef("execute %s in %s on %s", clientCall, b.state, stack)

	localState := aql.ExecutorDone
	returnTo := stateCheckCall
	for b.state != stateDone {
		switch b.state {
		case stateCheckCall:
			b.state = b.checkCall(stack, clientCall)

		case stateSkip:
			state, stats, n, call, err := b.executor.SkipRowsRange(b.lastRange, &clientCall)
			if err != nil {
				return aql.Done, SkipResult{}, nil, err
			}
			clientCall.ResetSkipCount()
			b.skipped.DidSkip(n)
			b.stats.Add(stats)
			state = b.settle(state)
			localState = state
			switch {
			case state == aql.ExecutorDone:
				b.state = stateFastForward
			case clientCall.GetOffset() > 0 && !b.lastRange.HasDataRow():
				b.upstreamRequest = call
				b.state = stateUpstream
			default:
				b.state = stateCheckCall
			}

		case stateProduce:
			if b.outputIsFull() {
				b.state = stateDone
				break
			}
			if err := b.ensureOutputBlock(b.outputCall(stack, clientCall)); err != nil {
				return aql.Done, SkipResult{}, nil, err
			}
			state, stats, call, err := b.executor.ProduceRows(b.lastRange, b.output)
			if err != nil {
				return aql.Done, SkipResult{}, nil, err
			}
			b.stats.Add(stats)
			state = b.settle(state)
			b.executorReturnedDone = state == aql.ExecutorDone
			localState = state
			if b.kind != kindSubqueryEnd {
				clientCall = b.output.ClientCall()
			}
			switch {
			case state == aql.ExecutorDone:
				b.state = stateFastForward
			case b.outputIsFull():
				b.state = stateDone
			case clientCall.GetLimit() > 0 && !b.lastRange.HasDataRow():
				b.upstreamRequest = call
				b.state = stateUpstream
			default:
				b.state = stateCheckCall
			}

		case stateFastForward:
			state, call, err := b.fastForward(&clientCall)
			if err != nil {
				return aql.Done, SkipResult{}, nil, err
			}
			localState = state
			switch {
			case state == aql.ExecutorDone && b.lastRange.HasValidRow():
				b.state = stateShadowRows
			case state == aql.ExecutorDone:
				b.state = stateDone
			default:
				b.upstreamRequest = call
				b.state = stateUpstream
			}

		case stateUpstream:
			if b.upstreamState == aql.Done {
				b.state = stateDone
				break
			}
			if b.lastRange.HasValidRow() {
				panic(errors.AssertionFailedf("block %s fetches with unread input", b.name))
			}
			if b.kind != kindSubqueryStart {
				stack.PushCallList(upstreamCallList(b.upstreamRequest, clientCallList.HasDefaultCalls()))
			}
			state, upstreamSkipped, input, err := b.fetcher.Execute(ctx, stack)
			if b.kind != kindSubqueryStart {
				stack.PopCallList()
			}
			if err != nil {
				return aql.Done, SkipResult{}, nil, err
			}
			if state == aql.Waiting {
				b.waitingCall = clientCall
				b.waitingCallList = clientCallList
				b.waitingStack = stack
				b.log.Debug("upstream is waiting")
				return aql.Waiting, NewSkipResult(callerDepth), nil, nil
			}
			b.lastRange.Release()
			b.lastRange = input
			b.upstreamState = state
			b.applyUpstreamSkips(stack, upstreamSkipped)
			if b.lastRange.HasShadowRow() && !b.lastRange.PeekShadowRow().IsRelevant() {
				b.state = stateShadowRows
			} else {
				b.state = stateCheckCall
			}

		case stateShadowRows:
			if b.outputIsFull() {
				returnTo = stateShadowRows
				b.state = stateDone
				break
			}
			if err := b.ensureOutputBlock(b.outputCall(stack, clientCall)); err != nil {
				return aql.Done, SkipResult{}, nil, err
			}
			if !b.output.IsInitialized() {
				panic(errors.AssertionFailedf("block %s has no output block for shadow rows", b.name))
			}
			switch b.kind {
			case kindSubqueryStart:
				b.state = b.forwardStartShadowRows(stack)
			case kindSubqueryEnd:
				if b.endMustSuspend(stack) {
					returnTo = stateShadowRows
					b.state = stateDone
					break
				}
				next, err := b.forwardEndShadowRows(stack)
				if err != nil {
					return aql.Done, SkipResult{}, nil, err
				}
				b.state = next
			default:
				b.state = b.forwardShadowRows(stack)
			}
			if b.kind != kindSubqueryEnd {
				clientCall = b.output.ClientCall()
			}

		case stateNextSubquery:
			if b.kind == kindSubqueryStart {
				if stack.Peek().softLimitReached() {
					b.state = stateDone
					break
				}
			}
			if !stack.HasAllValidCalls() || !clientCallList.HasMoreCalls() {
				b.state = stateDone
				break
			}
			clientCall = clientCallList.PopNextCall()
			clientCall.Validate()
			b.state = stateCheckCall

		default:
			panic(errors.AssertionFailedf("block %s in unexpected state %s", b.name, b.state))
		}
	}

	if b.outputPassthrough && b.lastRange.IsBlockTaken() {
		if err := b.lastRange.Detach(b.query.Manager()); err != nil {
			return aql.Done, SkipResult{}, nil, err
		}
	}
	var out *block.SharedBlock
	if b.output != nil {
		out = b.output.StealBlock()
		b.output = nil
	}
	b.outputPassthrough = false
	b.state = returnTo

	skipped := b.skipped
	b.skipped = SkipResult{}
	if b.kind == kindSubqueryEnd {
		skipped.DecrementSubquery()
	}

	state := aql.HasMore
	if localState != aql.ExecutorHasMore && !b.lastRange.HasValidRow() {
		state = b.upstreamState
	}
	if state == aql.Done {
		b.done = true
		b.lastRange.Release()
	}
	b.log.Tracef("return %s skipped %s", state, skipped)
	return state, skipped, out, nil
}

// checkCall picks the next action for call.
func (b *Block) checkCall(stack *CallStack, call Call) execState {
	switch b.kind {
	case kindSubqueryStart:
		if next, ok := b.checkOuterCall(stack); ok {
			return next
		}
	case kindSubqueryEnd:
		if stack.Peek().softLimitReached() {
			return stateDone
		}
	}
	return b.nextState(call)
}

// nextState never returns Upstream or ShadowRows.
func (b *Block) nextState(call Call) execState {
	switch {
	case b.executorReturnedDone:
		return stateFastForward
	case call.GetOffset() > 0:
		return stateSkip
	case call.GetLimit() > 0:
		return stateProduce
	case call.HasHardLimit():
		return stateFastForward
	}
	// Soft limit reached.
	return stateDone
}

// checkOuterCall applies the call of the level SubqueryStart reads from
// to input rows it already holds. Rows arriving from upstream have that
// call applied already.
func (b *Block) checkOuterCall(stack *CallStack) (execState, bool) {
	outer := stack.ModifyTopCall()
	level := stack.Depth() - 1
	if outer.GetOffset() > 0 && b.lastRange.HasDataRow() {
		n := b.lastRange.Skip(outer.GetOffset())
		outer.DidSkip(n)
		outer.ResetSkipCount()
		b.skipped.DidSkipSubquery(n, level)
	}
	if outer.GetOffset() > 0 || outer.GetLimit() > 0 {
		return stateCheckCall, false
	}
	if outer.HasSoftLimit() {
		return stateDone, true
	}
	n := b.lastRange.SkipAll()
	if n > 0 && outer.NeedsFullCount() {
		outer.DidSkip(n)
		outer.ResetSkipCount()
		b.skipped.DidSkipSubquery(n, level)
	}
	switch {
	case b.lastRange.HasShadowRow():
		return stateShadowRows, true
	case b.upstreamState == aql.HasMore:
		return stateUpstream, true
	}
	return stateDone, true
}

// settle treats a run that ended at a shadow row as done.
func (b *Block) settle(state aql.ExecutorState) aql.ExecutorState {
	if state == aql.ExecutorHasMore && !b.lastRange.HasDataRow() && b.lastRange.HasShadowRow() {
		return aql.ExecutorDone
	}
	return state
}

func (b *Block) fastForwardVariant(call Call) fastForwardVariant {
	if call.NeedsFullCount() && call.GetOffset() == 0 && call.GetLimit() == 0 {
		return fastForwardFullCount
	}
	if b.props.FastForwardViaExecutor {
		return fastForwardExecutor
	}
	return fastForwardFetcher
}

// fastForward drops the rest of the current run and returns the state and
// the call to send upstream if more input is needed.
func (b *Block) fastForward(clientCall *Call) (aql.ExecutorState, Call, error) {
	var (
		state aql.ExecutorState
		stats Stats
		call  Call
		err   error
	)
	switch b.fastForwardVariant(*clientCall) {
	case fastForwardFullCount:
		var n uint64
		state, stats, n, call, err = b.executor.SkipRowsRange(b.lastRange, clientCall)
		clientCall.ResetSkipCount()
		b.skipped.DidSkip(n)
	case fastForwardExecutor:
		ff := FastForwardCall()
		state, stats, _, call, err = b.executor.SkipRowsRange(b.lastRange, &ff)
	default:
		b.lastRange.SkipAll()
		state = b.lastRange.UpstreamState()
		call = DiscardCall()
	}
	if err != nil {
		return aql.ExecutorDone, Call{}, err
	}
	b.stats.Add(stats)
	state = b.settle(state)
	if state == aql.ExecutorHasMore && b.lastRange.HasDataRow() {
		panic(errors.AssertionFailedf("block %s left input while fast forwarding", b.name))
	}
	return state, call, nil
}

// upstreamCallList strips what this block handles itself from the call
// its executor wants, so upstream never skips or counts on its behalf.
func upstreamCallList(call Call, withDefault bool) CallList {
	var up Call
	switch limit := call.GetLimit(); {
	case limit == 0 && call.HasHardLimit():
		up = DiscardCall()
	case limit > 0 && call.HasLimit():
		up = Call{SoftLimit: LimitOf(limit)}
	}
	if withDefault {
		return NewCallListWithDefault(up, Call{})
	}
	return NewCallList(up)
}

// applyUpstreamSkips accounts rows upstream skipped on enclosing levels.
func (b *Block) applyUpstreamSkips(stack *CallStack, skipped SkipResult) {
	want := stack.Depth() + 1
	if b.kind == kindSubqueryStart {
		want = stack.Depth()
	}
	if skipped.Depth() != want {
		panic(errors.AssertionFailedf("block %s got skip result of depth %d, expected %d", b.name, skipped.Depth(), want))
	}
	for level := 0; level < stack.Depth(); level++ {
		n := skipped.GetSkipOnLevel(level)
		if n == 0 {
			continue
		}
		call := stack.ModifyCallAtLevel(level)
		call.DidSkip(n)
		call.ResetSkipCount()
		b.skipped.DidSkipSubquery(n, level)
	}
	if b.kind != kindSubqueryStart && skipped.GetSkipCount() != 0 {
		panic(errors.AssertionFailedf("block %s: upstream skipped %d rows it was not asked to skip", b.name, skipped.GetSkipCount()))
	}
}

// outputCall is the call output rows are counted against. SubqueryEnd
// writes rows of the enclosing level.
func (b *Block) outputCall(stack *CallStack, clientCall Call) Call {
	if b.kind == kindSubqueryEnd {
		return stack.Peek()
	}
	return clientCall
}

func (b *Block) outputIsFull() bool {
	return b.output.IsInitialized() && b.output.AllRowsUsed()
}

// ensureOutputBlock makes sure an output row exists for call. Without any
// input there is nothing to write and the output stays uninitialised.
func (b *Block) ensureOutputBlock(call Call) error {
	if b.output.IsInitialized() {
		b.output.SetCall(call)
		return nil
	}
	if !b.lastRange.HasValidRow() {
		b.output = NewOutputRow(nil, b.infos, call)
		return nil
	}
	m := b.query.Manager()
	if b.props.AllowsBlockPassthrough && b.lastRange.NumRegisters() == b.infos.NumOutputRegisters {
		owned, err := b.lastRange.TakeBlock(m)
		if err != nil {
			return err
		}
		b.output = NewOutputRow(owned, b.infos, call)
		b.outputPassthrough = true
		if c := b.query.Annotations(); c.Enabled() {
			c.Add(annotations.Event{
				Name:  annotations.BlockPassthrough,
				Start: time.Now(),
				Data:  map[string]interface{}{"block": b.name, "rows": owned.NumRows()},
			})
		}
		return nil
	}
	size := b.outputBlockSize(call)
	if size == 0 {
		b.output = NewOutputRow(nil, b.infos, call)
		return nil
	}
	owned, err := m.RequestBlock(int(size), b.infos.NumOutputRegisters)
	if err != nil {
		return err
	}
	b.output = NewOutputRow(owned, b.infos, call)
	return nil
}

func (b *Block) outputBlockSize(call Call) uint64 {
	batch := uint64(b.query.BatchSize())
	shadows := b.lastRange.CountShadowRows()
	var size uint64
	if est, ok := b.executor.(RowEstimator); ok && b.props.InputSizeRestrictsOutputSize {
		size = est.ExpectedNumberOfRows(b.lastRange, call) + shadows
	} else if limit := call.GetLimit(); limit >= batch {
		size = batch
	} else {
		size = limit + shadows
	}
	if size > batch {
		size = batch
	}
	return size
}

// countShadowRowProduced accounts a shadow row of the given output depth
// on the call of its level. A shadow row closing an enclosing run also
// ends the run below it.
func (b *Block) countShadowRowProduced(stack *CallStack, depth uint64) {
	level := stack.Depth() - 1 - int(depth)
	if level < 0 {
		panic(errors.AssertionFailedf("block %s: shadow row of depth %d in call stack of depth %d",
			b.name, depth, stack.Depth()))
	}
	call := stack.ModifyCallAtLevel(level)
	if call.GetLimit() > 0 {
		call.DidProduce(1)
	}
	if depth > 0 {
		stack.discardCallAt(level + 1)
	}
}

func (b *Block) resetExecutor() {
	if r, ok := b.executor.(Resetter); ok {
		r.Reset()
	}
	b.executorReturnedDone = false
}

// afterShadowRow picks the next state once a shadow row was written. A
// pending non-relevant shadow row is forwarded before anything else, in
// this call or the next one.
func (b *Block) afterShadowRow(state aql.ExecutorState) execState {
	switch {
	case state == aql.ExecutorDone && !b.lastRange.HasValidRow():
		return stateDone
	case b.lastRange.HasShadowRow() && !b.lastRange.PeekShadowRow().IsRelevant():
		return stateShadowRows
	case b.output.AllRowsUsed():
		return stateDone
	}
	return stateNextSubquery
}

func (b *Block) forwardShadowRows(stack *CallStack) execState {
	if !b.lastRange.HasShadowRow() {
		return stateNextSubquery
	}
	state, sr := b.lastRange.NextShadowRow()
	b.countShadowRowProduced(stack, sr.Depth())
	if sr.IsRelevant() {
		b.resetExecutor()
	} else {
		// The next data row opens a new run.
		b.executorReturnedDone = false
	}
	b.output.CopyShadowRow(sr)
	return b.afterShadowRow(state)
}

func (b *Block) forwardStartShadowRows(stack *CallStack) execState {
	if b.lastRange.HasDataRow() {
		if !b.producer.ProduceShadowRow(b.lastRange, b.output) {
			return stateCheckCall
		}
		b.executorReturnedDone = false
		b.countShadowRowProduced(stack, 0)
		b.annotateRun(annotations.SubqueryRunStarted, map[string]interface{}{"block": b.name})
		if b.lastRange.HasShadowRow() {
			return stateShadowRows
		}
		return stateNextSubquery
	}
	if !b.lastRange.HasShadowRow() {
		return stateNextSubquery
	}
	state, sr := b.lastRange.NextShadowRow()
	b.output.IncreaseShadowRowDepth(sr)
	b.countShadowRowProduced(stack, sr.Depth()+1)
	b.executorReturnedDone = false
	return b.afterShadowRow(state)
}

// dropsRuns reports whether SubqueryEnd must drop whole subquery results
// instead of writing them: the enclosing call still skips, or its hard
// limit is reached.
func dropsRuns(outer *Call) bool {
	return outer.GetOffset() > 0 || (outer.GetLimit() == 0 && outer.HasHardLimit())
}

// endMustSuspend reports whether a subquery result is due but the client
// does not take further rows in this call.
func (b *Block) endMustSuspend(stack *CallStack) bool {
	if !b.lastRange.HasShadowRow() || !b.lastRange.PeekShadowRow().IsRelevant() {
		return false
	}
	outer := stack.Peek()
	return !dropsRuns(&outer) && b.output.IsFull()
}

func (b *Block) forwardEndShadowRows(stack *CallStack) (execState, error) {
	if !b.lastRange.HasShadowRow() {
		return stateNextSubquery, nil
	}
	if !b.lastRange.PeekShadowRow().IsRelevant() {
		state, sr := b.lastRange.NextShadowRow()
		b.output.DecreaseShadowRowDepth(sr)
		b.countShadowRowProduced(stack, sr.Depth())
		return b.afterShadowRow(state), nil
	}
	outer := stack.ModifyTopCall()
	state, sr := b.lastRange.NextShadowRow()
	dropped := dropsRuns(outer)
	b.annotateRun(annotations.SubqueryRunFinished, map[string]interface{}{"block": b.name, "dropped": dropped})
	if dropped {
		if outer.GetOffset() > 0 || outer.NeedsFullCount() {
			outer.DidSkip(1)
			outer.ResetSkipCount()
			b.skipped.DidSkipSubquery(1, stack.Depth()-1)
		}
	} else {
		if err := b.consumer.ConsumeShadowRow(sr, b.output); err != nil {
			return stateDone, err
		}
		b.countShadowRowProduced(stack, 0)
	}
	b.resetExecutor()
	return b.afterShadowRow(state), nil
}

func (b *Block) annotateRun(name string, data map[string]interface{}) {
	if c := b.query.Annotations(); c.Enabled() {
		c.Add(annotations.Event{Name: name, Start: time.Now(), Data: data})
	}
}

// fail makes err sticky and releases everything the block holds.
func (b *Block) fail(depth int, err error) (aql.ExecutionState, SkipResult, *block.SharedBlock, error) {
	if b.err == nil {
		b.err = err
		b.output.Release()
		b.output = nil
		b.lastRange.Release()
		b.waitingStack = nil
		b.log.WithError(err).Debug("block failed")
		if c := b.query.Annotations(); c.Enabled() {
			name := annotations.ErrorUpstream
			switch {
			case aql.IsResourceLimitExceeded(err):
				name = annotations.ErrorResourceLimit
			case aql.IsQueryKilled(err):
				name = annotations.QueryKilled
			}
			c.Add(annotations.Event{
				Name:  name,
				Start: time.Now(),
				Data:  map[string]interface{}{"block": b.name, "error": err.Error()},
			})
		}
	}
	return aql.Done, NewSkipResult(depth), nil, err
}

func (b *Block) annotate(start time.Time, stack *CallStack, state aql.ExecutionState, skipped SkipResult, out *block.SharedBlock) {
	c := b.query.Annotations()
	if !c.Enabled() {
		return
	}
	name := annotations.BlockExecute
	switch state {
	case aql.Waiting:
		name = annotations.BlockWaiting
	case aql.Done:
		name = annotations.BlockDone
	}
	rows := 0
	if out != nil {
		rows = out.NumRows()
	}
	c.AddTiming(name, start, map[string]interface{}{
		"block":   b.name,
		"call":    stack.Peek().String(),
		"state":   state.String(),
		"rows":    rows,
		"skipped": skipped.String(),
	})
}

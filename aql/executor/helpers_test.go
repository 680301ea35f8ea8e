package executor

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/annotations"
	"github.com/wbrown/janus-aql/aql/block"
)

var subqueryInput = []int64{1, 2, 5, 2, 1, 5, 7, 1}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestQuery(t *testing.T, opts QueryOptions) *Query {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return NewQuery(opts)
}

// recordingQuery returns a query whose annotations are enabled.
func recordingQuery(t *testing.T) *Query {
	t.Helper()
	return newTestQuery(t, QueryOptions{Annotations: func(annotations.Event) {}})
}

func intBlock(t *testing.T, q *Query, values ...int64) *block.SharedBlock {
	t.Helper()
	b := block.NewBuilder(1)
	for _, v := range values {
		b.AddRow(v)
	}
	shared, err := b.Build(q.Manager())
	require.NoError(t, err)
	return shared
}

func mustBlock(t *testing.T, name string, q *Query, f Fetcher, e Executor, infos RegisterInfos) *Block {
	t.Helper()
	b, err := NewBlock(name, q, f, e, infos)
	require.NoError(t, err)
	return b
}

// sourceBlock serves values from one register, in blocks of chunk rows
// (all in one block if chunk is 0).
func sourceBlock(t *testing.T, q *Query, chunk int, values ...int64) *Block {
	t.Helper()
	if chunk == 0 {
		chunk = len(values)
	}
	var blocks []*block.SharedBlock
	for start := 0; start < len(values); start += chunk {
		end := start + chunk
		if end > len(values) {
			end = len(values)
		}
		blocks = append(blocks, intBlock(t, q, values[start:end]...))
	}
	return mustBlock(t, "source", q, NewConstFetcher(blocks...), NewIdExecutor(), NewRegisterInfos(1, 1))
}

// subquery wraps body (a function building the subquery body on top of
// the start block) between SubqueryStart and SubqueryEnd. Register 0 of
// the input is the subquery's outer variable; the body's register
// resultReg is collected into register width of the output.
func subquery(t *testing.T, q *Query, upstream ExecutionBlock, width int,
	body func(start ExecutionBlock) (ExecutionBlock, int), resultReg aql.RegisterID) *Block {
	t.Helper()
	start := mustBlock(t, "start", q, NewSingleRowFetcher(upstream),
		NewSubqueryStartExecutor(), NewRegisterInfos(width, width))
	last, bodyWidth := ExecutionBlock(start), width
	if body != nil {
		last, bodyWidth = body(start)
	}
	keep := make(aql.RegisterSet, width)
	for i := range keep {
		keep[i] = aql.RegisterID(i)
	}
	infos := RegisterInfos{
		NumInputRegisters:  bodyWidth,
		NumOutputRegisters: width + 1,
		OutputRegisters:    aql.RegisterSet{aql.RegisterID(width)},
		RegistersToKeep:    keep,
	}
	return mustBlock(t, "end", q, NewSingleRowFetcher(last),
		NewSubqueryEndExecutor(resultReg, aql.RegisterID(width), q.Manager().Monitor()), infos)
}

// simpleSubquery is SubqueryStart directly followed by SubqueryEnd over
// a single register input: each row v becomes (v, [v]).
func simpleSubquery(t *testing.T, q *Query, upstream ExecutionBlock) *Block {
	return subquery(t, q, upstream, 1, nil, 0)
}

type result struct {
	state   aql.ExecutionState
	skipped uint64
	rows    [][]aql.Value
}

func rowsOf(t *testing.T, blk *block.SharedBlock) [][]aql.Value {
	t.Helper()
	if blk == nil {
		return nil
	}
	defer blk.Release()
	var rows [][]aql.Value
	for i := 0; i < blk.NumRows(); i++ {
		require.False(t, blk.IsShadowRow(i), "shadow row at top level")
		rows = append(rows, blk.Values(i))
	}
	return rows
}

// executeOnce issues a single top-level call.
func executeOnce(t *testing.T, b ExecutionBlock, call Call) result {
	t.Helper()
	state, skipped, blk, err := b.Execute(context.Background(), NewCallStackFromCall(call))
	require.NoError(t, err)
	require.Equal(t, 1, skipped.Depth())
	return result{state: state, skipped: skipped.GetSkipCount(), rows: rowsOf(t, blk)}
}

// drain pulls until Done. After every answer the call is reduced by
// what was delivered, as a consumer would; a satisfied soft limit starts
// a fresh batch of the same size. Waiting repeats the identical call.
func drain(t *testing.T, b ExecutionBlock, call Call) result {
	t.Helper()
	batch := call.SoftLimit
	var total result
	for i := 0; i < 10000; i++ {
		r := executeOnce(t, b, call)
		total.skipped += r.skipped
		total.rows = append(total.rows, r.rows...)
		total.state = r.state
		switch r.state {
		case aql.Done:
			return total
		case aql.Waiting:
			continue
		}
		call.DidSkip(r.skipped)
		call.ResetSkipCount()
		call.DidProduce(uint64(len(r.rows)))
		if call.GetOffset() == 0 && call.HasSoftLimit() && call.GetLimit() == 0 {
			call = Call{SoftLimit: batch}
		}
	}
	t.Fatal("pipeline did not finish")
	return total
}

func contextBackground() context.Context {
	return context.Background()
}

func ints(values ...int64) []aql.Value {
	out := make([]aql.Value, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// firstColumn extracts register 0 of every row.
func firstColumn(rows [][]aql.Value) []aql.Value {
	out := make([]aql.Value, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out
}

// wrapped pairs every value with a single element array: (v, [v]).
func wrapped(values ...int64) [][]aql.Value {
	out := make([][]aql.Value, len(values))
	for i, v := range values {
		out[i] = []aql.Value{v, []aql.Value{v}}
	}
	return out
}

// scriptedPoller returns Waiting for the first waits polls and then the
// given blocks, the last one with Done.
type scriptedPoller struct {
	waits  int
	blocks []*block.SharedBlock
	polls  int
}

func (p *scriptedPoller) Poll(context.Context) (aql.ExecutionState, *block.SharedBlock, error) {
	p.polls++
	if p.waits > 0 {
		p.waits--
		return aql.Waiting, nil, nil
	}
	if len(p.blocks) == 0 {
		return aql.Done, nil, nil
	}
	blk := p.blocks[0]
	p.blocks = p.blocks[1:]
	if len(p.blocks) == 0 {
		return aql.Done, blk, nil
	}
	return aql.HasMore, blk, nil
}

// failingBlock returns err on every call.
type failingBlock struct {
	err   error
	calls int
}

func (f *failingBlock) Execute(context.Context, *CallStack) (aql.ExecutionState, SkipResult, *block.SharedBlock, error) {
	f.calls++
	return aql.Done, SkipResult{}, nil, f.err
}

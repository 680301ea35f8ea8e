package engine

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-aql/aql"
	"github.com/wbrown/janus-aql/aql/expr"
	"github.com/wbrown/janus-aql/aql/executor"
	"github.com/wbrown/janus-aql/aql/storage"
	"sigs.k8s.io/yaml"
)

// Stage kinds.
const (
	StageValues      = "values"
	StageSource      = "source"
	StageRemote      = "remote"
	StageUnion       = "union"
	StageFilter      = "filter"
	StageCalculation = "calculation"
	StageLimit       = "limit"
	StageDistinct    = "distinct"
	StageReturn      = "return"
	StageSubquery    = "subquery"
)

// Plan is a linear pipeline of stages plus the call the client issues
// against its last stage.
//
// Every stage reads the registers of the stage before it. Sources produce
// a single register 0; calculations and subqueries append one register;
// return narrows to the single register it projects.
type Plan struct {
	Name      string  `json:"name,omitempty"`
	Offset    uint64  `json:"offset,omitempty"`
	Limit     *uint64 `json:"limit,omitempty"`
	FullCount bool    `json:"fullCount,omitempty"`
	Stages    []Stage `json:"stages"`
}

// Stage is one pipeline step. Which fields apply depends on Kind.
type Stage struct {
	Kind string `json:"kind"`

	// values
	Values []interface{} `json:"values,omitempty"`
	// source, remote
	Collection string `json:"collection,omitempty"`
	// filter, calculation
	Expression *expr.Node `json:"expression,omitempty"`
	// filter on a register, distinct, return; the collected register of
	// a subquery body
	Register *aql.RegisterID `json:"register,omitempty"`
	// limit
	Offset    uint64  `json:"offset,omitempty"`
	Limit     *uint64 `json:"limit,omitempty"`
	FullCount bool    `json:"fullCount,omitempty"`
	// return
	Count bool `json:"count,omitempty"`
	// subquery
	Body []Stage `json:"body,omitempty"`
	// union
	Branches [][]Stage `json:"branches,omitempty"`
}

// ParsePlan decodes a YAML (or JSON) plan.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, errors.Wrap(err, "parsing plan")
	}
	if len(p.Stages) == 0 {
		return nil, errors.New("plan has no stages")
	}
	return &p, nil
}

// LoadPlan reads the plan file at path.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading plan %s", path)
	}
	return ParsePlan(data)
}

// Call is the client call described by the plan.
func (p *Plan) Call() executor.Call {
	call := executor.Call{Offset: p.Offset, FullCount: p.FullCount}
	if p.Limit != nil {
		call.HardLimit = executor.LimitOf(*p.Limit)
	}
	return call
}

// Pipeline is a built plan.
type Pipeline struct {
	// Top is the block the client pulls from.
	Top *executor.Block
	// Blocks lists every block, sources first.
	Blocks []*executor.Block
	// Width is the number of registers of the rows Top returns.
	Width int
}

// Stats sums the statistics of every block.
func (p *Pipeline) Stats() executor.Stats {
	var s executor.Stats
	for _, b := range p.Blocks {
		s.Add(b.Stats())
	}
	return s
}

// Builder turns plans into pipelines for one query.
type Builder struct {
	query   *executor.Query
	store   *storage.Store
	remotes *RemoteGroup
	blocks  []*executor.Block
}

// NewBuilder creates a builder for q. store may be nil if the plan reads
// no collections; remotes may be nil if it has no remote stage.
func NewBuilder(q *executor.Query, store *storage.Store, remotes *RemoteGroup) *Builder {
	return &Builder{query: q, store: store, remotes: remotes}
}

// Build creates the blocks of p.
func (b *Builder) Build(p *Plan) (*Pipeline, error) {
	b.blocks = nil
	top, width, err := b.buildStages(p.Stages, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Top: top, Blocks: b.blocks, Width: width}, nil
}

// buildStages builds stages on top of upstream, which is nil for a
// pipeline that starts with a source. depth is the subquery nesting.
func (b *Builder) buildStages(stages []Stage, upstream *executor.Block, width, depth int) (*executor.Block, int, error) {
	if len(stages) == 0 {
		return nil, 0, errors.New("empty stage list")
	}
	last := upstream
	for i, st := range stages {
		var err error
		last, width, err = b.buildStage(st, last, width, depth)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "stage %d (%s)", i, st.Kind)
		}
	}
	return last, width, nil
}

func isSource(kind string) bool {
	switch kind {
	case StageValues, StageSource, StageRemote, StageUnion:
		return true
	}
	return false
}

func (b *Builder) newBlock(name string, f executor.Fetcher, e executor.Executor, infos executor.RegisterInfos) (*executor.Block, error) {
	blk, err := executor.NewBlock(name, b.query, f, e, infos)
	if err != nil {
		return nil, err
	}
	b.blocks = append(b.blocks, blk)
	return blk, nil
}

func (b *Builder) buildStage(st Stage, upstream *executor.Block, width, depth int) (*executor.Block, int, error) {
	if isSource(st.Kind) {
		if depth > 0 {
			return nil, 0, errors.New("sources are not allowed inside a subquery")
		}
		if upstream != nil {
			return nil, 0, errors.New("a source must be the first stage of a pipeline")
		}
		return b.buildSource(st)
	}
	if upstream == nil {
		return nil, 0, errors.New("a pipeline must start with a source")
	}
	input := executor.NewSingleRowFetcher(upstream)
	same := executor.NewRegisterInfos(width, width)

	switch st.Kind {
	case StageFilter:
		var e *executor.FilterExecutor
		switch {
		case st.Expression != nil:
			cond, err := compile(*st.Expression, width)
			if err != nil {
				return nil, 0, err
			}
			e = executor.NewExpressionFilterExecutor(cond)
		case st.Register != nil:
			if err := checkRegister(*st.Register, width); err != nil {
				return nil, 0, err
			}
			e = executor.NewFilterExecutor(*st.Register)
		default:
			return nil, 0, errors.New("filter needs an expression or a register")
		}
		blk, err := b.newBlock("filter", input, e, same)
		return blk, width, err

	case StageCalculation:
		if st.Expression == nil {
			return nil, 0, errors.New("calculation needs an expression")
		}
		e, err := compile(*st.Expression, width)
		if err != nil {
			return nil, 0, err
		}
		out := aql.RegisterID(width)
		blk, err := b.newBlock("calculation", input, executor.NewCalculationExecutor(e, out),
			executor.NewRegisterInfos(width, width+1, out))
		return blk, width + 1, err

	case StageLimit:
		limit := uint64(executor.NoLimit)
		if st.Limit != nil {
			limit = *st.Limit
		}
		blk, err := b.newBlock("limit", input, executor.NewLimitExecutor(st.Offset, limit, st.FullCount), same)
		return blk, width, err

	case StageDistinct:
		reg := registerOr(st.Register, 0)
		if err := checkRegister(reg, width); err != nil {
			return nil, 0, err
		}
		blk, err := b.newBlock("distinct", input,
			executor.NewDistinctExecutor(reg, b.query.Manager().Monitor()), same)
		return blk, width, err

	case StageReturn:
		if depth > 0 {
			return nil, 0, errors.New("return is not allowed inside a subquery")
		}
		reg := registerOr(st.Register, 0)
		if err := checkRegister(reg, width); err != nil {
			return nil, 0, err
		}
		blk, err := b.newBlock("return", input, executor.NewReturnExecutor(reg, st.Count),
			executor.ReturnRegisterInfos(width))
		return blk, 1, err

	case StageSubquery:
		return b.buildSubquery(st, upstream, width, depth)
	}
	return nil, 0, errors.Newf("unknown stage kind %q", st.Kind)
}

func (b *Builder) buildSource(st Stage) (*executor.Block, int, error) {
	m := b.query.Manager()
	batch := b.query.BatchSize()
	var f executor.Fetcher

	switch st.Kind {
	case StageValues:
		docs := make([]aql.Value, len(st.Values))
		for i, v := range st.Values {
			docs[i] = expr.Normalize(v)
		}
		blocks, err := storage.BuildBlocks(m, docs, batch)
		if err != nil {
			return nil, 0, err
		}
		f = executor.NewConstFetcher(blocks...)

	case StageSource:
		if b.store == nil || st.Collection == "" {
			return nil, 0, errors.New("source needs a store and a collection")
		}
		f = executor.NewAllRowsFetcher(m, storage.CollectionBlocks(b.store, st.Collection, batch))

	case StageRemote:
		if b.store == nil || b.remotes == nil || st.Collection == "" {
			return nil, 0, errors.New("remote needs a store, a remote group and a collection")
		}
		f = executor.NewPollFetcher(b.remotes.Source(b.query, b.store, st.Collection, batch))

	case StageUnion:
		if len(st.Branches) == 0 {
			return nil, 0, errors.New("union needs branches")
		}
		deps := make([]executor.ExecutionBlock, len(st.Branches))
		width := -1
		for i, branch := range st.Branches {
			top, w, err := b.buildStages(branch, nil, 0, 0)
			if err != nil {
				return nil, 0, errors.Wrapf(err, "branch %d", i)
			}
			if width >= 0 && w != width {
				return nil, 0, errors.Newf("branch %d has %d registers, expected %d", i, w, width)
			}
			width = w
			deps[i] = top
		}
		blk, err := b.newBlock("union", executor.NewMultiDependencyFetcher(deps...),
			executor.NewIdExecutor(), executor.NewRegisterInfos(width, width))
		return blk, width, err
	}

	blk, err := b.newBlock(st.Kind, f, executor.NewScanExecutor(), executor.NewRegisterInfos(1, 1))
	return blk, 1, err
}

// buildSubquery wraps the body between SubqueryStart and SubqueryEnd. The
// body sees the outer registers and its result register is collected
// into a new register appended to the outer row.
func (b *Builder) buildSubquery(st Stage, upstream *executor.Block, width, depth int) (*executor.Block, int, error) {
	if len(st.Body) == 0 {
		return nil, 0, errors.New("subquery needs a body")
	}
	start, err := b.newBlock("subquery-start", executor.NewSingleRowFetcher(upstream),
		executor.NewSubqueryStartExecutor(), executor.NewRegisterInfos(width, width))
	if err != nil {
		return nil, 0, err
	}
	body, bodyWidth, err := b.buildStages(st.Body, start, width, depth+1)
	if err != nil {
		return nil, 0, errors.Wrap(err, "subquery body")
	}
	result := registerOr(st.Register, aql.RegisterID(bodyWidth-1))
	if err := checkRegister(result, bodyWidth); err != nil {
		return nil, 0, err
	}
	keep := make(aql.RegisterSet, width)
	for i := range keep {
		keep[i] = aql.RegisterID(i)
	}
	out := aql.RegisterID(width)
	infos := executor.RegisterInfos{
		NumInputRegisters:  bodyWidth,
		NumOutputRegisters: width + 1,
		OutputRegisters:    aql.RegisterSet{out},
		RegistersToKeep:    keep,
	}
	end, err := b.newBlock("subquery-end", executor.NewSingleRowFetcher(body),
		executor.NewSubqueryEndExecutor(result, out, b.query.Manager().Monitor()), infos)
	return end, width + 1, err
}

func registerOr(reg *aql.RegisterID, def aql.RegisterID) aql.RegisterID {
	if reg == nil {
		return def
	}
	return *reg
}

func checkRegister(reg aql.RegisterID, width int) error {
	if int(reg) >= width {
		return errors.Newf("register %d out of range, rows have %d registers", reg, width)
	}
	return nil
}

// compile compiles n after checking its register references against
// the row width.
func compile(n expr.Node, width int) (expr.Expression, error) {
	if err := checkNodeRegisters(n, width); err != nil {
		return nil, err
	}
	return expr.Compile(n)
}

func checkNodeRegisters(n expr.Node, width int) error {
	if n.Register != nil {
		if err := checkRegister(*n.Register, width); err != nil {
			return err
		}
	}
	for _, a := range n.Args {
		if err := checkNodeRegisters(a, width); err != nil {
			return err
		}
	}
	return nil
}

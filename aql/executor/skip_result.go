package executor

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// SkipResult counts skipped rows per nesting level. Level 0 is the
// outermost query, the last level is the level of the reporting block.
type SkipResult struct {
	skipped []uint64
}

// NewSkipResult creates a result for depth levels.
func NewSkipResult(depth int) SkipResult {
	if depth < 1 {
		depth = 1
	}
	return SkipResult{skipped: make([]uint64, depth)}
}

// Depth returns the number of levels.
func (r SkipResult) Depth() int { return len(r.skipped) }

// GetSkipCount returns the skips on the reporting block's level.
func (r SkipResult) GetSkipCount() uint64 {
	if len(r.skipped) == 0 {
		return 0
	}
	return r.skipped[len(r.skipped)-1]
}

// GetSkipOnLevel returns the skips on level (0 = outermost).
func (r SkipResult) GetSkipOnLevel(level int) uint64 {
	if level < 0 || level >= len(r.skipped) {
		panic(errors.AssertionFailedf("skip level %d out of range [0,%d)", level, len(r.skipped)))
	}
	return r.skipped[level]
}

// DidSkip adds n skips on the innermost level.
func (r *SkipResult) DidSkip(n uint64) {
	r.skipped[len(r.skipped)-1] += n
}

// DidSkipSubquery adds n skips on an outer level.
func (r *SkipResult) DidSkipSubquery(n uint64, level int) {
	if level < 0 || level >= len(r.skipped) {
		panic(errors.AssertionFailedf("skip level %d out of range [0,%d)", level, len(r.skipped)))
	}
	r.skipped[level] += n
}

// IncrementSubquery adds an innermost level.
func (r *SkipResult) IncrementSubquery() {
	r.skipped = append(r.skipped, 0)
}

// DecrementSubquery drops the innermost level.
func (r *SkipResult) DecrementSubquery() {
	if len(r.skipped) <= 1 {
		panic(errors.AssertionFailedf("decrement of a top-level skip result"))
	}
	r.skipped = r.skipped[:len(r.skipped)-1]
}

// Nothing reports whether nothing was skipped on any level.
func (r SkipResult) Nothing() bool {
	for _, n := range r.skipped {
		if n != 0 {
			return false
		}
	}
	return true
}

// Reset zeroes every level.
func (r *SkipResult) Reset() {
	for i := range r.skipped {
		r.skipped[i] = 0
	}
}

// Merge adds other level by level. Both must have the same depth.
func (r *SkipResult) Merge(other SkipResult) {
	if len(other.skipped) != len(r.skipped) {
		panic(errors.AssertionFailedf("merge of skip results with depth %d and %d", len(r.skipped), len(other.skipped)))
	}
	for i, n := range other.skipped {
		r.skipped[i] += n
	}
}

// Clone returns a copy.
func (r SkipResult) Clone() SkipResult {
	return SkipResult{skipped: append([]uint64(nil), r.skipped...)}
}

func (r SkipResult) String() string {
	parts := make([]string, len(r.skipped))
	for i, n := range r.skipped {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

package executor

import (
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// Limit is an optional row limit. The zero value means "no limit".
type Limit struct {
	n   uint64
	set bool
}

// LimitOf returns a limit of n rows.
func LimitOf(n uint64) Limit {
	return Limit{n: n, set: true}
}

// IsSet reports whether the limit is finite.
func (l Limit) IsSet() bool { return l.set }

// Value returns the limit, or math.MaxUint64 when unset.
func (l Limit) Value() uint64 {
	if !l.set {
		return math.MaxUint64
	}
	return l.n
}

func (l Limit) String() string {
	if !l.set {
		return "inf"
	}
	return fmt.Sprintf("%d", l.n)
}

func (l *Limit) decrement(n uint64) {
	if !l.set {
		return
	}
	if n > l.n {
		panic(errors.AssertionFailedf("produced %d rows beyond limit %d", n, l.n))
	}
	l.n -= n
}

// Call describes how many rows a consumer wants from its producer. Call{}
// asks for everything.
//
// A soft limit returns control to the caller once reached; a hard limit
// means no further rows will ever be requested, so the producer may
// discard the remainder (or count it when FullCount is set).
type Call struct {
	Offset    uint64
	SoftLimit Limit
	HardLimit Limit
	FullCount bool

	skipped uint64
}

// FastForwardCall asks a producer to count what is left without producing.
func FastForwardCall() Call {
	return Call{HardLimit: LimitOf(0), FullCount: true}
}

// DiscardCall asks a producer to drop whatever is left.
func DiscardCall() Call {
	return Call{HardLimit: LimitOf(0)}
}

// GetOffset returns the number of rows still to skip.
func (c Call) GetOffset() uint64 { return c.Offset }

// GetLimit returns the smaller of both limits, math.MaxUint64 if none.
func (c Call) GetLimit() uint64 {
	soft, hard := c.SoftLimit.Value(), c.HardLimit.Value()
	if soft < hard {
		return soft
	}
	return hard
}

// HasLimit reports whether any limit is set.
func (c Call) HasLimit() bool { return c.SoftLimit.set || c.HardLimit.set }

// HasHardLimit reports whether a hard limit is set.
func (c Call) HasHardLimit() bool { return c.HardLimit.set }

// HasSoftLimit reports whether a soft limit is set.
func (c Call) HasSoftLimit() bool { return c.SoftLimit.set }

// NeedsFullCount reports whether rows past the limit must be counted.
func (c Call) NeedsFullCount() bool { return c.FullCount }

// ShouldSkip reports whether rows handed to this call now must be skipped
// rather than produced.
func (c Call) ShouldSkip() bool {
	return c.Offset > 0 || (c.GetLimit() == 0 && c.FullCount)
}

// NeedSkipMore reports whether any skipping is left, including a pending
// full count.
func (c Call) NeedSkipMore() bool {
	return c.Offset > 0 || c.FullCount
}

// NeedsMore reports whether neither limit is exhausted.
func (c Call) NeedsMore() bool {
	return c.GetLimit() > 0
}

// softLimitReached reports whether the call has nothing left to skip and
// its soft limit is exhausted.
func (c Call) softLimitReached() bool {
	return c.Offset == 0 && c.SoftLimit.set && c.SoftLimit.n == 0
}

// DidSkip accounts n skipped rows. The offset is consumed first; rows
// beyond it are only counted, which requires a full count.
func (c *Call) DidSkip(n uint64) {
	if n <= c.Offset {
		c.Offset -= n
	} else {
		if !c.FullCount {
			panic(errors.AssertionFailedf("skipped %d rows with offset %d and no full count pending in %s", n, c.Offset, c))
		}
		c.Offset = 0
	}
	c.skipped += n
}

// DidProduce accounts n produced rows against both limits.
func (c *Call) DidProduce(n uint64) {
	c.SoftLimit.decrement(n)
	c.HardLimit.decrement(n)
}

// GetSkipCount returns the rows skipped since the last reset.
func (c Call) GetSkipCount() uint64 { return c.skipped }

// ResetSkipCount clears the skip counter.
func (c *Call) ResetSkipCount() { c.skipped = 0 }

// Validate panics if the call is malformed.
func (c Call) Validate() {
	if c.SoftLimit.set && c.HardLimit.set {
		panic(errors.AssertionFailedf("call with both soft and hard limit: %s", c))
	}
	if c.SoftLimit.set && c.FullCount {
		panic(errors.AssertionFailedf("call with soft limit and full count: %s", c))
	}
	if c.Offset == 0 && c.SoftLimit.set && c.SoftLimit.n == 0 {
		panic(errors.AssertionFailedf("call asking for nothing: %s", c))
	}
}

func (c Call) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	fmt.Fprintf(&sb, "skip: %d", c.Offset)
	if c.SoftLimit.set {
		fmt.Fprintf(&sb, ", softLimit: %d", c.SoftLimit.n)
	}
	if c.HardLimit.set {
		fmt.Fprintf(&sb, ", hardLimit: %d", c.HardLimit.n)
	}
	if c.FullCount {
		sb.WriteString(", fullCount: true")
	}
	if c.skipped > 0 {
		fmt.Fprintf(&sb, ", skipped: %d", c.skipped)
	}
	sb.WriteString("}")
	return sb.String()
}

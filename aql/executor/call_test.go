package executor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallLimits(t *testing.T) {
	tests := []struct {
		name      string
		call      Call
		limit     uint64
		skip      bool
		needsMore bool
	}{
		{"unlimited", Call{}, math.MaxUint64, false, true},
		{"soft", Call{SoftLimit: LimitOf(3)}, 3, false, true},
		{"hard", Call{HardLimit: LimitOf(2)}, 2, false, true},
		{"offset", Call{Offset: 4}, math.MaxUint64, true, true},
		{"discard", DiscardCall(), 0, false, false},
		{"fast forward", FastForwardCall(), 0, true, false},
		{"hard with full count", Call{HardLimit: LimitOf(1), FullCount: true}, 1, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.limit, tt.call.GetLimit())
			assert.Equal(t, tt.skip, tt.call.ShouldSkip())
			assert.Equal(t, tt.needsMore, tt.call.NeedsMore())
		})
	}
}

func TestCallAccounting(t *testing.T) {
	c := Call{Offset: 3, HardLimit: LimitOf(2), FullCount: true}

	c.DidSkip(2)
	assert.Equal(t, uint64(1), c.GetOffset())
	assert.Equal(t, uint64(2), c.GetSkipCount())

	c.DidSkip(1)
	c.DidProduce(2)
	assert.Equal(t, uint64(0), c.GetOffset())
	assert.Equal(t, uint64(0), c.GetLimit())
	assert.True(t, c.ShouldSkip(), "a reached limit with full count keeps counting")

	// Rows past the limit are counted without an offset.
	c.DidSkip(5)
	assert.Equal(t, uint64(8), c.GetSkipCount())
	c.ResetSkipCount()
	assert.Equal(t, uint64(0), c.GetSkipCount())
}

func TestCallContractViolations(t *testing.T) {
	assert.Panics(t, func() {
		c := Call{Offset: 1}
		c.DidSkip(2)
	}, "skipping past the offset needs a full count")
	assert.Panics(t, func() {
		c := Call{SoftLimit: LimitOf(1)}
		c.DidProduce(2)
	})
	assert.Panics(t, func() { Call{SoftLimit: LimitOf(1), HardLimit: LimitOf(1)}.Validate() })
	assert.Panics(t, func() { Call{SoftLimit: LimitOf(1), FullCount: true}.Validate() })
	assert.Panics(t, func() { Call{SoftLimit: LimitOf(0)}.Validate() })
	assert.NotPanics(t, func() { Call{Offset: 3, SoftLimit: LimitOf(0)}.Validate() })
	assert.NotPanics(t, func() { FastForwardCall().Validate() })
}

func TestCallString(t *testing.T) {
	assert.Equal(t, "{skip: 0}", Call{}.String())
	assert.Equal(t, "{skip: 2, hardLimit: 5, fullCount: true}",
		Call{Offset: 2, HardLimit: LimitOf(5), FullCount: true}.String())
	assert.Equal(t, "inf", Limit{}.String())
}

func TestCallList(t *testing.T) {
	l := NewCallList(Call{Offset: 1})
	assert.True(t, l.HasMoreCalls())
	assert.False(t, l.HasDefaultCalls())
	assert.Equal(t, uint64(1), l.PopNextCall().Offset)
	assert.False(t, l.HasMoreCalls())
	assert.Panics(t, func() { l.PopNextCall() })

	d := NewCallListWithDefault(Call{Offset: 1}, Call{Offset: 7})
	d.ModifyNextCall().DidSkip(1)
	assert.Equal(t, uint64(0), d.PopNextCall().Offset)
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint64(7), d.PeekNextCall().Offset)
		assert.Equal(t, uint64(7), d.PopNextCall().Offset)
	}

	// Modifying the default materialises a specific call.
	d.ModifyNextCall().DidSkip(3)
	assert.Equal(t, uint64(4), d.PopNextCall().Offset)
	assert.Equal(t, uint64(7), d.PopNextCall().Offset)
}

func TestCallStack(t *testing.T) {
	s := NewCallStackFromCall(Call{Offset: 1})
	s.PushCallList(NewCallListWithDefault(Call{HardLimit: LimitOf(2)}, Call{}))
	assert.Equal(t, 2, s.Depth())
	assert.True(t, s.HasAllValidCalls())

	clone := s.Clone()
	s.ModifyCallAtLevel(0).DidSkip(1)
	s.ModifyTopCall().DidProduce(2)
	assert.Equal(t, uint64(1), clone.ModifyCallAtLevel(0).Offset, "clones are deep")
	assert.Equal(t, uint64(2), clone.Peek().GetLimit())
	assert.Equal(t, uint64(0), s.Peek().GetLimit())

	s.discardCallAt(1)
	assert.Equal(t, Call{}, s.Peek(), "the default follows a discarded run")
	s.discardCallAt(0)
	assert.False(t, s.HasAllValidCalls())

	top := s.PopCallList()
	assert.True(t, top.HasDefaultCalls())
	s.PopCallList()
	assert.Panics(t, func() { s.PopCallList() })
	assert.Panics(t, func() { s.Peek() })
}

func TestCallStackSoftLimitReached(t *testing.T) {
	s := NewCallStackFromCall(Call{Offset: 1, SoftLimit: LimitOf(1)})
	s.PushCallList(NewCallListWithDefault(Call{}, Call{}))
	assert.True(t, s.HasAllValidCalls())

	s.ModifyCallAtLevel(0).DidSkip(1)
	assert.True(t, s.HasAllValidCalls(), "the soft limit is still open")
	s.ModifyCallAtLevel(0).DidProduce(1)
	assert.False(t, s.HasAllValidCalls(), "no run may start once the client is served")
	assert.True(t, s.Peek().NeedsMore(), "the body call itself still wants rows")

	hard := NewCallStackFromCall(Call{HardLimit: LimitOf(1)})
	hard.ModifyTopCall().DidProduce(1)
	assert.True(t, hard.HasAllValidCalls(), "a used up hard limit still drains the run")
}

func TestSkipResult(t *testing.T) {
	r := NewSkipResult(2)
	assert.True(t, r.Nothing())
	r.DidSkip(3)
	r.DidSkipSubquery(2, 0)
	assert.Equal(t, uint64(3), r.GetSkipCount())
	assert.Equal(t, uint64(2), r.GetSkipOnLevel(0))
	assert.Equal(t, "[2,3]", r.String())

	other := NewSkipResult(2)
	other.DidSkip(1)
	r.Merge(other)
	assert.Equal(t, uint64(4), r.GetSkipCount())

	c := r.Clone()
	r.IncrementSubquery()
	assert.Equal(t, 3, r.Depth())
	assert.Equal(t, uint64(0), r.GetSkipCount())
	r.DecrementSubquery()
	assert.Equal(t, uint64(4), r.GetSkipCount())

	r.Reset()
	assert.True(t, r.Nothing())
	assert.Equal(t, uint64(4), c.GetSkipCount(), "clones are independent")

	assert.Panics(t, func() { r.Merge(NewSkipResult(1)) })
	assert.Panics(t, func() {
		top := NewSkipResult(1)
		top.DecrementSubquery()
	})
	assert.Panics(t, func() { r.GetSkipOnLevel(5) })
}

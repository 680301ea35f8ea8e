package executor

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// CallList holds the calls for one nesting level: calls for the next
// subquery runs, followed by an optional default used for every run after
// those.
type CallList struct {
	specific    []Call
	defaultCall *Call
}

// NewCallList creates a list with one call and no default.
func NewCallList(call Call) CallList {
	return CallList{specific: []Call{call}}
}

// NewCallListWithDefault creates a list whose later runs use def.
func NewCallListWithDefault(call Call, def Call) CallList {
	return CallList{specific: []Call{call}, defaultCall: &def}
}

// HasMoreCalls reports whether another call can be popped.
func (l *CallList) HasMoreCalls() bool {
	return len(l.specific) > 0 || l.defaultCall != nil
}

// HasDefaultCalls reports whether the list repeats a default call.
func (l *CallList) HasDefaultCalls() bool {
	return l.defaultCall != nil
}

// PopNextCall removes and returns the call for the next run.
func (l *CallList) PopNextCall() Call {
	if len(l.specific) > 0 {
		c := l.specific[0]
		l.specific = l.specific[1:]
		return c
	}
	if l.defaultCall == nil {
		panic(errors.AssertionFailedf("pop from an exhausted call list"))
	}
	return *l.defaultCall
}

// PeekNextCall returns the call for the next run without removing it.
func (l *CallList) PeekNextCall() Call {
	if len(l.specific) > 0 {
		return l.specific[0]
	}
	if l.defaultCall == nil {
		panic(errors.AssertionFailedf("peek into an exhausted call list"))
	}
	return *l.defaultCall
}

// ModifyNextCall returns the call for the next run for in-place updates.
func (l *CallList) ModifyNextCall() *Call {
	if len(l.specific) == 0 {
		if l.defaultCall == nil {
			panic(errors.AssertionFailedf("modify of an exhausted call list"))
		}
		l.specific = append(l.specific, *l.defaultCall)
	}
	return &l.specific[0]
}

func (l CallList) clone() CallList {
	c := CallList{specific: append([]Call(nil), l.specific...)}
	if l.defaultCall != nil {
		d := *l.defaultCall
		c.defaultCall = &d
	}
	return c
}

func (l CallList) String() string {
	parts := make([]string, 0, len(l.specific)+1)
	for _, c := range l.specific {
		parts = append(parts, c.String())
	}
	if l.defaultCall != nil {
		parts = append(parts, "default "+l.defaultCall.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// CallStack holds one CallList per nesting level. Level 0 is the
// outermost query; the top of the stack belongs to the block being
// called.
type CallStack struct {
	levels []CallList
}

// NewCallStack creates a stack for a top-level call list.
func NewCallStack(list CallList) *CallStack {
	return &CallStack{levels: []CallList{list}}
}

// NewCallStackFromCall creates a stack with a single call.
func NewCallStackFromCall(call Call) *CallStack {
	return NewCallStack(NewCallList(call))
}

// Depth returns the number of levels.
func (s *CallStack) Depth() int {
	return len(s.levels)
}

// PushCallList adds a new innermost level.
func (s *CallStack) PushCallList(list CallList) {
	s.levels = append(s.levels, list)
}

// PushCall adds a new innermost level holding one call.
func (s *CallStack) PushCall(call Call) {
	s.PushCallList(NewCallList(call))
}

// PopCallList removes the innermost level. Popping an empty stack is a
// contract violation.
func (s *CallStack) PopCallList() CallList {
	if len(s.levels) == 0 {
		panic(errors.AssertionFailedf("pop from an empty call stack"))
	}
	top := s.levels[len(s.levels)-1]
	s.levels = s.levels[:len(s.levels)-1]
	return top
}

// Peek returns the next call of the innermost level.
func (s *CallStack) Peek() Call {
	if len(s.levels) == 0 {
		panic(errors.AssertionFailedf("peek into an empty call stack"))
	}
	return s.levels[len(s.levels)-1].PeekNextCall()
}

// ModifyTopCall returns the innermost call for in-place updates.
func (s *CallStack) ModifyTopCall() *Call {
	return s.ModifyCallAtLevel(len(s.levels) - 1)
}

// ModifyCallAtLevel returns the call of level (0 = outermost) for in-place
// updates.
func (s *CallStack) ModifyCallAtLevel(level int) *Call {
	if level < 0 || level >= len(s.levels) {
		panic(errors.AssertionFailedf("call stack level %d out of range [0,%d)", level, len(s.levels)))
	}
	return s.levels[level].ModifyNextCall()
}

// HasAllValidCalls reports whether every level can supply a call that
// still wants rows. A call whose soft limit is used up returns control to
// its client, so no level below it may start another run.
func (s *CallStack) HasAllValidCalls() bool {
	for i := range s.levels {
		if !s.levels[i].HasMoreCalls() {
			return false
		}
		if c := s.levels[i].PeekNextCall(); c.softLimitReached() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (s *CallStack) Clone() *CallStack {
	c := &CallStack{levels: make([]CallList, len(s.levels))}
	for i, l := range s.levels {
		c.levels[i] = l.clone()
	}
	return c
}

func (s *CallStack) String() string {
	parts := make([]string, len(s.levels))
	for i, l := range s.levels {
		parts[i] = l.String()
	}
	return strings.Join(parts, " > ")
}

// discardCallAt drops the next call of level, if any. Used when a run on
// that level has ended.
func (s *CallStack) discardCallAt(level int) {
	if level < 0 || level >= len(s.levels) {
		panic(errors.AssertionFailedf("call stack level %d out of range [0,%d)", level, len(s.levels)))
	}
	if s.levels[level].HasMoreCalls() {
		s.levels[level].PopNextCall()
	}
}

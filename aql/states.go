package aql

// ExecutionState is the externally visible state of a pull on an
// execution block.
type ExecutionState int

const (
	// Waiting means the upstream is not ready. The caller must re-invoke
	// with the same request once notified.
	Waiting ExecutionState = iota
	// HasMore means a result is ready and more may follow.
	HasMore
	// Done is terminal for the block's current cursor.
	Done
)

func (s ExecutionState) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case HasMore:
		return "HASMORE"
	case Done:
		return "DONE"
	}
	return "UNKNOWN"
}

// ExecutorState is the local state reported by an executor or an input
// range. An executor never waits.
type ExecutorState int

const (
	ExecutorHasMore ExecutorState = iota
	ExecutorDone
)

func (s ExecutorState) String() string {
	if s == ExecutorDone {
		return "DONE"
	}
	return "HASMORE"
}

// ToExecutionState lifts a local executor state.
func (s ExecutorState) ToExecutionState() ExecutionState {
	if s == ExecutorDone {
		return Done
	}
	return HasMore
}

package aql

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrQueryKilled is returned by any block that observes a killed or
	// cancelled query.
	ErrQueryKilled = errors.New("query killed")

	// ErrResourceLimitExceeded is returned when a memory reservation would
	// breach the query's limit.
	ErrResourceLimitExceeded = errors.New("resource limit exceeded")
)

// NewQueryKilledError marks cause (typically a context error) as a kill.
func NewQueryKilledError(cause error) error {
	if cause == nil {
		return ErrQueryKilled
	}
	return errors.Mark(errors.Wrap(cause, "query killed"), ErrQueryKilled)
}

// NewResourceLimitError reports a failed reservation of requested bytes.
func NewResourceLimitError(requested, current, limit uint64) error {
	return errors.Wrapf(ErrResourceLimitExceeded,
		"requested %d bytes with %d of %d in use", requested, current, limit)
}

// IsQueryKilled reports whether err is (or wraps) a kill.
func IsQueryKilled(err error) bool {
	return errors.Is(err, ErrQueryKilled)
}

// IsResourceLimitExceeded reports whether err is (or wraps) a memory
// limit breach.
func IsResourceLimitExceeded(err error) bool {
	return errors.Is(err, ErrResourceLimitExceeded)
}

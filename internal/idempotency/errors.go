package idempotency

import "errors"

var (
	// ErrKeyConflict means the key was already used with a different payload.
	ErrKeyConflict = errors.New("idempotency: key reused with different payload")
	// ErrIncompleteRecord means a record exists for the key without a stored
	// response. Placeholder insert and completion share one transaction, so
	// seeing this points at a record written outside the coordinator.
	ErrIncompleteRecord = errors.New("idempotency: record exists but no stored response")
	// ErrSimulatedPostCommitFailure is returned after a committed create when
	// the caller asked for the response to be dropped.
	ErrSimulatedPostCommitFailure = errors.New("idempotency: simulated failure after commit (response lost)")
	// ErrAlreadyCompleted is returned when completing a record that already
	// holds a response.
	ErrAlreadyCompleted = errors.New("idempotency: record already completed")
)

// Messages used in the JSON error bodies.
const (
	MessageConflict   = "Idempotency-Key reused with different payload"
	MessageIncomplete = "Idempotency record exists but no stored response"
)

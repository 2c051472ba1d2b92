package counter

import (
	"errors"
	"fmt"
)

var (
	// ErrCounterNotFound is returned when a counter does not exist and the
	// operation does not create one.
	ErrCounterNotFound = errors.New("counter not found")

	// ErrInvalidAmount is returned for non-positive decrement/increment amounts
	// or a zero adjustment.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidKey is returned for a malformed user, kind or period key.
	ErrInvalidKey = errors.New("invalid counter key")

	// ErrNoAllocation is returned when no allocation is configured for a kind,
	// so a counter cannot be created lazily.
	ErrNoAllocation = errors.New("no allocation configured")

	// ErrAlreadyRolledOver is returned when a period was already carried forward.
	ErrAlreadyRolledOver = errors.New("period already rolled over")

	// ErrDuplicateIdempotencyKey is returned when a mutation with the same
	// idempotency key was already applied. Callers treat it as "done".
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrAdjustmentNotSupported is returned when adjusting an annual counter.
	ErrAdjustmentNotSupported = errors.New("adjustment only supported on periodic counters")
)

// KeyError gives context about a counter lookup or mutation failure.
type KeyError struct {
	Key Key
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("counter %s: %v", e.Key, e.Err)
}

func (e *KeyError) Unwrap() error { return e.Err }

// IsClientError returns true if the error is caused by invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrAdjustmentNotSupported)
}

// IsConflict returns true if the error is a business-rule conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyRolledOver) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

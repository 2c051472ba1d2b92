package counter

import "context"

// Reader is the read side of counter persistence.
type Reader interface {
	// GetCounter returns ErrCounterNotFound when no counter exists for key.
	GetCounter(ctx context.Context, key Key) (*Counter, error)

	// ListCounters returns every counter of a user, ordered by kind then period.
	ListCounters(ctx context.Context, userID string) ([]Counter, error)

	// ListCountersByPeriod returns every counter of one kind and period.
	ListCountersByPeriod(ctx context.Context, kind Kind, periodKey string) ([]Counter, error)

	// ListMutations returns a counter's audit trail, oldest first.
	ListMutations(ctx context.Context, counterID string) ([]Mutation, error)

	// MutationExists checks whether an idempotency key was already used.
	MutationExists(ctx context.Context, idempotencyKey string) (bool, error)
}

// Store persists counters and their mutations.
// Mutations are append-only: there is no update or delete.
type Store interface {
	Reader

	// SaveCounter inserts or updates a counter by ID.
	SaveCounter(ctx context.Context, c Counter) error

	// AppendMutation appends an audit entry. A reused idempotency key
	// returns ErrDuplicateIdempotencyKey.
	AppendMutation(ctx context.Context, m Mutation) error

	// WithCounterTx runs fn atomically. Inside an already open transaction
	// it runs fn on the same transaction.
	WithCounterTx(ctx context.Context, fn func(Store) error) error
}

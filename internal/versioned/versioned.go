// Package versioned implements optimistic concurrency for aggregates that
// carry a monotonically increasing version.
//
// Apply never retries. A stale expected version yields *domain.ConflictError
// carrying the persisted snapshot; retry policy belongs to the caller.
package versioned

import (
	"context"
	"errors"

	"food-ordering/internal/domain"
)

// Entity is an aggregate that can be copied and versioned.
type Entity[T any] interface {
	Clone() T
	EntityVersion() int64
	SetEntityVersion(v int64)
}

// Store persists one aggregate kind keyed by string.
//
// CompareAndSwap must write next only if the stored version equals expected,
// as one atomic step, and return an error matching domain.ErrConflict
// otherwise. expected == 0 means "not stored yet".
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	CompareAndSwap(ctx context.Context, key string, expected int64, next T) error
}

// Mutation changes a private copy of the aggregate. Returning an error aborts
// without touching storage.
type Mutation[T any] func(T) error

// Apply loads key, checks expected against the persisted version, applies
// mutate to a copy and persists it with version expected+1.
func Apply[T Entity[T]](ctx context.Context, store Store[T], key string, expected int64, mutate Mutation[T]) (T, int64, error) {
	var zero T

	current, err := store.Get(ctx, key)
	if err != nil {
		return zero, 0, err
	}
	if v := current.EntityVersion(); v != expected {
		return zero, v, &domain.ConflictError{Key: key, Expected: expected, Current: v, Snapshot: current}
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return zero, expected, err
	}
	next.SetEntityVersion(expected + 1)

	if err := store.CompareAndSwap(ctx, key, expected, next); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			cerr := reloadConflict(ctx, store, key, expected)
			return zero, cerr.Current, cerr
		}
		return zero, expected, err
	}
	return next, expected + 1, nil
}

// reloadConflict builds the conflict error after a lost compare-and-swap race,
// reporting the version that won.
func reloadConflict[T Entity[T]](ctx context.Context, store Store[T], key string, expected int64) *domain.ConflictError {
	latest, err := store.Get(ctx, key)
	if err != nil {
		return &domain.ConflictError{Key: key, Expected: expected, Current: expected + 1}
	}
	return &domain.ConflictError{Key: key, Expected: expected, Current: latest.EntityVersion(), Snapshot: latest}
}

package versioned

import (
	"context"
	"sync"

	"food-ordering/internal/domain"
)

// MemoryStore is an in-process Store. Each key has its own mutex, so
// mutations on different aggregates never wait on each other.
type MemoryStore[T Entity[T]] struct {
	entries sync.Map // key -> *memoryEntry[T]
}

type memoryEntry[T any] struct {
	mu      sync.Mutex
	present bool
	value   T
}

func NewMemoryStore[T Entity[T]]() *MemoryStore[T] {
	return &MemoryStore[T]{}
}

func (s *MemoryStore[T]) entry(key string) *memoryEntry[T] {
	e, _ := s.entries.LoadOrStore(key, &memoryEntry[T]{})
	return e.(*memoryEntry[T])
}

// Get returns a private copy of the aggregate or domain.ErrNotFound.
func (s *MemoryStore[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	v, ok := s.entries.Load(key)
	if !ok {
		return zero, domain.ErrNotFound
	}
	e := v.(*memoryEntry[T])
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.present {
		return zero, domain.ErrNotFound
	}
	return e.value.Clone(), nil
}

func (s *MemoryStore[T]) CompareAndSwap(ctx context.Context, key string, expected int64, next T) error {
	return s.SwapWith(ctx, key, expected, next, nil)
}

// SwapWith is CompareAndSwap with a commit hook that runs inside the
// aggregate's critical section after the version check. If commit fails the
// stored value is left untouched.
func (s *MemoryStore[T]) SwapWith(ctx context.Context, key string, expected int64, next T, commit func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	var current int64
	if e.present {
		current = e.value.EntityVersion()
	}
	if current != expected {
		return &domain.ConflictError{Key: key, Expected: expected, Current: current}
	}
	if commit != nil {
		if err := commit(); err != nil {
			return err
		}
	}
	e.value = next.Clone()
	e.present = true
	return nil
}

// Insert stores a brand new aggregate and fails with a conflict if key is taken.
func (s *MemoryStore[T]) Insert(ctx context.Context, key string, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.present {
		return &domain.ConflictError{Key: key, Expected: value.EntityVersion(), Current: e.value.EntityVersion()}
	}
	e.value = value.Clone()
	e.present = true
	return nil
}

// Range calls fn with a copy of every stored aggregate until fn returns false.
func (s *MemoryStore[T]) Range(fn func(T) bool) {
	s.entries.Range(func(_, v any) bool {
		e := v.(*memoryEntry[T])
		e.mu.Lock()
		present, value := e.present, e.value
		if present {
			value = value.Clone()
		}
		e.mu.Unlock()
		if !present {
			return true
		}
		return fn(value)
	})
}

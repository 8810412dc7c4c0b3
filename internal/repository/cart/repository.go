package cart

import (
	"context"

	"food-ordering/internal/domain"
)

// Repository stores carts keyed by session. Get returns domain.ErrNotFound for
// a session that never mutated its cart. CompareAndSwap writes next only when
// the stored version equals expected (0 = not stored yet).
type Repository interface {
	Get(ctx context.Context, sessionKey string) (*domain.Cart, error)
	CompareAndSwap(ctx context.Context, sessionKey string, expected int64, next *domain.Cart) error
}

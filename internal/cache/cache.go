// Package cache holds read-through copies of carts. A cached cart is only a
// display copy: version checks always go to the repository.
package cache

import (
	"context"
	"errors"

	"food-ordering/internal/domain"
)

// CartCache implementations must never let Set replace a cart with an older
// version of it.
type CartCache interface {
	Get(ctx context.Context, sessionKey string) (*domain.Cart, error)
	Set(ctx context.Context, sessionKey string, cart *domain.Cart) error
	Delete(ctx context.Context, sessionKey string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop never stores anything. It is used when no Redis address is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }

func (Noop) Set(context.Context, string, *domain.Cart) error { return nil }

func (Noop) Delete(context.Context, string) error { return nil }

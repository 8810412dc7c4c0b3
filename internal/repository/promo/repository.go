package promo

import (
	"context"

	"food-ordering/internal/domain"
)

// Repository is the promo code registry. Codes are stored normalised.
//
// Redeem consumes one slot with an atomic compare-and-increment and returns
// domain.ErrPromoExhausted when none is left. Release gives a slot back and is
// only used to compensate a checkout that failed after Redeem.
type Repository interface {
	Lookup(ctx context.Context, code string) (*domain.PromoCode, error)
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
	Upsert(ctx context.Context, promo domain.PromoCode) error
}

package seed

import (
	"context"
	"fmt"
	"time"

	"food-ordering/internal/domain"
	"github.com/shopspring/decimal"
)

type PromoWriter interface {
	Upsert(ctx context.Context, promo domain.PromoCode) error
}

// Promos returns the demo promo codes, valid for a year from now.
func Promos(now time.Time) []domain.PromoCode {
	return []domain.PromoCode{
		{
			Code:           "SAVE10",
			Rule:           domain.DiscountRule{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10)},
			MinOrderAmount: decimal.Zero,
			MaxRedemptions: 1000,
		},
		{
			Code:           "FIVEOFF",
			Rule:           domain.DiscountRule{Kind: domain.DiscountFixed, Value: decimal.NewFromInt(5)},
			MinOrderAmount: decimal.NewFromInt(20),
			ValidFrom:      now,
			ValidTo:        now.AddDate(1, 0, 0),
			MaxRedemptions: 500,
		},
		{
			Code:           "LASTSLICE",
			Rule:           domain.DiscountRule{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(50)},
			MinOrderAmount: decimal.NewFromInt(30),
			ValidFrom:      now,
			ValidTo:        now.AddDate(1, 0, 0),
			MaxRedemptions: 1,
		},
	}
}

// Apply inserts the demo promo codes. It is idempotent: the registry upsert
// never lowers a redemption counter.
func Apply(ctx context.Context, repo PromoWriter, now time.Time) error {
	for _, p := range Promos(now) {
		if err := repo.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert promo %s: %w", p.Code, err)
		}
	}
	return nil
}

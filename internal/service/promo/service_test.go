package promo

import (
	"context"
	"errors"
	"testing"
	"time"

	"food-ordering/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRegistry struct {
	promos       map[string]domain.PromoCode
	lookupErr    error
	redeemCalls  int
	releaseCalls int
}

func (s *stubRegistry) Lookup(_ context.Context, code string) (*domain.PromoCode, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	p, ok := s.promos[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *stubRegistry) Redeem(_ context.Context, code string) error {
	s.redeemCalls++
	if _, ok := s.promos[code]; !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (s *stubRegistry) Release(_ context.Context, _ string) error {
	s.releaseCalls++
	return nil
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func save10() domain.PromoCode {
	return domain.PromoCode{
		Code:           "SAVE10",
		Rule:           domain.DiscountRule{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10)},
		MinOrderAmount: decimal.NewFromInt(50),
		ValidFrom:      now.Add(-24 * time.Hour),
		ValidTo:        now.Add(24 * time.Hour),
		MaxRedemptions: 5,
	}
}

func newEngine(promos ...domain.PromoCode) (*Engine, *stubRegistry) {
	reg := &stubRegistry{promos: map[string]domain.PromoCode{}}
	for _, p := range promos {
		reg.promos[p.Code] = p
	}
	return New(reg, nil).WithClock(func() time.Time { return now }), reg
}

func TestValidate_CheckOrder(t *testing.T) {
	expired := save10()
	expired.Code = "OLD"
	expired.ValidTo = now.Add(-time.Hour)
	expired.CurrentRedemptions = expired.MaxRedemptions

	exhausted := save10()
	exhausted.Code = "GONE"
	exhausted.CurrentRedemptions = exhausted.MaxRedemptions

	notYet := save10()
	notYet.Code = "SOON"
	notYet.ValidFrom = now.Add(time.Hour)

	engine, _ := newEngine(save10(), expired, exhausted, notYet)

	tests := []struct {
		name     string
		code     string
		subtotal string
		want     error
	}{
		{"unknown", "NOPE", "200", domain.ErrPromoInvalid},
		{"blank", "   ", "200", domain.ErrPromoInvalid},
		{"expired before exhausted", "OLD", "10", domain.ErrPromoExpired},
		{"not yet valid", "SOON", "200", domain.ErrPromoExpired},
		{"exhausted before minimum", "GONE", "10", domain.ErrPromoExhausted},
		{"minimum not met", "SAVE10", "49.99", domain.ErrPromoMinimumNotMet},
		{"valid and normalised", "  save10 ", "50", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := engine.Validate(context.Background(), decimal.RequireFromString(tt.subtotal), tt.code, now)
			if tt.want != nil {
				require.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "SAVE10", p.Code)
		})
	}
}

func TestValidate_RegistryErrorPassesThrough(t *testing.T) {
	engine, reg := newEngine()
	reg.lookupErr = errors.New("db down")
	_, err := engine.Validate(context.Background(), decimal.NewFromInt(10), "X", now)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrPromoInvalid))
}

func TestPreview_IsIdempotent(t *testing.T) {
	engine, reg := newEngine(save10())
	subtotal := decimal.NewFromInt(200)

	first, err := engine.Preview(context.Background(), "SAVE10", subtotal)
	require.NoError(t, err)
	second, err := engine.Preview(context.Background(), "SAVE10", subtotal)
	require.NoError(t, err)

	assert.True(t, first.Discount.Equal(decimal.NewFromInt(20)))
	assert.True(t, first.Discount.Equal(second.Discount))
	assert.Equal(t, 0, reg.redeemCalls)
}

func TestDiscount_FloorAtZero(t *testing.T) {
	fixed := domain.DiscountRule{Kind: domain.DiscountFixed, Value: decimal.NewFromInt(30)}
	assert.True(t, Discount(fixed, decimal.NewFromInt(20)).Equal(decimal.NewFromInt(20)))
	assert.True(t, Discount(fixed, decimal.Zero).IsZero())

	pct := domain.DiscountRule{Kind: domain.DiscountPercentage, Value: decimal.RequireFromString("33.333")}
	assert.Equal(t, "3.33", Discount(pct, decimal.NewFromInt(10)).StringFixed(2))
}

func TestRedeem_UnknownIsInvalid(t *testing.T) {
	engine, _ := newEngine()
	assert.ErrorIs(t, engine.Redeem(context.Background(), "NOPE"), domain.ErrPromoInvalid)
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDiscountRule_Floor(t *testing.T) {
	tests := []struct {
		name     string
		rule     DiscountRule
		subtotal string
		want     string
	}{
		{"percentage", DiscountRule{Kind: DiscountPercentage, Value: price("10")}, "200", "20"},
		{"percentage rounds to cents", DiscountRule{Kind: DiscountPercentage, Value: price("15")}, "9.99", "1.5"},
		{"full percentage", DiscountRule{Kind: DiscountPercentage, Value: price("100")}, "42.10", "42.10"},
		{"fixed", DiscountRule{Kind: DiscountFixed, Value: price("5")}, "20", "5"},
		{"fixed above subtotal clamps", DiscountRule{Kind: DiscountFixed, Value: price("50")}, "12", "12"},
		{"negative value", DiscountRule{Kind: DiscountFixed, Value: price("-5")}, "20", "0"},
		{"empty cart", DiscountRule{Kind: DiscountFixed, Value: price("5")}, "0", "0"},
		{"unknown kind", DiscountRule{Kind: "bogo", Value: price("5")}, "20", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rule.Discount(price(tt.subtotal))
			assert.True(t, got.Equal(price(tt.want)), "got %s want %s", got, tt.want)
			assert.False(t, price(tt.subtotal).Sub(got).IsNegative())
		})
	}
}

func TestPromoCode_ActiveAt(t *testing.T) {
	p := PromoCode{ValidFrom: t0, ValidTo: t0.Add(time.Hour)}
	assert.False(t, p.ActiveAt(t0.Add(-time.Second)))
	assert.True(t, p.ActiveAt(t0))
	assert.True(t, p.ActiveAt(t0.Add(time.Hour)))
	assert.False(t, p.ActiveAt(t0.Add(time.Hour+time.Second)))
	assert.True(t, PromoCode{}.ActiveAt(t0))
}

func TestNormalizePromoCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizePromoCode("  save10\t"))
	assert.Equal(t, "", NormalizePromoCode("   "))
}

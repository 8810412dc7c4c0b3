package promo

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"food-ordering/internal/domain"
	"github.com/shopspring/decimal"
)

type registry interface {
	Lookup(ctx context.Context, code string) (*domain.PromoCode, error)
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// Engine validates promo codes against a cart subtotal and owns the
// redemption counter. Validation never changes state.
type Engine struct {
	registry registry
	logger   *log.Logger
	now      func() time.Time
}

func New(registry registry, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{registry: registry, logger: logger, now: time.Now}
}

// WithClock replaces the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Now() time.Time { return e.now() }

// Quote is the result of a successful validation.
type Quote struct {
	Promo    domain.PromoCode `json:"promo"`
	Subtotal decimal.Decimal  `json:"subtotal"`
	Discount decimal.Decimal  `json:"discount"`
}

// Validate checks code for a cart with the given subtotal at time at. Checks
// run in a fixed order and the first failure wins: unknown code, validity
// window, redemptions left, minimum order amount.
func (e *Engine) Validate(ctx context.Context, subtotal decimal.Decimal, code string, at time.Time) (*domain.PromoCode, error) {
	code = domain.NormalizePromoCode(code)
	if code == "" {
		return nil, domain.ErrPromoInvalid
	}
	p, err := e.registry.Lookup(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPromoInvalid
		}
		return nil, err
	}
	if !p.ActiveAt(at) {
		return nil, domain.ErrPromoExpired
	}
	if p.Exhausted() {
		return nil, domain.ErrPromoExhausted
	}
	if subtotal.LessThan(p.MinOrderAmount) {
		return nil, domain.ErrPromoMinimumNotMet
	}
	return p, nil
}

// Preview validates code at the current time and computes the discount it
// would give. Repeating it has no side effects.
func (e *Engine) Preview(ctx context.Context, code string, subtotal decimal.Decimal) (*Quote, error) {
	p, err := e.Validate(ctx, subtotal, code, e.now())
	if err != nil {
		return nil, err
	}
	return &Quote{Promo: *p, Subtotal: subtotal, Discount: Discount(p.Rule, subtotal)}, nil
}

// Discount computes the discount of rule for subtotal, clamped to [0, subtotal].
func Discount(rule domain.DiscountRule, subtotal decimal.Decimal) decimal.Decimal {
	return rule.Discount(subtotal)
}

// Redeem consumes one redemption slot.
func (e *Engine) Redeem(ctx context.Context, code string) error {
	if err := e.registry.Redeem(ctx, code); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrPromoInvalid
		}
		return err
	}
	e.logger.Printf("promo: redeemed code=%s", code)
	return nil
}

// Release returns a slot taken by Redeem.
func (e *Engine) Release(ctx context.Context, code string) error {
	if err := e.registry.Release(ctx, code); err != nil {
		e.logger.Printf("promo: release code=%s error=%v", code, err)
		return err
	}
	e.logger.Printf("promo: released code=%s", code)
	return nil
}

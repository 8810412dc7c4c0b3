// Package payment wraps the opaque charge capability used at checkout.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDeclined is returned when the gateway refuses the charge itself, as
// opposed to being unreachable.
var ErrDeclined = errors.New("payment declined")

type ChargeRequest struct {
	SessionKey  string
	CustomerRef string
	Amount      decimal.Decimal
}

type Receipt struct {
	PaymentRef string
	Amount     decimal.Decimal
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (Receipt, error)
	Refund(ctx context.Context, paymentRef string) error
}

// FakeGateway approves every charge up to DeclineAbove (zero means no limit)
// and keeps the receipts in memory.
type FakeGateway struct {
	DeclineAbove decimal.Decimal

	mu       sync.Mutex
	charges  map[string]Receipt
	refunded map[string]bool
}

func NewFakeGateway(declineAbove decimal.Decimal) *FakeGateway {
	return &FakeGateway{
		DeclineAbove: declineAbove,
		charges:      make(map[string]Receipt),
		refunded:     make(map[string]bool),
	}
}

func (g *FakeGateway) Charge(ctx context.Context, req ChargeRequest) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if req.Amount.IsNegative() {
		return Receipt{}, fmt.Errorf("%w: negative amount %s", ErrDeclined, req.Amount)
	}
	if g.DeclineAbove.IsPositive() && req.Amount.GreaterThan(g.DeclineAbove) {
		return Receipt{}, fmt.Errorf("%w: amount %s above limit", ErrDeclined, req.Amount)
	}
	r := Receipt{PaymentRef: "pay_" + uuid.NewString(), Amount: req.Amount}
	g.mu.Lock()
	g.charges[r.PaymentRef] = r
	g.mu.Unlock()
	return r, nil
}

func (g *FakeGateway) Refund(ctx context.Context, paymentRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.charges[paymentRef]; !ok {
		return fmt.Errorf("unknown payment %s", paymentRef)
	}
	g.refunded[paymentRef] = true
	return nil
}

// Captured returns the total of charges that were not refunded.
func (g *FakeGateway) Captured() decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	sum := decimal.Zero
	for ref, r := range g.charges {
		if !g.refunded[ref] {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}

func (g *FakeGateway) Refunded(paymentRef string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[paymentRef]
}

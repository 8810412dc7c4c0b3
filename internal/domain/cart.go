package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinLineQuantity = 1
	MaxLineQuantity = 99
)

// Cart is the per-session aggregate. Lines keep insertion order; ItemRef is unique.
type Cart struct {
	SessionKey string        `json:"sessionKey"`
	Lines      []CartLine    `json:"lineItems"`
	Promo      *AppliedPromo `json:"promo,omitempty"`
	Version    int64         `json:"version"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

type CartLine struct {
	ItemRef   string          `json:"itemRef"`
	Name      string          `json:"name,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// CartSnapshot is the immutable copy handed to checkout.
type CartSnapshot struct {
	SessionKey string        `json:"sessionKey"`
	Version    int64         `json:"version"`
	Lines      []CartLine    `json:"lineItems"`
	Promo      *AppliedPromo `json:"promo,omitempty"`
	Totals     Totals        `json:"totals"`
	CreatedAt  time.Time     `json:"createdAt"`
	CapturedAt time.Time     `json:"capturedAt"`
}

// NewCart returns the empty, never persisted cart for a session (version 0).
func NewCart(sessionKey string) *Cart {
	return &Cart{SessionKey: sessionKey}
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Lines != nil {
		out.Lines = make([]CartLine, len(c.Lines))
		copy(out.Lines, c.Lines)
	}
	if c.Promo != nil {
		p := *c.Promo
		out.Promo = &p
	}
	return &out
}

func (c *Cart) EntityVersion() int64 { return c.Version }

func (c *Cart) SetEntityVersion(v int64) { c.Version = v }

func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

// Line returns the line for itemRef and whether it exists.
func (c *Cart) Line(itemRef string) (CartLine, bool) {
	if i := c.lineIndex(itemRef); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

func (c *Cart) lineIndex(itemRef string) int {
	for i := range c.Lines {
		if c.Lines[i].ItemRef == itemRef {
			return i
		}
	}
	return -1
}

// AddItem adds quantity of itemRef. An existing line keeps its price snapshot
// and sums quantities; a sum above MaxLineQuantity is rejected, not clamped.
func (c *Cart) AddItem(itemRef, name string, quantity int, unitPrice decimal.Decimal, now time.Time) error {
	if itemRef == "" {
		return ErrInvalidInput
	}
	if quantity < MinLineQuantity {
		return ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	if i := c.lineIndex(itemRef); i >= 0 {
		sum := c.Lines[i].Quantity + quantity
		if sum > MaxLineQuantity {
			return ErrQuantityLimitExceeded
		}
		c.Lines[i].Quantity = sum
		return nil
	}
	if quantity > MaxLineQuantity {
		return ErrQuantityLimitExceeded
	}
	c.Lines = append(c.Lines, CartLine{
		ItemRef:   itemRef,
		Name:      name,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		AddedAt:   now,
	})
	return nil
}

// SetQuantity sets the line quantity; 0 removes the line.
func (c *Cart) SetQuantity(itemRef string, quantity int) error {
	if quantity != 0 && (quantity < MinLineQuantity || quantity > MaxLineQuantity) {
		return ErrInvalidQuantity
	}
	i := c.lineIndex(itemRef)
	if i < 0 {
		return ErrItemNotFound
	}
	if quantity == 0 {
		c.removeAt(i)
		return nil
	}
	c.Lines[i].Quantity = quantity
	return nil
}

func (c *Cart) RemoveItem(itemRef string) error {
	i := c.lineIndex(itemRef)
	if i < 0 {
		return ErrItemNotFound
	}
	c.removeAt(i)
	return nil
}

func (c *Cart) removeAt(i int) {
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	if len(c.Lines) == 0 {
		c.Promo = nil
	}
}

func (c *Cart) ApplyPromo(p AppliedPromo) {
	c.Promo = &p
}

func (c *Cart) RemovePromo() error {
	if c.Promo == nil {
		return ErrPromoInvalid
	}
	c.Promo = nil
	return nil
}

// Clear drops every line and the promo.
func (c *Cart) Clear() {
	c.Lines = nil
	c.Promo = nil
}

func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Totals recomputes the discount from the applied rule on every call.
func (c *Cart) Totals() Totals {
	subtotal := c.Subtotal()
	discount := decimal.Zero
	if c.Promo != nil && subtotal.GreaterThanOrEqual(c.Promo.MinOrderAmount) {
		discount = c.Promo.Rule.Discount(subtotal)
	}
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
	}
}

func (c *Cart) Snapshot(now time.Time) CartSnapshot {
	cp := c.Clone()
	return CartSnapshot{
		SessionKey: cp.SessionKey,
		Version:    cp.Version,
		Lines:      cp.Lines,
		Promo:      cp.Promo,
		Totals:     c.Totals(),
		CreatedAt:  cp.CreatedAt,
		CapturedAt: now,
	}
}

package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order is created once from a cart snapshot. Lines and totals are locked;
// only Status, Version, UpdatedAt and StatusHistory change afterwards.
type Order struct {
	ID              string          `json:"id"`
	CustomerRef     string          `json:"customerRef"`
	SessionKey      string          `json:"sessionKey,omitempty"`
	Lines           []OrderLine     `json:"lineItems"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	PromoCode       string          `json:"promoCode,omitempty"`
	PaymentRef      string          `json:"paymentRef,omitempty"`
	DeliveryAddress string          `json:"deliveryAddress"`
	Notes           string          `json:"notes,omitempty"`
	Status          OrderStatus     `json:"status"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	StatusHistory   []StatusEntry   `json:"statusHistory"`
}

type OrderLine struct {
	ItemRef   string          `json:"itemRef"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// StatusEntry is one append-only audit record.
type StatusEntry struct {
	Status OrderStatus `json:"status"`
	At     time.Time   `json:"at"`
	Actor  string      `json:"actor"`
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	if o.Lines != nil {
		out.Lines = make([]OrderLine, len(o.Lines))
		copy(out.Lines, o.Lines)
	}
	if o.StatusHistory != nil {
		out.StatusHistory = make([]StatusEntry, len(o.StatusHistory))
		copy(out.StatusHistory, o.StatusHistory)
	}
	return &out
}

func (o *Order) EntityVersion() int64 { return o.Version }

func (o *Order) SetEntityVersion(v int64) { o.Version = v }

// Transition moves the order to target if the table allows it and records
// the history entry.
func (o *Order) Transition(target OrderStatus, actor string, at time.Time) error {
	if !CanTransition(o.Status, target) {
		return &IllegalTransitionError{From: o.Status, To: target}
	}
	o.Status = target
	o.UpdatedAt = at
	o.StatusHistory = append(o.StatusHistory, StatusEntry{Status: target, At: at, Actor: actor})
	return nil
}

// NewOrder builds a pending order from a cart snapshot. The first history
// entry is attributed to the customer.
func NewOrder(id string, snap CartSnapshot, customerRef, deliveryAddress, notes string, at time.Time) (*Order, error) {
	if len(snap.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(customerRef) == "" || strings.TrimSpace(deliveryAddress) == "" {
		return nil, ErrInvalidInput
	}
	lines := make([]OrderLine, len(snap.Lines))
	for i, l := range snap.Lines {
		lines[i] = OrderLine{ItemRef: l.ItemRef, Name: l.Name, UnitPrice: l.UnitPrice, Quantity: l.Quantity}
	}
	o := &Order{
		ID:              id,
		CustomerRef:     strings.TrimSpace(customerRef),
		SessionKey:      snap.SessionKey,
		Lines:           lines,
		Subtotal:        snap.Totals.Subtotal,
		Discount:        snap.Totals.Discount,
		Total:           snap.Totals.Total,
		DeliveryAddress: strings.TrimSpace(deliveryAddress),
		Notes:           notes,
		Status:          OrderPending,
		CreatedAt:       at,
		UpdatedAt:       at,
		StatusHistory:   []StatusEntry{{Status: OrderPending, At: at, Actor: strings.TrimSpace(customerRef)}},
	}
	if snap.Promo != nil && snap.Totals.Discount.IsPositive() {
		o.PromoCode = snap.Promo.Code
	}
	return o, nil
}

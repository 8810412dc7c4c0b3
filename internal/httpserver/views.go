package httpserver

import (
	"time"

	"food-ordering/internal/domain"
	"github.com/shopspring/decimal"
)

type moneyView struct {
	Type           string `json:"type"`
	CurrencyCode   string `json:"currencyCode"`
	CentAmount     int64  `json:"centAmount"`
	FractionDigits int    `json:"fractionDigits"`
	Amount         string `json:"amount"`
}

func toMoney(d decimal.Decimal, currency string) moneyView {
	return moneyView{
		Type:           "centPrecision",
		CurrencyCode:   currency,
		CentAmount:     d.Shift(2).Round(0).IntPart(),
		FractionDigits: 2,
		Amount:         d.StringFixed(2),
	}
}

type cartView struct {
	Type                  string         `json:"type"`
	SessionKey            string         `json:"sessionKey"`
	Version               int64          `json:"version"`
	LineItems             []lineItemView `json:"lineItems"`
	DiscountCode          *promoRefView  `json:"discountCode,omitempty"`
	Subtotal              moneyView      `json:"subtotal"`
	Discount              moneyView      `json:"discount"`
	TotalPrice            moneyView      `json:"totalPrice"`
	TotalLineItemQuantity int            `json:"totalLineItemQuantity"`
	CreatedAt             *time.Time     `json:"createdAt,omitempty"`
	LastModifiedAt        *time.Time     `json:"lastModifiedAt,omitempty"`
}

type lineItemView struct {
	ItemRef    string     `json:"itemRef"`
	Name       string     `json:"name,omitempty"`
	Quantity   int        `json:"quantity"`
	Price      moneyView  `json:"price"`
	TotalPrice moneyView  `json:"totalPrice"`
	AddedAt    *time.Time `json:"addedAt,omitempty"`
}

type promoRefView struct {
	Code           string              `json:"code"`
	Rule           domain.DiscountRule `json:"rule"`
	MinOrderAmount moneyView           `json:"minOrderAmount"`
}

func toCartView(cart *domain.Cart, currency string) cartView {
	totals := cart.Totals()
	v := cartView{
		Type:           "Cart",
		SessionKey:     cart.SessionKey,
		Version:        cart.Version,
		LineItems:      make([]lineItemView, 0, len(cart.Lines)),
		Subtotal:       toMoney(totals.Subtotal, currency),
		Discount:       toMoney(totals.Discount, currency),
		TotalPrice:     toMoney(totals.Total, currency),
		CreatedAt:      optionalTime(cart.CreatedAt),
		LastModifiedAt: optionalTime(cart.UpdatedAt),
	}
	for _, l := range cart.Lines {
		v.TotalLineItemQuantity += l.Quantity
		v.LineItems = append(v.LineItems, lineItemView{
			ItemRef:    l.ItemRef,
			Name:       l.Name,
			Quantity:   l.Quantity,
			Price:      toMoney(l.UnitPrice, currency),
			TotalPrice: toMoney(l.Subtotal(), currency),
			AddedAt:    optionalTime(l.AddedAt),
		})
	}
	if cart.Promo != nil {
		v.DiscountCode = &promoRefView{
			Code:           cart.Promo.Code,
			Rule:           cart.Promo.Rule,
			MinOrderAmount: toMoney(cart.Promo.MinOrderAmount, currency),
		}
	}
	return v
}

type orderView struct {
	Type            string               `json:"type"`
	ID              string               `json:"id"`
	Version         int64                `json:"version"`
	CustomerRef     string               `json:"customerRef"`
	OrderState      domain.OrderStatus   `json:"orderState"`
	NextStatuses    []domain.OrderStatus `json:"nextStatuses"`
	LineItems       []lineItemView       `json:"lineItems"`
	Subtotal        moneyView            `json:"subtotal"`
	Discount        moneyView            `json:"discount"`
	TotalPrice      moneyView            `json:"totalPrice"`
	PromoCode       string               `json:"promoCode,omitempty"`
	PaymentRef      string               `json:"paymentRef,omitempty"`
	DeliveryAddress string               `json:"deliveryAddress"`
	Notes           string               `json:"notes,omitempty"`
	StatusHistory   []domain.StatusEntry `json:"statusHistory"`
	CreatedAt       time.Time            `json:"createdAt"`
	LastModifiedAt  time.Time            `json:"lastModifiedAt"`
}

func toOrderView(o *domain.Order, currency string) orderView {
	v := orderView{
		Type:            "Order",
		ID:              o.ID,
		Version:         o.Version,
		CustomerRef:     o.CustomerRef,
		OrderState:      o.Status,
		NextStatuses:    domain.NextStatuses(o.Status),
		LineItems:       make([]lineItemView, 0, len(o.Lines)),
		Subtotal:        toMoney(o.Subtotal, currency),
		Discount:        toMoney(o.Discount, currency),
		TotalPrice:      toMoney(o.Total, currency),
		PromoCode:       o.PromoCode,
		PaymentRef:      o.PaymentRef,
		DeliveryAddress: o.DeliveryAddress,
		Notes:           o.Notes,
		StatusHistory:   o.StatusHistory,
		CreatedAt:       o.CreatedAt,
		LastModifiedAt:  o.UpdatedAt,
	}
	for _, l := range o.Lines {
		v.LineItems = append(v.LineItems, lineItemView{
			ItemRef:    l.ItemRef,
			Name:       l.Name,
			Quantity:   l.Quantity,
			Price:      toMoney(l.UnitPrice, currency),
			TotalPrice: toMoney(l.Subtotal(), currency),
		})
	}
	if v.StatusHistory == nil {
		v.StatusHistory = []domain.StatusEntry{}
	}
	return v
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

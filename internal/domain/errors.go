package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested aggregate was not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict is matched by every *ConflictError.
	ErrConflict = errors.New("version conflict")

	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrQuantityLimitExceeded = errors.New("quantity limit exceeded")
	ErrInvalidPrice          = errors.New("invalid unit price")
	ErrItemNotFound          = errors.New("item not found in cart")
	ErrEmptyCart             = errors.New("cart is empty")

	ErrPromoInvalid       = errors.New("promo code invalid")
	ErrPromoExpired       = errors.New("promo code expired")
	ErrPromoExhausted     = errors.New("promo code exhausted")
	ErrPromoMinimumNotMet = errors.New("promo code minimum order not met")

	// ErrIllegalTransition is matched by every *IllegalTransitionError.
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrInvalidInput      = errors.New("invalid input")
)

// ConflictError is returned when the caller's expected version is stale.
// Snapshot holds the aggregate as currently persisted so the caller can
// refresh without another round trip.
type ConflictError struct {
	Key      string
	Expected int64
	Current  int64
	Snapshot any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, current %d", e.Key, e.Expected, e.Current)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// IllegalTransitionError names the current and the attempted status.
type IllegalTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition from %q to %q", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// Package checkout turns a cart into an order: validate the snapshot, redeem
// the promo, charge, then clear the cart and store the order in one commit.
// Every step after a side effect undoes the earlier ones on failure.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"food-ordering/internal/domain"
	"food-ordering/internal/payment"
	orderservice "food-ordering/internal/service/order"
	"github.com/shopspring/decimal"
)

type cartSnapshotter interface {
	Snapshot(ctx context.Context, sessionKey string) (domain.CartSnapshot, error)
	Invalidate(ctx context.Context, sessionKey string)
}

type promoRedeemer interface {
	Validate(ctx context.Context, subtotal decimal.Decimal, code string, at time.Time) (*domain.PromoCode, error)
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

type orderBuilder interface {
	Build(snap domain.CartSnapshot, in orderservice.CreateInput) (*domain.Order, error)
	Created(ctx context.Context, o *domain.Order)
}

type committer interface {
	Commit(ctx context.Context, sessionKey string, expected int64, cleared *domain.Cart, order *domain.Order) error
}

type Service struct {
	carts     cartSnapshotter
	promos    promoRedeemer
	orders    orderBuilder
	payments  payment.Gateway
	committer committer
	logger    *log.Logger
	opTimeout time.Duration
	now       func() time.Time
}

type Deps struct {
	Carts            cartSnapshotter
	Promos           promoRedeemer
	Orders           orderBuilder
	Payments         payment.Gateway
	Committer        committer
	Logger           *log.Logger
	OperationTimeout time.Duration
}

func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		carts:     deps.Carts,
		promos:    deps.Promos,
		orders:    deps.Orders,
		payments:  deps.Payments,
		committer: deps.Committer,
		logger:    logger,
		opTimeout: deps.OperationTimeout,
		now:       time.Now,
	}
}

type Input struct {
	Version         int64  `json:"version"`
	CustomerRef     string `json:"customerRef"`
	DeliveryAddress string `json:"deliveryAddress"`
	Notes           string `json:"notes,omitempty"`
}

// Checkout places an order for the cart of sessionKey as of in.Version.
//
// On success the cart is empty at in.Version+1 and the order is pending. On
// any failure the cart, the promo counter and the payment are as they were.
func (s *Service) Checkout(ctx context.Context, sessionKey string, in Input) (*domain.Order, error) {
	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}

	snap, err := s.carts.Snapshot(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if snap.Version != in.Version {
		return nil, &domain.ConflictError{Key: sessionKey, Expected: in.Version, Current: snap.Version, Snapshot: snap}
	}
	if len(snap.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	order, err := s.orders.Build(snap, orderservice.CreateInput{
		CustomerRef:     in.CustomerRef,
		DeliveryAddress: in.DeliveryAddress,
		Notes:           in.Notes,
	})
	if err != nil {
		return nil, err
	}

	// compensate runs on a context that outlives the caller's deadline.
	var undo []func(context.Context)
	compensate := func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i](cctx)
		}
	}

	if order.PromoCode != "" {
		code := order.PromoCode
		if _, err := s.promos.Validate(ctx, snap.Totals.Subtotal, code, s.now()); err != nil {
			return nil, err
		}
		if err := s.promos.Redeem(ctx, code); err != nil {
			return nil, err
		}
		undo = append(undo, func(cctx context.Context) {
			if err := s.promos.Release(cctx, code); err != nil {
				s.logger.Printf("checkout: session=%s release promo=%s error=%v", sessionKey, code, err)
			}
		})
	}

	if order.Total.IsPositive() {
		receipt, err := s.payments.Charge(ctx, payment.ChargeRequest{
			SessionKey:  sessionKey,
			CustomerRef: order.CustomerRef,
			Amount:      order.Total,
		})
		if err != nil {
			if chargeOutcomeUnknown(ctx, err) {
				// The gateway may have captured the charge, so the promo slot
				// stays redeemed and nothing is refunded.
				s.logger.Printf("checkout: session=%s order=%s charge %s outcome unknown: %v", sessionKey, order.ID, order.Total, err)
				return nil, fmt.Errorf("charge order %s: %w", order.ID, context.DeadlineExceeded)
			}
			compensate()
			s.logger.Printf("checkout: session=%s charge %s failed: %v", sessionKey, order.Total, err)
			return nil, fmt.Errorf("%w: %w", domain.ErrPaymentFailed, err)
		}
		order.PaymentRef = receipt.PaymentRef
		undo = append(undo, func(cctx context.Context) {
			if err := s.payments.Refund(cctx, receipt.PaymentRef); err != nil {
				s.logger.Printf("checkout: session=%s refund payment=%s error=%v", sessionKey, receipt.PaymentRef, err)
			}
		})
	}

	cleared := domain.NewCart(sessionKey)
	cleared.Version = snap.Version + 1
	cleared.CreatedAt = snap.CreatedAt
	cleared.UpdatedAt = order.CreatedAt
	if err := s.committer.Commit(ctx, sessionKey, snap.Version, cleared, order); err != nil {
		compensate()
		s.logger.Printf("checkout: session=%s commit failed: %v", sessionKey, err)
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("commit checkout: %w", err)
	}

	s.carts.Invalidate(ctx, sessionKey)
	s.orders.Created(ctx, order)
	return order.Clone(), nil
}

// chargeOutcomeUnknown reports whether a charge error leaves it open whether
// the gateway took the money: a timeout of the call itself or of the checkout.
func chargeOutcomeUnknown(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil
}

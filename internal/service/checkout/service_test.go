package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"food-ordering/internal/domain"
	"food-ordering/internal/events"
	"food-ordering/internal/payment"
	cartrepo "food-ordering/internal/repository/cart"
	checkoutrepo "food-ordering/internal/repository/checkout"
	orderrepo "food-ordering/internal/repository/order"
	promorepo "food-ordering/internal/repository/promo"
	cartservice "food-ordering/internal/service/cart"
	orderservice "food-ordering/internal/service/order"
	promoservice "food-ordering/internal/service/promo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	carts    *cartservice.Service
	orders   *orderservice.Service
	promos   *promorepo.Memory
	gateway  *payment.FakeGateway
	checkout *Service
	hub      *events.Hub
}

type failingCommitter struct{ err error }

func (f failingCommitter) Commit(context.Context, string, int64, *domain.Cart, *domain.Order) error {
	return f.err
}

func newHarness(t *testing.T, declineAbove int64, commit committer) *harness {
	t.Helper()
	ctx := context.Background()

	cartMem, orderMem, promoMem := cartrepo.NewMemory(), orderrepo.NewMemory(), promorepo.NewMemory()
	require.NoError(t, promoMem.Upsert(ctx, domain.PromoCode{
		Code:           "SAVE10",
		Rule:           domain.DiscountRule{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10)},
		MaxRedemptions: 100,
	}))
	require.NoError(t, promoMem.Upsert(ctx, domain.PromoCode{
		Code:           "LASTONE",
		Rule:           domain.DiscountRule{Kind: domain.DiscountFixed, Value: decimal.NewFromInt(5)},
		MaxRedemptions: 1,
	}))

	engine := promoservice.New(promoMem, nil)
	hub := events.NewHub()
	t.Cleanup(func() { hub.Close() })
	h := &harness{
		carts:   cartservice.New(cartMem, engine, cartservice.Options{}),
		orders:  orderservice.New(orderMem, hub, nil),
		promos:  promoMem,
		gateway: payment.NewFakeGateway(decimal.NewFromInt(declineAbove)),
		hub:     hub,
	}
	if commit == nil {
		commit = checkoutrepo.NewMemory(cartMem, orderMem)
	}
	h.checkout = New(Deps{
		Carts:     h.carts,
		Promos:    engine,
		Orders:    h.orders,
		Payments:  h.gateway,
		Committer: commit,
	})
	return h
}

// fill adds two pizzas at 100 and applies code, returning the cart version.
func (h *harness) fill(t *testing.T, session, code string) int64 {
	t.Helper()
	ctx := context.Background()
	cart, err := h.carts.AddItem(ctx, session, cartservice.AddItemInput{ItemRef: "pizza", Quantity: 2, UnitPrice: decimal.NewFromInt(100)}, 0)
	require.NoError(t, err)
	if code != "" {
		cart, err = h.carts.ApplyPromoCode(ctx, session, code, cart.Version)
		require.NoError(t, err)
	}
	return cart.Version
}

func (h *harness) redemptions(t *testing.T, code string) int64 {
	t.Helper()
	p, err := h.promos.Lookup(context.Background(), code)
	require.NoError(t, err)
	return p.CurrentRedemptions
}

func input(version int64) Input {
	return Input{Version: version, CustomerRef: "alice", DeliveryAddress: "1 Main St"}
}

func TestCheckout_HappyPath(t *testing.T) {
	h := newHarness(t, 0, nil)
	ctx := context.Background()
	sub, cancel := h.hub.Subscribe(4)
	defer cancel()

	version := h.fill(t, "sess", "SAVE10")
	totals, err := h.carts.GetTotal(ctx, "sess")
	require.NoError(t, err)
	require.True(t, totals.Total.Equal(decimal.NewFromInt(180)))

	order, err := h.checkout.Checkout(ctx, "sess", input(version))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(180)))
	assert.Equal(t, "SAVE10", order.PromoCode)
	assert.NotEmpty(t, order.PaymentRef)

	cart, err := h.carts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
	assert.Nil(t, cart.Promo)
	assert.Equal(t, version+1, cart.Version)

	assert.Equal(t, int64(1), h.redemptions(t, "SAVE10"))
	assert.True(t, h.gateway.Captured().Equal(decimal.NewFromInt(180)))

	stored, err := h.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)

	ev := <-sub
	assert.Equal(t, events.OrderCreated, ev.Type)
	assert.Equal(t, order.ID, ev.AggregateID)
}

func TestCheckout_PaymentFailureLeavesCartUntouched(t *testing.T) {
	h := newHarness(t, 100, nil)
	ctx := context.Background()
	version := h.fill(t, "sess", "SAVE10")

	_, err := h.checkout.Checkout(ctx, "sess", input(version))
	require.ErrorIs(t, err, domain.ErrPaymentFailed)
	assert.ErrorIs(t, err, payment.ErrDeclined)

	cart, err := h.carts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, version, cart.Version)
	assert.Len(t, cart.Lines, 1)
	require.NotNil(t, cart.Promo)

	assert.Equal(t, int64(0), h.redemptions(t, "SAVE10"))
	orders, err := h.orders.ListByCustomer(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

// hangingGateway never answers a charge before its context ends.
type hangingGateway struct {
	refunds int
}

func (g *hangingGateway) Charge(ctx context.Context, _ payment.ChargeRequest) (payment.Receipt, error) {
	<-ctx.Done()
	return payment.Receipt{}, ctx.Err()
}

func (g *hangingGateway) Refund(context.Context, string) error {
	g.refunds++
	return nil
}

func TestCheckout_PaymentTimeoutIsOutcomeUnknown(t *testing.T) {
	h := newHarness(t, 0, nil)
	ctx := context.Background()
	version := h.fill(t, "sess", "SAVE10")

	gateway := &hangingGateway{}
	svc := New(Deps{
		Carts:            h.carts,
		Promos:           promoservice.New(h.promos, nil),
		Orders:           h.orders,
		Payments:         payment.NewBreaker(gateway, 20*time.Millisecond, nil),
		Committer:        failingCommitter{err: errors.New("commit must not run")},
		OperationTimeout: 5 * time.Second,
	})

	_, err := svc.Checkout(ctx, "sess", input(version))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrPaymentFailed)

	// the charge may have gone through: the slot stays taken, no refund is guessed
	assert.Equal(t, int64(1), h.redemptions(t, "SAVE10"))
	assert.Zero(t, gateway.refunds)

	cart, err := h.carts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, version, cart.Version)
	assert.Len(t, cart.Lines, 1)
	orders, err := h.orders.ListByCustomer(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_PromoExhaustionRace(t *testing.T) {
	h := newHarness(t, 0, nil)
	ctx := context.Background()
	versions := map[string]int64{
		"a": h.fill(t, "a", "LASTONE"),
		"b": h.fill(t, "b", "LASTONE"),
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = map[string]error{}
	)
	for session, version := range versions {
		wg.Add(1)
		go func(session string, version int64) {
			defer wg.Done()
			_, err := h.checkout.Checkout(ctx, session, input(version))
			mu.Lock()
			errs[session] = err
			mu.Unlock()
		}(session, version)
	}
	wg.Wait()

	var winners, exhausted int
	for session, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, domain.ErrPromoExhausted):
			exhausted++
			cart, gerr := h.carts.Get(ctx, session)
			require.NoError(t, gerr)
			assert.Equal(t, versions[session], cart.Version)
			assert.Len(t, cart.Lines, 1)
		default:
			t.Fatalf("unexpected error for %s: %v", session, err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, exhausted)
	assert.Equal(t, int64(1), h.redemptions(t, "LASTONE"))
	assert.True(t, h.gateway.Captured().Equal(decimal.NewFromInt(195)))
}

func TestCheckout_StaleVersionHasNoSideEffects(t *testing.T) {
	h := newHarness(t, 0, nil)
	ctx := context.Background()
	version := h.fill(t, "sess", "SAVE10")

	_, err := h.checkout.Checkout(ctx, "sess", input(version-1))
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, version, conflict.Current)
	assert.Equal(t, int64(0), h.redemptions(t, "SAVE10"))
	assert.True(t, h.gateway.Captured().IsZero())
}

func TestCheckout_EmptyCartAndBadInput(t *testing.T) {
	h := newHarness(t, 0, nil)
	ctx := context.Background()

	_, err := h.checkout.Checkout(ctx, "nobody", input(0))
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	version := h.fill(t, "sess", "")
	_, err = h.checkout.Checkout(ctx, "sess", Input{Version: version, CustomerRef: "alice"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.True(t, h.gateway.Captured().IsZero())
}

func TestCheckout_CommitFailureCompensates(t *testing.T) {
	h := newHarness(t, 0, failingCommitter{err: &domain.ConflictError{Key: "sess", Expected: 2, Current: 3}})
	ctx := context.Background()
	version := h.fill(t, "sess", "SAVE10")

	_, err := h.checkout.Checkout(ctx, "sess", input(version))
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, int64(0), h.redemptions(t, "SAVE10"))
	assert.True(t, h.gateway.Captured().IsZero())

	h2 := newHarness(t, 0, failingCommitter{err: errors.New("disk full")})
	version = h2.fill(t, "sess", "")
	_, err = h2.checkout.Checkout(ctx, "sess", input(version))
	require.ErrorContains(t, err, "disk full")
	assert.True(t, h2.gateway.Captured().IsZero())
	cart, err := h2.carts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
}

package cartclient

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"food-ordering/internal/domain"
	"food-ordering/internal/events"
	"food-ordering/internal/httpserver"
	"food-ordering/internal/payment"
	cartrepo "food-ordering/internal/repository/cart"
	checkoutrepo "food-ordering/internal/repository/checkout"
	orderrepo "food-ordering/internal/repository/order"
	promorepo "food-ordering/internal/repository/promo"
	cartsvc "food-ordering/internal/service/cart"
	checkoutsvc "food-ordering/internal/service/checkout"
	ordersvc "food-ordering/internal/service/order"
	promosvc "food-ordering/internal/service/promo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingServer struct {
	*httptest.Server
	updates atomic.Int32
}

func newServer(t *testing.T) *countingServer {
	t.Helper()
	ctx := context.Background()

	carts, orders, promos := cartrepo.NewMemory(), orderrepo.NewMemory(), promorepo.NewMemory()
	require.NoError(t, promos.Upsert(ctx, domain.PromoCode{
		Code:           "SAVE10",
		Rule:           domain.DiscountRule{Kind: domain.DiscountPercentage, Value: decimal.NewFromInt(10)},
		MaxRedemptions: 10,
	}))
	engine := promosvc.New(promos, nil)
	hub := events.NewHub()
	t.Cleanup(func() { hub.Close() })
	cartService := cartsvc.New(carts, engine, cartsvc.Options{})
	orderService := ordersvc.New(orders, hub, nil)

	srv, err := httpserver.New(":0", log.New(io.Discard, "", 0), httpserver.Deps{
		CartSvc: cartService,
		CheckoutSvc: checkoutsvc.New(checkoutsvc.Deps{
			Carts:     cartService,
			Promos:    engine,
			Orders:    orderService,
			Payments:  payment.NewFakeGateway(decimal.Zero),
			Committer: checkoutrepo.NewMemory(carts, orders),
		}),
		OrderSvc: orderService,
		PromoSvc: engine,
	})
	require.NoError(t, err)

	cs := &countingServer{}
	handler := srv.Handler()
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/carts/") && strings.Count(r.URL.Path, "/") == 2 {
			cs.updates.Add(1)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newClient(t *testing.T, srv *countingServer, session string) *Client {
	t.Helper()
	c := New(srv.URL, session, Options{HTTPClient: srv.Client(), Window: 20 * time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func wait(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for coalesced send")
		return nil
	}
}

func TestClient_SetQuantityCoalesces(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv, "s1")
	ctx := context.Background()

	cart, err := c.AddItem(ctx, "pizza", "Margherita", 1, decimal.NewFromInt(12))
	require.NoError(t, err)
	assert.Equal(t, int64(1), cart.Version)
	before := srv.updates.Load()

	first := c.SetQuantity("pizza", 3)
	second := c.SetQuantity("pizza", 4)
	third := c.SetQuantity("pizza", 5)

	require.NoError(t, wait(t, first))
	require.NoError(t, wait(t, second))
	require.NoError(t, wait(t, third))

	assert.Equal(t, int32(1), srv.updates.Load()-before)
	assert.Equal(t, int64(2), c.Version())
	assert.Equal(t, 5, c.Cart().Quantity("pizza"))
}

func TestClient_ConflictRefetchesBeforeRetry(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	tab := newClient(t, srv, "shared")
	phone := newClient(t, srv, "shared")

	_, err := tab.AddItem(ctx, "pizza", "", 2, decimal.NewFromInt(100))
	require.NoError(t, err)

	// phone still believes the cart is at version 0.
	_, err = phone.AddItem(ctx, "soda", "", 1, decimal.NewFromInt(3))
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, int64(1), phone.Version())
	assert.Equal(t, 2, phone.Cart().Quantity("pizza"))

	_, err = tab.ApplyPromo(ctx, "SAVE10")
	require.NoError(t, err)

	// Absolute changes are replayed once on top of the refetched cart.
	require.NoError(t, wait(t, phone.SetQuantity("pizza", 3)))
	assert.Equal(t, int64(3), phone.Version())
	assert.Equal(t, 3, phone.Cart().Quantity("pizza"))
	require.NotNil(t, phone.Cart().DiscountCode)
	assert.Equal(t, "SAVE10", phone.Cart().DiscountCode.Code)
}

func TestClient_ValidationErrorsMapToSentinels(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv, "s2")
	ctx := context.Background()

	_, err := c.AddItem(ctx, "pizza", "", 100, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrQuantityLimitExceeded)

	_, err = c.ApplyPromo(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrPromoInvalid)

	err = wait(t, c.SetQuantity("ghost", 2))
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, int64(0), c.Version())
}

func TestClient_CheckoutFlushesPendingQuantities(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := New(srv.URL, "s3", Options{HTTPClient: srv.Client(), Window: time.Hour})
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.AddItem(ctx, "pizza", "", 1, decimal.NewFromInt(100))
	require.NoError(t, err)
	pending := c.SetQuantity("pizza", 2)

	order, err := c.Checkout(ctx, "cust-1", "1 Main St", "")
	require.NoError(t, err)
	require.NoError(t, wait(t, pending))

	assert.Equal(t, string(domain.OrderPending), order.OrderState)
	assert.Equal(t, "200.00", order.TotalPrice.Amount)
	assert.Equal(t, int64(3), c.Version())
	assert.Empty(t, c.Cart().LineItems)
}

func TestClient_CheckoutEmptyCart(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv, "s4")

	_, err := c.Checkout(context.Background(), "cust-1", "1 Main St", "")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

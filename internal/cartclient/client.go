// Package cartclient is an HTTP client for the cart API. It remembers the
// last cart version it saw, sends quantity changes through a coalescer and
// refetches the cart after every version conflict.
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"food-ordering/internal/coalesce"
	"food-ordering/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrUnauthorized   = errors.New("session rejected")
	ErrOutcomeUnknown = errors.New("operation outcome unknown")
)

// codeErrors maps API error codes back to the sentinels callers match on.
var codeErrors = map[string]error{
	"ConcurrentModification": domain.ErrConflict,
	"ResourceNotFound":       domain.ErrNotFound,
	"InvalidInput":           domain.ErrInvalidInput,
	"InvalidJsonInput":       domain.ErrInvalidInput,
	"InvalidQuantity":        domain.ErrInvalidQuantity,
	"QuantityLimitExceeded":  domain.ErrQuantityLimitExceeded,
	"InvalidPrice":           domain.ErrInvalidPrice,
	"ItemNotFound":           domain.ErrItemNotFound,
	"EmptyCart":              domain.ErrEmptyCart,
	"PromoInvalid":           domain.ErrPromoInvalid,
	"PromoExpired":           domain.ErrPromoExpired,
	"PromoExhausted":         domain.ErrPromoExhausted,
	"PromoMinimumNotMet":     domain.ErrPromoMinimumNotMet,
	"IllegalTransition":      domain.ErrIllegalTransition,
	"PaymentFailed":          domain.ErrPaymentFailed,
	"InvalidSession":         ErrUnauthorized,
	"OutcomeUnknown":         ErrOutcomeUnknown,
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode     int
	Code           string
	Message        string
	CurrentVersion *int64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

type Money struct {
	CurrencyCode string `json:"currencyCode"`
	CentAmount   int64  `json:"centAmount"`
	Amount       string `json:"amount"`
}

type Line struct {
	ItemRef  string `json:"itemRef"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    Money  `json:"price"`
}

type Cart struct {
	SessionKey   string `json:"sessionKey"`
	Version      int64  `json:"version"`
	LineItems    []Line `json:"lineItems"`
	DiscountCode *struct {
		Code string `json:"code"`
	} `json:"discountCode"`
	Subtotal   Money `json:"subtotal"`
	Discount   Money `json:"discount"`
	TotalPrice Money `json:"totalPrice"`
}

// Quantity returns the quantity of itemRef, 0 when absent.
func (c Cart) Quantity(itemRef string) int {
	for _, l := range c.LineItems {
		if l.ItemRef == itemRef {
			return l.Quantity
		}
	}
	return 0
}

type Order struct {
	ID         string `json:"id"`
	Version    int64  `json:"version"`
	OrderState string `json:"orderState"`
	PromoCode  string `json:"promoCode"`
	TotalPrice Money  `json:"totalPrice"`
}

type action struct {
	Action    string           `json:"action"`
	ItemRef   string           `json:"itemRef,omitempty"`
	Name      string           `json:"name,omitempty"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
	Code      string           `json:"code,omitempty"`
}

type Options struct {
	HTTPClient *http.Client
	// Window is the coalescing window for SetQuantity.
	Window time.Duration
	Logger *log.Logger
}

type Client struct {
	baseURL    string
	sessionKey string
	http       *http.Client
	logger     *log.Logger
	coalescer  *coalesce.Coalescer

	mu   sync.Mutex
	cart Cart
}

func New(baseURL, sessionKey string, opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionKey: sessionKey,
		http:       opts.HTTPClient,
		logger:     opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard, "", 0)
	}
	c.coalescer = coalesce.New(opts.Window, c.sendQuantity)
	return c
}

// Cart returns the last cart the client observed.
func (c *Client) Cart() Cart {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart
}

func (c *Client) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cart.Version
}

// observe keeps the newest cart; versions never move backwards locally.
func (c *Client) observe(cart Cart) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cart.Version >= c.cart.Version {
		c.cart = cart
	}
}

func (c *Client) cartPath() string {
	return "/carts/" + url.PathEscape(c.sessionKey)
}

// Refresh fetches the current cart.
func (c *Client) Refresh(ctx context.Context) (Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodGet, c.cartPath(), nil, &cart); err != nil {
		return Cart{}, err
	}
	c.mu.Lock()
	c.cart = cart
	c.mu.Unlock()
	return cart, nil
}

// AddItem is relative, so a conflict is returned after the refetch instead of
// being replayed on top of a cart the caller has not seen.
func (c *Client) AddItem(ctx context.Context, itemRef, name string, quantity int, unitPrice decimal.Decimal) (Cart, error) {
	return c.update(ctx, false, action{Action: "addItem", ItemRef: itemRef, Name: name, Quantity: quantity, UnitPrice: &unitPrice})
}

func (c *Client) RemoveItem(ctx context.Context, itemRef string) (Cart, error) {
	return c.update(ctx, true, action{Action: "removeItem", ItemRef: itemRef})
}

func (c *Client) ApplyPromo(ctx context.Context, code string) (Cart, error) {
	return c.update(ctx, true, action{Action: "applyPromoCode", Code: code})
}

func (c *Client) RemovePromo(ctx context.Context) (Cart, error) {
	return c.update(ctx, true, action{Action: "removePromoCode"})
}

// SetQuantity queues an absolute quantity for itemRef. Calls for the same
// line inside the window collapse into one request with the last value.
func (c *Client) SetQuantity(itemRef string, quantity int) <-chan error {
	return c.coalescer.Submit(coalesce.Key{SessionKey: c.sessionKey, ItemRef: itemRef}, quantity)
}

func (c *Client) sendQuantity(ctx context.Context, key coalesce.Key, quantity int) error {
	_, err := c.update(ctx, true, action{Action: "changeQuantity", ItemRef: key.ItemRef, Quantity: quantity})
	return err
}

// Flush sends queued quantity changes now.
func (c *Client) Flush(ctx context.Context) error {
	return c.coalescer.Flush(ctx)
}

// Checkout never retries; a conflict means the cart changed under the caller.
func (c *Client) Checkout(ctx context.Context, customerRef, deliveryAddress, notes string) (*Order, error) {
	if err := c.Flush(ctx); err != nil {
		return nil, err
	}
	body := map[string]any{
		"version":         c.Version(),
		"customerRef":     customerRef,
		"deliveryAddress": deliveryAddress,
		"notes":           notes,
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, c.cartPath()+"/checkout", body, &order); err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, ErrOutcomeUnknown) {
			if _, rerr := c.Refresh(ctx); rerr != nil {
				c.logger.Printf("cartclient: refresh after checkout error: %v", rerr)
			}
		}
		return nil, err
	}
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Printf("cartclient: refresh after checkout: %v", err)
	}
	return &order, nil
}

func (c *Client) Close() error {
	return c.coalescer.Close()
}

// update posts actions against the last seen version. On a conflict the cart
// is refetched first; absolute actions are then sent once more.
func (c *Client) update(ctx context.Context, retry bool, actions ...action) (Cart, error) {
	for attempt := 0; ; attempt++ {
		body := map[string]any{"version": c.Version(), "actions": actions}
		var cart Cart
		err := c.do(ctx, http.MethodPost, c.cartPath(), body, &cart)
		if err == nil {
			c.observe(cart)
			return cart, nil
		}
		if !errors.Is(err, domain.ErrConflict) && !errors.Is(err, ErrOutcomeUnknown) {
			return Cart{}, err
		}
		if _, rerr := c.Refresh(ctx); rerr != nil {
			return Cart{}, errors.Join(err, rerr)
		}
		if !retry || attempt > 0 || errors.Is(err, ErrOutcomeUnknown) {
			return Cart{}, err
		}
		c.logger.Printf("cartclient: conflict on %s, retrying at version %d", c.sessionKey, c.Version())
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var body struct {
		Message string `json:"message"`
		Errors  []struct {
			Code           string `json:"code"`
			Message        string `json:"message"`
			CurrentVersion *int64 `json:"currentVersion"`
		} `json:"errors"`
	}
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	if err := json.Unmarshal(raw, &body); err != nil {
		return apiErr
	}
	if body.Message != "" {
		apiErr.Message = body.Message
	}
	if len(body.Errors) > 0 {
		apiErr.Code = body.Errors[0].Code
		apiErr.CurrentVersion = body.Errors[0].CurrentVersion
	}
	return apiErr
}

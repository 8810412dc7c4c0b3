package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"food-ordering/internal/cache"
	"food-ordering/internal/domain"
	"food-ordering/internal/versioned"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

type cartRepo interface {
	Get(ctx context.Context, sessionKey string) (*domain.Cart, error)
	CompareAndSwap(ctx context.Context, sessionKey string, expected int64, next *domain.Cart) error
}

type promoValidator interface {
	Validate(ctx context.Context, subtotal decimal.Decimal, code string, at time.Time) (*domain.PromoCode, error)
}

// Service implements the cart mutation protocol. Every mutation names the
// version it was computed against and bumps it by exactly one.
type Service struct {
	repo      cartRepo
	promos    promoValidator
	cache     cache.CartCache
	sfg       singleflight.Group
	logger    *log.Logger
	opTimeout time.Duration
	now       func() time.Time
}

type Options struct {
	Cache            cache.CartCache
	Logger           *log.Logger
	OperationTimeout time.Duration
	Now              func() time.Time
}

func New(repo cartRepo, promos promoValidator, opts Options) *Service {
	s := &Service{
		repo:      repo,
		promos:    promos,
		cache:     opts.Cache,
		logger:    opts.Logger,
		opTimeout: opts.OperationTimeout,
		now:       opts.Now,
	}
	if s.cache == nil {
		s.cache = cache.Noop{}
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type AddItemInput struct {
	ItemRef   string          `json:"itemRef"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type UpdateInput struct {
	Version int64          `json:"version"`
	Actions []UpdateAction `json:"actions"`
}

type UpdateAction struct {
	Action    string           `json:"action"`
	ItemRef   string           `json:"itemRef,omitempty"`
	Name      string           `json:"name,omitempty"`
	Quantity  int              `json:"quantity,omitempty"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
	Code      string           `json:"code,omitempty"`
}

func (s *Service) AddItem(ctx context.Context, sessionKey string, in AddItemInput, expected int64) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, expected, func(c *domain.Cart) error {
		return c.AddItem(strings.TrimSpace(in.ItemRef), in.Name, in.Quantity, in.UnitPrice, s.now())
	})
}

// UpdateQuantity sets the line quantity; 0 removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, sessionKey, itemRef string, quantity int, expected int64) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, expected, func(c *domain.Cart) error {
		return c.SetQuantity(itemRef, quantity)
	})
}

func (s *Service) RemoveItem(ctx context.Context, sessionKey, itemRef string, expected int64) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, expected, func(c *domain.Cart) error {
		return c.RemoveItem(itemRef)
	})
}

// ApplyPromoCode validates code against the cart as of expected and stores
// the code with its rule. The cart keeps the rule, never a discount amount.
func (s *Service) ApplyPromoCode(ctx context.Context, sessionKey, code string, expected int64) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, expected, func(c *domain.Cart) error {
		return s.applyPromo(ctx, c, code)
	})
}

func (s *Service) RemovePromoCode(ctx context.Context, sessionKey string, expected int64) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, expected, func(c *domain.Cart) error {
		return c.RemovePromo()
	})
}

// Clear empties the cart. The version still moves forward.
func (s *Service) Clear(ctx context.Context, sessionKey string, expected int64) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, expected, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
}

// Update applies a batch of actions as a single mutation: one version bump,
// and the first failing action rejects the whole batch.
func (s *Service) Update(ctx context.Context, sessionKey string, in UpdateInput) (*domain.Cart, error) {
	if len(in.Actions) == 0 {
		return nil, fmt.Errorf("%w: actions required", domain.ErrInvalidInput)
	}
	return s.mutate(ctx, sessionKey, in.Version, func(c *domain.Cart) error {
		for i, action := range in.Actions {
			if err := s.applyAction(ctx, c, action); err != nil {
				if errors.Is(err, domain.ErrInvalidInput) {
					return fmt.Errorf("action %d: %w", i, err)
				}
				return err
			}
		}
		return nil
	})
}

func (s *Service) applyAction(ctx context.Context, c *domain.Cart, action UpdateAction) error {
	switch strings.ToLower(strings.TrimSpace(action.Action)) {
	case "additem", "addlineitem":
		if action.UnitPrice == nil {
			return fmt.Errorf("%w: unitPrice required", domain.ErrInvalidInput)
		}
		return c.AddItem(strings.TrimSpace(action.ItemRef), action.Name, action.Quantity, *action.UnitPrice, s.now())
	case "changequantity", "changelineitemquantity":
		return c.SetQuantity(action.ItemRef, action.Quantity)
	case "removeitem", "removelineitem":
		return c.RemoveItem(action.ItemRef)
	case "applypromocode", "adddiscountcode":
		return s.applyPromo(ctx, c, action.Code)
	case "removepromocode", "removediscountcode":
		return c.RemovePromo()
	case "clear":
		c.Clear()
		return nil
	default:
		return fmt.Errorf("%w: unsupported action %q", domain.ErrInvalidInput, action.Action)
	}
}

func (s *Service) applyPromo(ctx context.Context, c *domain.Cart, code string) error {
	if s.promos == nil {
		return domain.ErrPromoInvalid
	}
	p, err := s.promos.Validate(ctx, c.Subtotal(), code, s.now())
	if err != nil {
		return err
	}
	c.ApplyPromo(p.Applied())
	return nil
}

// Get returns the cart for display. A session that never mutated its cart
// reads as an empty cart at version 0.
func (s *Service) Get(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	if strings.TrimSpace(sessionKey) == "" {
		return nil, domain.ErrInvalidInput
	}
	v, err, _ := s.sfg.Do(sessionKey, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, sessionKey)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Printf("cart: cache get session=%s error=%v", sessionKey, err)
		}

		cart, err = s.load(ctx, sessionKey)
		if err != nil {
			return nil, err
		}
		if cart.Version > 0 {
			s.cacheSet(ctx, cart)
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart).Clone(), nil
}

// GetTotal recomputes subtotal, discount and total from the current lines
// and the applied rule.
func (s *Service) GetTotal(ctx context.Context, sessionKey string) (domain.Totals, error) {
	cart, err := s.Get(ctx, sessionKey)
	if err != nil {
		return domain.Totals{}, err
	}
	return cart.Totals(), nil
}

// Snapshot reads the persisted cart, bypassing the cache, and returns an
// immutable copy for checkout.
func (s *Service) Snapshot(ctx context.Context, sessionKey string) (domain.CartSnapshot, error) {
	if strings.TrimSpace(sessionKey) == "" {
		return domain.CartSnapshot{}, domain.ErrInvalidInput
	}
	cart, err := s.load(ctx, sessionKey)
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	return cart.Snapshot(s.now()), nil
}

// Invalidate drops the cached copy. Checkout calls it after clearing the cart.
func (s *Service) Invalidate(ctx context.Context, sessionKey string) {
	if err := s.cache.Delete(ctx, sessionKey); err != nil {
		s.logger.Printf("cart: cache delete session=%s error=%v", sessionKey, err)
	}
}

func (s *Service) load(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, sessionKey)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewCart(sessionKey), nil
	}
	return cart, err
}

func (s *Service) mutate(ctx context.Context, sessionKey string, expected int64, fn versioned.Mutation[*domain.Cart]) (*domain.Cart, error) {
	if strings.TrimSpace(sessionKey) == "" {
		return nil, domain.ErrInvalidInput
	}
	if s.opTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
	}

	now := s.now()
	cart, version, err := versioned.Apply[*domain.Cart](ctx, lazyStore{s}, sessionKey, expected, func(c *domain.Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Printf("cart: conflict session=%s expected=%d current=%d", sessionKey, expected, version)
			s.cacheConflict(ctx, sessionKey, err)
		}
		return nil, err
	}
	s.cacheSet(ctx, cart)
	return cart, nil
}

// cacheConflict replaces whatever the cache holds with the cart the conflict
// was detected against, so a client refetching after the conflict sees at
// least that version.
func (s *Service) cacheConflict(ctx context.Context, sessionKey string, err error) {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		if cart, ok := conflict.Snapshot.(*domain.Cart); ok && cart != nil && cart.Version > 0 {
			s.cacheSet(ctx, cart)
			return
		}
	}
	s.Invalidate(ctx, sessionKey)
}

func (s *Service) cacheSet(ctx context.Context, cart *domain.Cart) {
	if err := s.cache.Set(ctx, cart.SessionKey, cart); err != nil {
		s.logger.Printf("cart: cache set session=%s error=%v", cart.SessionKey, err)
	}
}

// lazyStore presents a missing cart as an empty one at version 0 so the
// first mutation of a session creates it.
type lazyStore struct {
	s *Service
}

func (l lazyStore) Get(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	return l.s.load(ctx, sessionKey)
}

func (l lazyStore) CompareAndSwap(ctx context.Context, sessionKey string, expected int64, next *domain.Cart) error {
	return l.s.repo.CompareAndSwap(ctx, sessionKey, expected, next)
}

package order

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"food-ordering/internal/domain"
	"food-ordering/internal/events"
	"food-ordering/internal/versioned"
	"github.com/google/uuid"
)

type orderRepo interface {
	Insert(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	CompareAndSwap(ctx context.Context, id string, expected int64, next *domain.Order) error
	ListByCustomer(ctx context.Context, customerRef string) ([]domain.Order, error)
}

// Service drives orders through the status table. Events are published only
// after the change is stored; a failed publish is logged, not returned.
type Service struct {
	repo      orderRepo
	publisher events.Publisher
	logger    *log.Logger
	now       func() time.Time
}

func New(repo orderRepo, publisher events.Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if publisher == nil {
		publisher = events.NewHub()
	}
	return &Service{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	CustomerRef     string `json:"customerRef"`
	DeliveryAddress string `json:"deliveryAddress"`
	Notes           string `json:"notes,omitempty"`
	PaymentRef      string `json:"-"`
}

// Build turns a cart snapshot into a pending order without storing it.
func (s *Service) Build(snap domain.CartSnapshot, in CreateInput) (*domain.Order, error) {
	o, err := domain.NewOrder(uuid.NewString(), snap, in.CustomerRef, in.DeliveryAddress, in.Notes, s.now())
	if err != nil {
		return nil, err
	}
	o.PaymentRef = in.PaymentRef
	return o, nil
}

// Create stores a new pending order built from snap.
func (s *Service) Create(ctx context.Context, snap domain.CartSnapshot, in CreateInput) (*domain.Order, error) {
	o, err := s.Build(snap, in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, o); err != nil {
		return nil, err
	}
	s.Created(ctx, o)
	return o.Clone(), nil
}

// Created publishes order.created for an order that is already stored.
func (s *Service) Created(ctx context.Context, o *domain.Order) {
	s.logger.Printf("order: created id=%s customer=%s total=%s", o.ID, o.CustomerRef, o.Total)
	s.publish(ctx, events.New(events.OrderCreated, o.ID, o.CreatedAt, o.Clone()))
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByCustomer(ctx context.Context, customerRef string) ([]domain.Order, error) {
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" {
		return nil, domain.ErrInvalidInput
	}
	return s.repo.ListByCustomer(ctx, customerRef)
}

// NextStatuses returns the order with the statuses it may move to.
func (s *Service) NextStatuses(ctx context.Context, id string) (*domain.Order, []domain.OrderStatus, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return o, domain.NextStatuses(o.Status), nil
}

// StatusChange is the payload of order.status_changed.
type StatusChange struct {
	OrderID string             `json:"orderId"`
	From    domain.OrderStatus `json:"from"`
	To      domain.OrderStatus `json:"to"`
	Actor   string             `json:"actor"`
	Version int64              `json:"version"`
}

// Transition moves order id from the status it had at version expected to
// target. Edges outside the table fail with *domain.IllegalTransitionError
// and leave the order untouched.
func (s *Service) Transition(ctx context.Context, id string, expected int64, target domain.OrderStatus, actor string) (*domain.Order, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor required", domain.ErrInvalidInput)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	var from domain.OrderStatus
	at := s.now()
	o, version, err := versioned.Apply[*domain.Order](ctx, s.repo, id, expected, func(o *domain.Order) error {
		from = o.Status
		return o.Transition(target, actor, at)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("order: id=%s %s -> %s actor=%s version=%d", id, from, target, actor, version)
	s.publish(ctx, events.New(events.OrderStatusChanged, id, at, StatusChange{
		OrderID: id,
		From:    from,
		To:      target,
		Actor:   actor,
		Version: version,
	}))
	return o, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Printf("order: publish %s id=%s error=%v", ev.Type, ev.AggregateID, err)
	}
}

package order

import (
	"context"

	"food-ordering/internal/domain"
)

// Repository stores orders. Lines and totals are written once by Insert;
// CompareAndSwap only persists status, version and new history entries.
type Repository interface {
	Insert(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	CompareAndSwap(ctx context.Context, id string, expected int64, next *domain.Order) error
	ListByCustomer(ctx context.Context, customerRef string) ([]domain.Order, error)
}

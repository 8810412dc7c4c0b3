package order

import (
	"context"
	"sort"

	"food-ordering/internal/domain"
	"food-ordering/internal/versioned"
)

type Memory struct {
	*versioned.MemoryStore[*domain.Order]
}

func NewMemory() *Memory {
	return &Memory{MemoryStore: versioned.NewMemoryStore[*domain.Order]()}
}

func (m *Memory) Insert(ctx context.Context, order *domain.Order) error {
	return m.MemoryStore.Insert(ctx, order.ID, order)
}

// ListByCustomer returns the customer's orders, newest first.
func (m *Memory) ListByCustomer(ctx context.Context, customerRef string) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.Order
	m.Range(func(o *domain.Order) bool {
		if o.CustomerRef == customerRef {
			result = append(result, *o)
		}
		return true
	})
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

package cart

import (
	"food-ordering/internal/domain"
	"food-ordering/internal/versioned"
)

// Memory keeps carts in process. SwapWith is used by checkout to clear the
// cart and record the order in one critical section.
type Memory struct {
	*versioned.MemoryStore[*domain.Cart]
}

func NewMemory() *Memory {
	return &Memory{MemoryStore: versioned.NewMemoryStore[*domain.Cart]()}
}

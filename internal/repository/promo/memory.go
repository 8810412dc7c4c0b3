package promo

import (
	"context"
	"sync"
	"sync/atomic"

	"food-ordering/internal/domain"
)

type memoryEntry struct {
	promo   atomic.Pointer[domain.PromoCode]
	current atomic.Int64
}

// Memory keeps promo definitions in a map and each redemption counter in its
// own atomic, so redemptions of different codes never contend.
type Memory struct {
	mu    sync.RWMutex
	codes map[string]*memoryEntry
}

func NewMemory() *Memory {
	return &Memory{codes: make(map[string]*memoryEntry)}
}

func (m *Memory) entry(code string) (*memoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.codes[domain.NormalizePromoCode(code)]
	return e, ok
}

func (m *Memory) Lookup(ctx context.Context, code string) (*domain.PromoCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := m.entry(code)
	if !ok {
		return nil, domain.ErrNotFound
	}
	p := *e.promo.Load()
	p.CurrentRedemptions = e.current.Load()
	return &p, nil
}

func (m *Memory) Redeem(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := m.entry(code)
	if !ok {
		return domain.ErrNotFound
	}
	for {
		cur := e.current.Load()
		if cur >= e.promo.Load().MaxRedemptions {
			return domain.ErrPromoExhausted
		}
		if e.current.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

func (m *Memory) Release(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := m.entry(code)
	if !ok {
		return domain.ErrNotFound
	}
	for {
		cur := e.current.Load()
		if cur <= 0 {
			return nil
		}
		if e.current.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

// Upsert replaces the definition of a code in place, so redemptions racing
// with it land on the same counter. The count only moves up to an incoming
// higher value.
func (m *Memory) Upsert(ctx context.Context, promo domain.PromoCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	promo.Code = domain.NormalizePromoCode(promo.Code)
	if promo.Code == "" || !promo.Rule.Valid() {
		return domain.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.codes[promo.Code]
	if !ok {
		e = &memoryEntry{}
		m.codes[promo.Code] = e
	}
	def := promo
	e.promo.Store(&def)
	for {
		cur := e.current.Load()
		if cur >= promo.CurrentRedemptions || e.current.CompareAndSwap(cur, promo.CurrentRedemptions) {
			return nil
		}
	}
}

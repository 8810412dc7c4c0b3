// Package checkout persists the end of a checkout: the cart is cleared with a
// compare-and-swap and the order is inserted, both or neither.
package checkout

import (
	"context"
	"io"
	"log"

	"food-ordering/internal/db"
	"food-ordering/internal/domain"
	cartrepo "food-ordering/internal/repository/cart"
	orderrepo "food-ordering/internal/repository/order"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Committer clears the cart at version expected (writing cleared) and
// records order in one atomic unit. A stale version yields a
// *domain.ConflictError and nothing is written.
type Committer interface {
	Commit(ctx context.Context, sessionKey string, expected int64, cleared *domain.Cart, order *domain.Order) error
}

type memoryCommitter struct {
	carts  *cartrepo.Memory
	orders *orderrepo.Memory
}

func NewMemory(carts *cartrepo.Memory, orders *orderrepo.Memory) Committer {
	return &memoryCommitter{carts: carts, orders: orders}
}

func (c *memoryCommitter) Commit(ctx context.Context, sessionKey string, expected int64, cleared *domain.Cart, order *domain.Order) error {
	return c.carts.SwapWith(ctx, sessionKey, expected, cleared, func() error {
		return c.orders.Insert(ctx, order)
	})
}

type postgresCommitter struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Committer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresCommitter{pool: pool, logger: logger}
}

func (c *postgresCommitter) Commit(ctx context.Context, sessionKey string, expected int64, cleared *domain.Cart, order *domain.Order) error {
	err := db.InTx(ctx, c.pool, func(tx pgx.Tx) error {
		if err := cartrepo.SwapTx(ctx, tx, sessionKey, expected, cleared); err != nil {
			c.logger.Printf("checkout commit: session=%s cart swap error=%v", sessionKey, err)
			return err
		}
		if err := orderrepo.InsertTx(ctx, tx, order); err != nil {
			c.logger.Printf("checkout commit: session=%s order=%s insert error=%v", sessionKey, order.ID, err)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Printf("checkout commit: session=%s order=%s cart_version=%d", sessionKey, order.ID, cleared.Version)
	return nil
}

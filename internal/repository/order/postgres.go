package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"food-ordering/internal/db"
	"food-ordering/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Insert(ctx context.Context, order *domain.Order) error {
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		return InsertTx(ctx, tx, order)
	})
	if err != nil {
		r.logger.Printf("order repo: insert id=%s error=%v", order.ID, err)
		return err
	}
	r.logger.Printf("order repo: inserted id=%s customer=%s total=%s", order.ID, order.CustomerRef, order.Total)
	return nil
}

// InsertTx writes the order, its lines and its initial history inside an
// existing transaction.
func InsertTx(ctx context.Context, q db.Querier, order *domain.Order) error {
	_, err := q.Exec(ctx, `
INSERT INTO orders (id, customer_ref, session_key, subtotal, discount, total, promo_code, payment_ref, delivery_address, notes, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14)
`,
		order.ID,
		order.CustomerRef,
		order.SessionKey,
		db.Numeric(order.Subtotal),
		db.Numeric(order.Discount),
		db.Numeric(order.Total),
		order.PromoCode,
		order.PaymentRef,
		order.DeliveryAddress,
		order.Notes,
		string(order.Status),
		order.Version,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &domain.ConflictError{Key: order.ID, Expected: order.Version}
		}
		return fmt.Errorf("insert order: %w", err)
	}
	for i, line := range order.Lines {
		if _, err := q.Exec(ctx, `
INSERT INTO order_lines (order_id, position, item_ref, name, unit_price, quantity)
VALUES ($1, $2, $3, $4, $5::numeric, $6)
`, order.ID, i, line.ItemRef, line.Name, db.Numeric(line.UnitPrice), line.Quantity); err != nil {
			return fmt.Errorf("insert order line %s: %w", line.ItemRef, err)
		}
	}
	return writeHistory(ctx, q, order)
}

// writeHistory appends entries that are not stored yet. History is
// append-only, so existing (order_id, seq) rows are left alone.
func writeHistory(ctx context.Context, q db.Querier, order *domain.Order) error {
	for i, entry := range order.StatusHistory {
		if _, err := q.Exec(ctx, `
INSERT INTO order_status_history (order_id, seq, status, actor, at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id, seq) DO NOTHING
`, order.ID, i, string(entry.Status), entry.Actor, entry.At); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
	}
	return nil
}

func (r *postgresRepo) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := fetchOrder(ctx, r.pool, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Printf("order repo: get id=%s error=%v", id, err)
		}
		return nil, err
	}
	return order, nil
}

func (r *postgresRepo) CompareAndSwap(ctx context.Context, id string, expected int64, next *domain.Order) error {
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
UPDATE orders
SET status = $3, version = $4, updated_at = $5
WHERE id = $1 AND version = $2
`, id, expected, string(next.Status), next.Version, next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			var current int64
			err := tx.QueryRow(ctx, `SELECT version FROM orders WHERE id = $1`, id).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("read order version: %w", err)
			}
			return &domain.ConflictError{Key: id, Expected: expected, Current: current}
		}
		return writeHistory(ctx, tx, next)
	})
	if err != nil {
		return err
	}
	r.logger.Printf("order repo: id=%s status=%s version=%d", id, next.Status, next.Version)
	return nil
}

func (r *postgresRepo) ListByCustomer(ctx context.Context, customerRef string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id::text
FROM orders
WHERE customer_ref = $1
ORDER BY created_at DESC
`, customerRef)
	if err != nil {
		r.logger.Printf("order repo: list customer=%s error=%v", customerRef, err)
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := fetchOrder(ctx, r.pool, id)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	r.logger.Printf("order repo: list customer=%s count=%d", customerRef, len(result))
	return result, nil
}

func fetchOrder(ctx context.Context, q db.Querier, id string) (*domain.Order, error) {
	var o domain.Order
	var subtotal, discount, total, status string
	err := q.QueryRow(ctx, `
SELECT id::text, customer_ref, session_key, subtotal::text, discount::text, total::text, promo_code, payment_ref, delivery_address, notes, status, version, created_at, updated_at
FROM orders
WHERE id = $1
`, id).Scan(
		&o.ID,
		&o.CustomerRef,
		&o.SessionKey,
		&subtotal,
		&discount,
		&total,
		&o.PromoCode,
		&o.PaymentRef,
		&o.DeliveryAddress,
		&o.Notes,
		&status,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	if o.Subtotal, err = db.ParseNumeric(subtotal); err != nil {
		return nil, err
	}
	if o.Discount, err = db.ParseNumeric(discount); err != nil {
		return nil, err
	}
	if o.Total, err = db.ParseNumeric(total); err != nil {
		return nil, err
	}

	lines, err := q.Query(ctx, `
SELECT item_ref, name, unit_price::text, quantity
FROM order_lines
WHERE order_id = $1
ORDER BY position ASC
`, id)
	if err != nil {
		return nil, err
	}
	for lines.Next() {
		var line domain.OrderLine
		var price string
		if err := lines.Scan(&line.ItemRef, &line.Name, &price, &line.Quantity); err != nil {
			lines.Close()
			return nil, err
		}
		if line.UnitPrice, err = db.ParseNumeric(price); err != nil {
			lines.Close()
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}
	lines.Close()
	if err := lines.Err(); err != nil {
		return nil, err
	}

	history, err := q.Query(ctx, `
SELECT status, actor, at
FROM order_status_history
WHERE order_id = $1
ORDER BY seq ASC
`, id)
	if err != nil {
		return nil, err
	}
	defer history.Close()
	for history.Next() {
		var entry domain.StatusEntry
		var s string
		if err := history.Scan(&s, &entry.Actor, &entry.At); err != nil {
			return nil, err
		}
		entry.Status = domain.OrderStatus(s)
		o.StatusHistory = append(o.StatusHistory, entry)
	}
	if err := history.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

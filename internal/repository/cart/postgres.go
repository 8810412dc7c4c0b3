package cart

import (
	"context"
	"errors"
	"fmt"

	"food-ordering/internal/db"
	"food-ordering/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) Get(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	return fetchCart(ctx, r.pool, sessionKey)
}

func (r *postgresRepo) CompareAndSwap(ctx context.Context, sessionKey string, expected int64, next *domain.Cart) error {
	return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		return SwapTx(ctx, tx, sessionKey, expected, next)
	})
}

// SwapTx performs the versioned write inside an existing transaction. The
// guarded UPDATE (or the insert for expected == 0) is the compare-and-swap:
// a concurrent writer with the same base version finds zero rows.
func SwapTx(ctx context.Context, q db.Querier, sessionKey string, expected int64, next *domain.Cart) error {
	var promoCode, ruleKind, ruleValue, minOrder *string
	if next.Promo != nil {
		code := next.Promo.Code
		kind := string(next.Promo.Rule.Kind)
		value := db.Numeric(next.Promo.Rule.Value)
		minAmount := db.Numeric(next.Promo.MinOrderAmount)
		promoCode, ruleKind, ruleValue, minOrder = &code, &kind, &value, &minAmount
	}

	var affected int64
	if expected == 0 {
		cmd, err := q.Exec(ctx, `
INSERT INTO carts (session_key, promo_code, promo_rule_kind, promo_rule_value, promo_min_order, version, created_at, updated_at)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)
ON CONFLICT (session_key) DO NOTHING
`, sessionKey, promoCode, ruleKind, ruleValue, minOrder, next.Version, next.CreatedAt, next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert cart: %w", err)
		}
		affected = cmd.RowsAffected()
	} else {
		cmd, err := q.Exec(ctx, `
UPDATE carts
SET promo_code = $3,
    promo_rule_kind = $4,
    promo_rule_value = $5::numeric,
    promo_min_order = $6::numeric,
    version = $7,
    updated_at = $8
WHERE session_key = $1 AND version = $2
`, sessionKey, expected, promoCode, ruleKind, ruleValue, minOrder, next.Version, next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update cart: %w", err)
		}
		affected = cmd.RowsAffected()
	}
	if affected == 0 {
		return conflict(ctx, q, sessionKey, expected)
	}

	if _, err := q.Exec(ctx, `DELETE FROM cart_lines WHERE session_key = $1`, sessionKey); err != nil {
		return fmt.Errorf("delete cart lines: %w", err)
	}
	for i, line := range next.Lines {
		if _, err := q.Exec(ctx, `
INSERT INTO cart_lines (session_key, item_ref, name, unit_price, quantity, position, added_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
`, sessionKey, line.ItemRef, line.Name, db.Numeric(line.UnitPrice), line.Quantity, i, line.AddedAt); err != nil {
			return fmt.Errorf("insert cart line %s: %w", line.ItemRef, err)
		}
	}
	return nil
}

func conflict(ctx context.Context, q db.Querier, sessionKey string, expected int64) error {
	var current int64
	err := q.QueryRow(ctx, `SELECT version FROM carts WHERE session_key = $1`, sessionKey).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read cart version: %w", err)
	}
	return &domain.ConflictError{Key: sessionKey, Expected: expected, Current: current}
}

func fetchCart(ctx context.Context, q db.Querier, sessionKey string) (*domain.Cart, error) {
	const cartQuery = `
SELECT session_key, promo_code, promo_rule_kind, promo_rule_value::text, promo_min_order::text, version, created_at, updated_at
FROM carts
WHERE session_key = $1
`
	var cart domain.Cart
	var promoCode, ruleKind, ruleValue, minOrder *string
	err := q.QueryRow(ctx, cartQuery, sessionKey).Scan(
		&cart.SessionKey,
		&promoCode,
		&ruleKind,
		&ruleValue,
		&minOrder,
		&cart.Version,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if promoCode != nil && ruleKind != nil && ruleValue != nil && minOrder != nil {
		value, err := db.ParseNumeric(*ruleValue)
		if err != nil {
			return nil, err
		}
		minAmount, err := db.ParseNumeric(*minOrder)
		if err != nil {
			return nil, err
		}
		cart.Promo = &domain.AppliedPromo{
			Code:           *promoCode,
			Rule:           domain.DiscountRule{Kind: domain.DiscountKind(*ruleKind), Value: value},
			MinOrderAmount: minAmount,
		}
	}

	const linesQuery = `
SELECT item_ref, name, unit_price::text, quantity, added_at
FROM cart_lines
WHERE session_key = $1
ORDER BY position ASC
`
	rows, err := q.Query(ctx, linesQuery, sessionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		var price string
		if err := rows.Scan(&line.ItemRef, &line.Name, &price, &line.Quantity, &line.AddedAt); err != nil {
			return nil, err
		}
		if line.UnitPrice, err = db.ParseNumeric(price); err != nil {
			return nil, err
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &cart, nil
}

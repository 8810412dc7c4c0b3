package promo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"food-ordering/internal/db"
	"food-ordering/internal/domain"
	"github.com/jackc/pgx/v5"
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

func (r *postgresRepo) Lookup(ctx context.Context, code string) (*domain.PromoCode, error) {
	const q = `
SELECT code, rule_kind, rule_value::text, min_order_amount::text, valid_from, valid_to, max_redemptions, current_redemptions, created_at
FROM promo_codes
WHERE code = $1
`
	var p domain.PromoCode
	var kind, value, minOrder string
	var validFrom, validTo *time.Time
	err := r.pool.QueryRow(ctx, q, domain.NormalizePromoCode(code)).Scan(
		&p.Code,
		&kind,
		&value,
		&minOrder,
		&validFrom,
		&validTo,
		&p.MaxRedemptions,
		&p.CurrentRedemptions,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("promo repo: lookup code=%s error=%v", code, err)
		return nil, err
	}
	p.Rule.Kind = domain.DiscountKind(kind)
	if p.Rule.Value, err = db.ParseNumeric(value); err != nil {
		return nil, err
	}
	if p.MinOrderAmount, err = db.ParseNumeric(minOrder); err != nil {
		return nil, err
	}
	if validFrom != nil {
		p.ValidFrom = *validFrom
	}
	if validTo != nil {
		p.ValidTo = *validTo
	}
	return &p, nil
}

func (r *postgresRepo) Redeem(ctx context.Context, code string) error {
	code = domain.NormalizePromoCode(code)
	cmd, err := r.pool.Exec(ctx, `
UPDATE promo_codes
SET current_redemptions = current_redemptions + 1
WHERE code = $1 AND current_redemptions < max_redemptions
`, code)
	if err != nil {
		return fmt.Errorf("redeem promo: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.Lookup(ctx, code); err != nil {
			return err
		}
		return domain.ErrPromoExhausted
	}
	r.logger.Printf("promo repo: redeemed code=%s", code)
	return nil
}

func (r *postgresRepo) Release(ctx context.Context, code string) error {
	code = domain.NormalizePromoCode(code)
	_, err := r.pool.Exec(ctx, `
UPDATE promo_codes
SET current_redemptions = current_redemptions - 1
WHERE code = $1 AND current_redemptions > 0
`, code)
	if err != nil {
		return fmt.Errorf("release promo: %w", err)
	}
	r.logger.Printf("promo repo: released code=%s", code)
	return nil
}

func (r *postgresRepo) Upsert(ctx context.Context, promo domain.PromoCode) error {
	promo.Code = domain.NormalizePromoCode(promo.Code)
	if promo.Code == "" || !promo.Rule.Valid() {
		return domain.ErrInvalidInput
	}
	const q = `
INSERT INTO promo_codes (code, rule_kind, rule_value, min_order_amount, valid_from, valid_to, max_redemptions, current_redemptions)
VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8)
ON CONFLICT (code) DO UPDATE SET
    rule_kind = EXCLUDED.rule_kind,
    rule_value = EXCLUDED.rule_value,
    min_order_amount = EXCLUDED.min_order_amount,
    valid_from = EXCLUDED.valid_from,
    valid_to = EXCLUDED.valid_to,
    max_redemptions = EXCLUDED.max_redemptions,
    current_redemptions = GREATEST(promo_codes.current_redemptions, EXCLUDED.current_redemptions)
`
	_, err := r.pool.Exec(ctx, q,
		promo.Code,
		string(promo.Rule.Kind),
		db.Numeric(promo.Rule.Value),
		db.Numeric(promo.MinOrderAmount),
		nullTime(promo.ValidFrom),
		nullTime(promo.ValidTo),
		promo.MaxRedemptions,
		promo.CurrentRedemptions,
	)
	if err != nil {
		r.logger.Printf("promo repo: upsert code=%s error=%v", promo.Code, err)
		return err
	}
	r.logger.Printf("promo repo: upserted code=%s kind=%s value=%s", promo.Code, promo.Rule.Kind, promo.Rule.Value)
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

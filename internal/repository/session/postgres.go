package session

import (
	"context"
	"errors"

	"food-ordering/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) Create(ctx context.Context, s Session) error {
	const q = `
INSERT INTO sessions (session_key, expires_at, created_at)
VALUES ($1, $2, $3)
`
	_, err := r.pool.Exec(ctx, q, s.Key, s.ExpiresAt, s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &domain.ConflictError{Key: s.Key}
		}
		return err
	}
	return nil
}

func (r *postgresRepo) Get(ctx context.Context, key string) (*Session, error) {
	const q = `
SELECT session_key, expires_at, created_at
FROM sessions
WHERE session_key = $1
LIMIT 1
`
	var out Session
	if err := r.pool.QueryRow(ctx, q, key).Scan(&out.Key, &out.ExpiresAt, &out.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *postgresRepo) Delete(ctx context.Context, key string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE session_key = $1`, key)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

package session

import (
	"context"
	"time"
)

type Session struct {
	Key       string    `json:"sessionKey"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type Repository interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, key string) (*Session, error)
	Delete(ctx context.Context, key string) error
}

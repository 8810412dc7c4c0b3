package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"food-ordering/internal/domain"
	sessionrepo "food-ordering/internal/repository/session"
)

var ErrInvalidSession = errors.New("invalid session")

type sessionRepo interface {
	Create(ctx context.Context, s sessionrepo.Session) error
	Get(ctx context.Context, key string) (*sessionrepo.Session, error)
	Delete(ctx context.Context, key string) error
}

// Service issues the opaque keys carts are stored under.
type Service struct {
	repo sessionRepo
	ttl  time.Duration
	now  func() time.Time
}

func New(repo sessionRepo, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Service{repo: repo, ttl: ttl, now: time.Now}
}

func (s *Service) Issue(ctx context.Context) (*sessionrepo.Session, error) {
	key, err := randomKey()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := sessionrepo.Session{Key: key, ExpiresAt: now.Add(s.ttl), CreatedAt: now}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Validate returns ErrInvalidSession for unknown or expired keys. Expired
// sessions are removed.
func (s *Service) Validate(ctx context.Context, key string) error {
	sess, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrInvalidSession
		}
		return err
	}
	if s.now().After(sess.ExpiresAt) {
		_ = s.repo.Delete(ctx, key)
		return ErrInvalidSession
	}
	return nil
}

func (s *Service) TTLSeconds() int {
	return int(s.ttl.Seconds())
}

func randomKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

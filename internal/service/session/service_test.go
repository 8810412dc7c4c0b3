package session

import (
	"context"
	"testing"
	"time"

	sessionrepo "food-ordering/internal/repository/session"
)

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := New(sessionrepo.NewMemory(), time.Hour)

	sess, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(sess.Key) != 32 {
		t.Fatalf("unexpected key length %d", len(sess.Key))
	}
	if err := svc.Validate(ctx, sess.Key); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	other, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if other.Key == sess.Key {
		t.Fatalf("expected distinct keys")
	}
}

func TestValidate_UnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	repo := sessionrepo.NewMemory()
	svc := New(repo, time.Minute)

	if err := svc.Validate(ctx, "nope"); err != ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	sess, err := svc.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := svc.Validate(ctx, sess.Key); err != ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession for expired session, got %v", err)
	}
	if _, err := repo.Get(ctx, sess.Key); err == nil {
		t.Fatalf("expected expired session to be removed")
	}
}

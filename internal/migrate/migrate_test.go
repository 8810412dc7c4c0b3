package migrate

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

const latestVersion = 4

func TestApplyRollbackVersion(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := Apply(ctx, pool); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v, dirty, err := Version(ctx, pool); err != nil || dirty || v != latestVersion {
		t.Fatalf("version after apply = %d dirty=%t err=%v, want %d", v, dirty, err, latestVersion)
	}

	// The sessions table is the newest migration and no other package's
	// tests depend on it.
	if err := Rollback(ctx, pool, 1); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if v, _, err := Version(ctx, pool); err != nil || v != latestVersion-1 {
		t.Fatalf("version after rollback = %d err=%v, want %d", v, err, latestVersion-1)
	}

	if err := Apply(ctx, pool); err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if err := Apply(ctx, pool); err != nil {
		t.Fatalf("apply with no change should succeed: %v", err)
	}
}

func TestRollbackRejectsNonPositiveSteps(t *testing.T) {
	if err := Rollback(context.Background(), nil, 0); err == nil {
		t.Fatal("expected error for zero steps")
	}
}

// Package pgtest opens the disposable database used by integration tests.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront/internal/postgres"
)

// DSNEnv names the variable that points integration tests at a disposable database.
const DSNEnv = "STOREFRONT_TEST_DSN"

// lockKey serializes test packages that share the database.
const lockKey = 0x5f0e

// Open connects to the test database, migrates it and truncates every table.
// The test is skipped when no DSN is configured.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", DSNEnv)
	}
	ctx := context.Background()

	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	lock, err := db.Acquire(ctx)
	if err != nil {
		db.Close()
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := lock.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockKey); err != nil {
		lock.Release()
		db.Close()
		t.Fatalf("advisory lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = lock.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey)
		lock.Release()
		db.Close()
	})

	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := postgres.Migrate(mctx, db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	_, err = db.Exec(mctx, `TRUNCATE order_snapshots, order_item_snapshots, orders,
		product_reviews, product_images, products, categories, users RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate test db: %v", err)
	}
	return db
}

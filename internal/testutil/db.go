// Package testutil holds helpers for tests that need a real Postgres.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kjannette/trahn-treasury/internal/db"
	"github.com/rs/zerolog"
)

// TestDSN resolves the integration database: TEST_DATABASE_URL first, then
// the same DB_* variables the server reads, with the test database name.
func TestDSN() string {
	_ = godotenv.Load("../../.env")
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		EnvOr("DB_USER", "postgres"),
		EnvOr("DB_PASSWORD", ""),
		EnvOr("DB_HOST", "localhost"),
		EnvOr("DB_PORT", "5432"),
		EnvOr("TEST_DB_NAME", "trahn_treasury_test"))
}

// SetupPool connects to the integration database and applies migrations.
// The test is skipped when no database is reachable.
func SetupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, TestDSN())
	if err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool, zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// Truncate empties tables so counts start from zero.
func Truncate(t *testing.T, pool *pgxpool.Pool, tables ...string) {
	t.Helper()
	if len(tables) == 0 {
		return
	}
	sql := "TRUNCATE " + strings.Join(tables, ", ") + " RESTART IDENTITY"
	if _, err := pool.Exec(context.Background(), sql); err != nil {
		t.Fatalf("truncate %v: %v", tables, err)
	}
}

func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

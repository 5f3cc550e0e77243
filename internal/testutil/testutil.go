// Package testutil provides a throwaway Postgres schema for integration
// tests. Tests skip unless TEST_POSTGRES_DSN is set.
package testutil

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/jobsync/internal/db"
)

//go:embed schema.sql
var schemaSQL string

// Pool returns a pool whose search_path points at a fresh schema holding
// the fixture tables. The schema is dropped when the test ends.
func Pool(tb testing.TB) *pgxpool.Pool {
	tb.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run Postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := "jobsync_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		tb.Fatalf("connect: %v", err)
	}
	if _, err := admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema)); err != nil {
		admin.Close()
		tb.Fatalf("create schema: %v", err)
	}

	pool, err := db.NewPostgresPool(ctx, dsn, schema, 5)
	if err != nil {
		admin.Close()
		tb.Fatalf("open pool: %v", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		admin.Close()
		tb.Fatalf("apply schema: %v", err)
	}

	tb.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		admin.Close()
	})
	return pool
}

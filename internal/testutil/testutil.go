package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...interface{})
	Skipf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Logf(format string, args ...interface{})
	Cleanup(func())
}

// SetupTestRedis starts an in-process Redis and returns a client bound to it.
// Both are closed when the test ends.
func SetupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	opts, err := redis.ParseURL("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("parse miniredis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: close redis client: %v", cerr)
		}
	})
	return client, mr
}

// SetupTestFeedDB connects to the feed database named by TEST_FEED_DATABASE_URL.
// Tests are skipped when it is unset or unreachable, unless TEST_REQUIRE_DB is set.
func SetupTestFeedDB(t TestingTB) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_FEED_DATABASE_URL")
	if dsn == "" {
		if requireDB() {
			t.Fatal("TEST_FEED_DATABASE_URL is required")
		}
		t.Skip("TEST_FEED_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		if requireDB() {
			t.Fatalf("open feed database: %v", err)
		}
		t.Skipf("feed database not available: %v", err)
	}
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		if requireDB() {
			t.Fatalf("ping feed database: %v", pingErr)
		}
		t.Skipf("feed database not available: %v", pingErr)
	}
	t.Cleanup(pool.Close)
	return pool
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func requireDB() bool { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }

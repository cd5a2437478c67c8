// Package testutil holds helpers shared by integration tests. Tests using it
// are behind the integration build tag and skip when TEST_DATABASE_URL or
// TEST_REDIS_URL is unset.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/florascope/florascope/internal/model"
	"github.com/florascope/florascope/migrations"
)

// schemaLockKey serialises packages that reset the shared test database.
const schemaLockKey int64 = 0x666c6f7261 // "flora"

// RequireEnv returns the variable or skips the test.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

// FreshSchema takes a session advisory lock for the rest of the test and
// rebuilds every table from the embedded migrations. `go test ./...` runs
// packages in parallel against one database, hence the lock.
func FreshSchema(t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		conn.Release()
		t.Fatalf("advisory lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLockKey)
		conn.Release()
	})

	if err := migrations.Reset(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
}

// NewRedis connects to TEST_REDIS_URL, empties the database and closes the
// client on cleanup.
func NewRedis(t testing.TB) *redis.Client {
	t.Helper()
	opts, err := redis.ParseURL(RequireEnv(t, "TEST_REDIS_URL"))
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

// Identification returns a stored-ready Monstera identification for userID.
func Identification(userID string) *model.Identification {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Identification{
		ID:             ulid.Make().String(),
		UserID:         userID,
		ImageURL:       "data:image/jpeg;base64,/9j/4AAQ",
		ImageDigest:    strings.ToLower(ulid.Make().String()),
		ScientificName: "Monstera deliciosa",
		CommonName:     "Swiss cheese plant",
		CommonNames:    []string{"Swiss cheese plant"},
		Confidence:     87,
		Family:         "Araceae",
		Description:    model.DefaultDescription,
		Origin:         "Southern Mexico",
		Type:           "Houseplant",
		Provider:       "plantid",
		CreatedAt:      now,
	}
}

// Package integration runs the domain modules against a real Postgres.
// Set ROLLCARE_TEST_DATABASE_URL to enable it; every run migrates into a
// fresh schema that is dropped afterwards.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rollcare/rollcare/internal/platform/db"
)

var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	url := os.Getenv("ROLLCARE_TEST_DATABASE_URL")
	if url == "" {
		fmt.Fprintln(os.Stderr, "ROLLCARE_TEST_DATABASE_URL not set, skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()
	pool, cleanup, err := setupSchema(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test schema: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupSchema creates a throwaway schema, points a pool at it through
// search_path and applies every migration.
func setupSchema(ctx context.Context, url string) (*pgxpool.Pool, func(), error) {
	schema := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	admin, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		return nil, nil, fmt.Errorf("create schema: %w", err)
	}
	dropSchema := func() {
		if _, err := admin.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to drop schema %s: %v\n", schema, err)
		}
		admin.Close()
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		dropSchema()
		return nil, nil, fmt.Errorf("parse url: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		dropSchema()
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	if _, err := db.NewMigrator(pool, os.DirFS(findMigrationsDir())).Up(ctx); err != nil {
		pool.Close()
		dropSchema()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return pool, func() {
		pool.Close()
		dropSchema()
	}, nil
}

// findMigrationsDir locates the migrations directory relative to this test file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// uniqueEmail keeps tests independent of each other inside the shared schema.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.fr", prefix, uuid.NewString()[:8])
}

func TestMigrator_StatusAfterUp(t *testing.T) {
	statuses, err := db.NewMigrator(globalPool, os.DirFS(findMigrationsDir())).Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) == 0 {
		t.Fatal("no migrations found")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %d %s not applied", s.Version, s.Name)
		}
	}
}

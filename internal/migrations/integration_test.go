//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Runs against a throwaway database created next to SQLSIGHT_TEST_METADATA_DSN.
func TestRunnerStepsThroughHistorySchema(t *testing.T) {
	db := openScratchDatabase(t)
	runner := NewRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if applied, err := runner.Up(ctx, db, 1); err != nil || applied != 1 {
		t.Fatalf("Up(steps=1) = %d, %v", applied, err)
	}
	requireColumn(t, db, "query_history", "question", true)
	requireColumn(t, db, "query_history", "cached", false)

	statuses, err := runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(statuses) < 2 || !statuses[0].Applied || statuses[1].Applied {
		t.Fatalf("Status() after one step = %+v", statuses)
	}

	rest, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	requireColumn(t, db, "query_history", "cached", true)
	requireColumn(t, db, "query_history", "corrections", true)
	if again, err := runner.Up(ctx, db, 0); err != nil || again != 0 {
		t.Fatalf("second Up() = %d, %v; want a no-op", again, err)
	}

	if rolledBack, err := runner.Down(ctx, db, 1); err != nil || rolledBack != 1 {
		t.Fatalf("Down(steps=1) = %d, %v", rolledBack, err)
	}
	requireColumn(t, db, "query_history", "cached", false)

	if rolledBack, err := runner.Down(ctx, db, rest); err != nil || rolledBack != rest {
		t.Fatalf("Down(steps=%d) = %d, %v", rest, rolledBack, err)
	}
	requireColumn(t, db, "query_history", "question", false)
}

func openScratchDatabase(t *testing.T) *sql.DB {
	t.Helper()
	adminDSN := strings.TrimSpace(os.Getenv("SQLSIGHT_TEST_METADATA_DSN"))
	if adminDSN == "" {
		t.Skip("SQLSIGHT_TEST_METADATA_DSN is not set")
	}
	parsed, err := url.Parse(adminDSN)
	if err != nil || strings.TrimPrefix(parsed.Path, "/") == "" {
		t.Fatalf("SQLSIGHT_TEST_METADATA_DSN must be a URL with a database name: %v", err)
	}

	admin, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("open admin database: %v", err)
	}
	name := fmt.Sprintf("sqlsight_migrations_%d", time.Now().UnixNano())
	if _, err := admin.Exec(`CREATE DATABASE ` + name); err != nil {
		_ = admin.Close()
		t.Fatalf("create scratch database: %v", err)
	}

	scratch := *parsed
	scratch.Path = "/" + name
	db, err := sql.Open("pgx", scratch.String())
	if err != nil {
		t.Fatalf("open scratch database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		_, _ = admin.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name)
		if _, err := admin.Exec(`DROP DATABASE ` + name); err != nil {
			t.Errorf("drop scratch database: %v", err)
		}
		_ = admin.Close()
	})
	return db
}

func requireColumn(t *testing.T, db *sql.DB, table, column string, want bool) {
	t.Helper()
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2`,
		table, column,
	).Scan(&count)
	if err != nil {
		t.Fatalf("look up %s.%s: %v", table, column, err)
	}
	if got := count > 0; got != want {
		t.Fatalf("column %s.%s exists = %v, want %v", table, column, got, want)
	}
}

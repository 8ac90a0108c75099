package sqlsightimport

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sqlsight/sqlsight/internal/storage"
	"github.com/sqlsight/sqlsight/internal/warehouse/sqldb"
)

const licensesCSV = "Region,Licenses,Issue Date\nRiyadh,10,2024-01-05\nJeddah,20,2024-02-10\n,,\nRiyadh,10,2024-01-05\n"

func TestRunLoadsCSVIntoWarehouse(t *testing.T) {
	path := writeTempFile(t, "licenses.csv", licensesCSV)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "licenses" CASCADE`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "licenses" (`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "licenses" ("region", "licenses", "issue_date") VALUES`)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectClose()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"--file", path, "--table", "licenses"}, Options{
		OpenDB: func(context.Context) (*sql.DB, sqldb.Dialect, error) {
			return db, sqldb.Postgres, nil
		},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, stderr.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}

	var out report
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout.String())
	}
	if out.Rows != 2 || out.Load == nil || out.Load.Imported != 2 || out.Load.Skipped != 0 {
		t.Fatalf("report = %+v", out)
	}
	if len(out.SnapshotKeys) != 0 {
		t.Fatalf("unexpected snapshot keys %v", out.SnapshotKeys)
	}
}

func TestRunPublishesSnapshotFromObjectStore(t *testing.T) {
	store := storage.NewMemoryStore()
	if _, err := storage.Upload(context.Background(), store, "uploads/licenses.csv", []byte(licensesCSV), "text/csv"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--object-key", "uploads/licenses.csv",
		"--table", "licenses",
		"--snapshot", "--skip-load",
	}, Options{
		OpenStore: func(context.Context) (storage.ObjectStore, error) { return store, nil },
		Now:       func() time.Time { return at },
		Stdout:    &stdout,
		Stderr:    &stderr,
	})
	if code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, stderr.String())
	}

	var out report
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if out.Load != nil || len(out.SnapshotKeys) != 2 {
		t.Fatalf("report = %+v", out)
	}
	for _, key := range out.SnapshotKeys {
		info, err := store.Stat(context.Background(), key)
		if err != nil {
			t.Fatalf("Stat(%s) error = %v", key, err)
		}
		if info.Size == 0 {
			t.Fatalf("snapshot %s is empty", key)
		}
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := map[string][]string{
		"no source":            {},
		"both sources":         {"--file", "a.csv", "--object-key", "b.csv"},
		"skip without target":  {"--file", "a.csv", "--skip-load"},
		"unknown flag":         {"--file", "a.csv", "--bogus"},
		"demo and file":        {"--file", "a.csv", "--demo-rows", "5"},
		"negative demo rows":   {"--demo-rows", "-3"},
		"keep without publish": {"--demo-rows", "3", "--keep-snapshots", "2"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			var stderr bytes.Buffer
			if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
				t.Fatalf("exit code = %d stderr=%s", code, stderr.String())
			}
		})
	}
}

func TestRunSnapshotsDemoRows(t *testing.T) {
	store := storage.NewMemoryStore()
	var stdout, stderr bytes.Buffer
	importAt := func(at time.Time) int {
		stdout.Reset()
		return Run(context.Background(), []string{"--demo-rows", "40", "--demo-seed", "9", "--snapshot", "--skip-load", "--keep-snapshots", "1"}, Options{
			OpenStore: func(context.Context) (storage.ObjectStore, error) { return store, nil },
			Now:       func() time.Time { return at },
			Stdout:    &stdout,
			Stderr:    &stderr,
		})
	}
	if code := importAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, stderr.String())
	}
	if code := importAt(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)); code != 0 {
		t.Fatalf("exit code = %d stderr=%s", code, stderr.String())
	}

	var out report
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if out.Table != "commercial" || out.Rows == 0 || out.Rows > 40 || len(out.SnapshotKeys) != 2 {
		t.Fatalf("report = %+v", out)
	}
	names := make([]string, 0, len(out.Columns))
	for _, column := range out.Columns {
		names = append(names, column.Name)
	}
	if !strings.Contains(strings.Join(names, ","), "region_nmae") {
		t.Fatalf("columns = %v", names)
	}
	if len(out.PrunedKeys) != 1 || !strings.Contains(out.PrunedKeys[0], "date=2026-01-01") {
		t.Fatalf("pruned = %v", out.PrunedKeys)
	}
}

func TestRunReportsLoadFailures(t *testing.T) {
	path := writeTempFile(t, "licenses.xls", licensesCSV)
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--file", path}, Options{
		OpenDB: func(context.Context) (*sql.DB, sqldb.Dialect, error) {
			return nil, sqldb.Dialect{}, errors.New("unreachable")
		},
		Stderr: &stderr,
	})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "unsupported file type") {
		t.Fatalf("stderr = %s", stderr.String())
	}

	csvPath := writeTempFile(t, "licenses.csv", licensesCSV)
	stderr.Reset()
	code = Run(context.Background(), []string{"--file", csvPath}, Options{
		OpenDB: func(context.Context) (*sql.DB, sqldb.Dialect, error) {
			return nil, sqldb.Dialect{}, errors.New("unreachable")
		},
		Stderr: &stderr,
	})
	if code != 1 || !strings.Contains(stderr.String(), "open warehouse: unreachable") {
		t.Fatalf("exit code = %d stderr=%s", code, stderr.String())
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

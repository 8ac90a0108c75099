package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sqlsight/sqlsight/internal/history"
)

const testQueryID = "7c1f7f6e-3a51-4b7e-9d55-2f0a1c2b9e11"

var historyColumns = []string{
	"query_id", "question", "requested_chart", "chart_type", "generated_sql", "success", "message", "error_text",
	"row_count", "duration_ms", "provider", "model", "caller", "cached", "corrections", "created_at",
}

func TestRecordAssignsID(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO query_history (query_id, question, requested_chart, chart_type, generated_sql, success, message, error_text,
    row_count, duration_ms, provider, model, caller, cached, corrections)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING created_at`)).
		WithArgs(sqlmock.AnyArg(), "top regions", "auto", "bar", "SELECT 1", true, "", "", 3, int64(120), "openai-compatible", "gpt-4o", "analyst-1", false, 0).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	entry, err := repo.Record(context.Background(), history.Entry{
		Question:   "top regions",
		ChartType:  "bar",
		SQL:        "SELECT 1",
		Success:    true,
		RowCount:   3,
		DurationMS: 120,
		Provider:   "openai-compatible",
		Model:      "gpt-4o",
		Caller:     "analyst-1",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(entry.ID) != 36 {
		t.Fatalf("ID = %q, want generated uuid", entry.ID)
	}
	if entry.RequestedChart != "auto" {
		t.Fatalf("RequestedChart = %q", entry.RequestedChart)
	}
	if !entry.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", entry.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestRecordRejectsMalformedID(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	_, err := repo.Record(context.Background(), history.Entry{ID: "not-a-uuid"})
	if !errors.Is(err, history.ErrInvalidID) {
		t.Fatalf("Record() error = %v, want ErrInvalidID", err)
	}
	assertSQLMock(t, mock)
}

func TestListFiltersByCallerAndClampsLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT ` + entryColumns + `
FROM query_history
WHERE caller = $1
ORDER BY created_at DESC
LIMIT $2`)).
		WithArgs("analyst-1", history.MaxListLimit).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(testQueryID, "q1", "auto", "bar", "SELECT 1", true, "", "", 2, int64(10), "p", "m", "analyst-1", false, 0, now).
			AddRow("0b8e0f5a-8d0c-4d43-a0a0-5b6f0e8f3c21", "q2", "pie", "pie", "SELECT 2", true, "", "", 4, int64(11), "p", "m", "analyst-1", true, 1, now.Add(-time.Minute)))

	entries, err := repo.List(context.Background(), history.ListFilter{Caller: " analyst-1 ", Limit: 5000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[1].ChartType != "pie" || !entries[1].Cached || entries[1].Corrections != 1 {
		t.Fatalf("entries[1] = %+v", entries[1])
	}
	assertSQLMock(t, mock)
}

func TestListWithoutCallerUsesDefaultLimit(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
FROM query_history
ORDER BY created_at DESC
LIMIT $1`)).
		WithArgs(history.DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(historyColumns))

	entries, err := repo.List(context.Background(), history.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("entries = %#v, want empty slice", entries)
	}
	assertSQLMock(t, mock)
}

func TestGetReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
FROM query_history
WHERE query_id = $1`)).
		WithArgs(testQueryID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), testQueryID)
	if !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("Get() error = %v, want %v", err, history.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestGetRejectsMalformedID(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	if _, err := repo.Get(context.Background(), "42"); !errors.Is(err, history.ErrInvalidID) {
		t.Fatalf("Get() error = %v, want ErrInvalidID", err)
	}
	assertSQLMock(t, mock)
}

func TestGetScansEntry(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE query_id = $1`)).
		WithArgs(testQueryID).
		WillReturnRows(sqlmock.NewRows(historyColumns).
			AddRow(testQueryID, "q1", "auto", "table", "", false, "Failed to execute query", "boom", 0, int64(33), "", "", "", false, 1, now))

	entry, err := repo.Get(context.Background(), testQueryID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Success || entry.Error != "boom" || entry.Message != "Failed to execute query" {
		t.Fatalf("entry = %+v", entry)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

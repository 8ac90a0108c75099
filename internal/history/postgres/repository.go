package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sqlsight/sqlsight/internal/history"
)

const entryColumns = `query_id, question, requested_chart, chart_type, generated_sql, success, message, error_text,
       row_count, duration_ms, provider, model, caller, cached, corrections, created_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping metadata db: %w", err)
	}
	return nil
}

// Record inserts entry, assigning a query id when it has none.
func (r *Repository) Record(ctx context.Context, entry history.Entry) (history.Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	} else if _, err := uuid.Parse(entry.ID); err != nil {
		return history.Entry{}, history.ErrInvalidID
	}
	if entry.RequestedChart == "" {
		entry.RequestedChart = "auto"
	}

	query := `
INSERT INTO query_history (query_id, question, requested_chart, chart_type, generated_sql, success, message, error_text,
    row_count, duration_ms, provider, model, caller, cached, corrections)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.Question,
		entry.RequestedChart,
		entry.ChartType,
		entry.SQL,
		entry.Success,
		entry.Message,
		entry.Error,
		entry.RowCount,
		entry.DurationMS,
		entry.Provider,
		entry.Model,
		entry.Caller,
		entry.Cached,
		entry.Corrections,
	).Scan(&entry.CreatedAt); err != nil {
		return history.Entry{}, fmt.Errorf("record query history: %w", err)
	}
	return entry, nil
}

func (r *Repository) List(ctx context.Context, filter history.ListFilter) ([]history.Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	caller := strings.TrimSpace(filter.Caller)
	if caller != "" {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM query_history
WHERE caller = $1
ORDER BY created_at DESC
LIMIT $2`, caller, filter.NormalizedLimit())
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+entryColumns+`
FROM query_history
ORDER BY created_at DESC
LIMIT $1`, filter.NormalizedLimit())
	}
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]history.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query history row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query history rows: %w", err)
	}
	return entries, nil
}

func (r *Repository) Get(ctx context.Context, id string) (history.Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return history.Entry{}, history.ErrInvalidID
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+entryColumns+`
FROM query_history
WHERE query_id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Entry{}, history.ErrNotFound
		}
		return history.Entry{}, fmt.Errorf("get query history: %w", err)
	}
	return entry, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (history.Entry, error) {
	var entry history.Entry
	err := s.Scan(
		&entry.ID,
		&entry.Question,
		&entry.RequestedChart,
		&entry.ChartType,
		&entry.SQL,
		&entry.Success,
		&entry.Message,
		&entry.Error,
		&entry.RowCount,
		&entry.DurationMS,
		&entry.Provider,
		&entry.Model,
		&entry.Caller,
		&entry.Cached,
		&entry.Corrections,
		&entry.CreatedAt,
	)
	return entry, err
}

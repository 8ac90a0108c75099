package importer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sqlsight/sqlsight/internal/observability"
	"github.com/sqlsight/sqlsight/internal/warehouse/sqldb"
)

const (
	DefaultBatchSize = 100
	DefaultRetrySize = 25
)

type Summary struct {
	Table    string   `json:"table"`
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Columns  []Column `json:"columns"`
}

func sqlType(kind Kind) string {
	switch kind {
	case KindInteger:
		return "BIGINT"
	case KindFloat:
		return "DECIMAL(15,4)"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// CreateTableSQL returns the statements that replace table with one shaped
// for ds: a surrogate id, the dataset columns and audit timestamps.
func CreateTableSQL(ds Dataset, table string, dialect sqldb.Dialect) ([]string, error) {
	if len(ds.Columns) == 0 {
		return nil, fmt.Errorf("dataset has no columns")
	}
	var drop, id string
	switch dialect.Name {
	case sqldb.Postgres.Name:
		drop = "DROP TABLE IF EXISTS " + dialect.QuoteIdent(table) + " CASCADE"
		id = "id SERIAL PRIMARY KEY"
	case sqldb.MySQL.Name:
		drop = "DROP TABLE IF EXISTS " + dialect.QuoteIdent(table)
		id = "id BIGINT AUTO_INCREMENT PRIMARY KEY"
	default:
		return nil, fmt.Errorf("cannot create tables in %s: publish a parquet snapshot instead", dialect.Name)
	}

	lines := make([]string, 0, len(ds.Columns)+3)
	lines = append(lines, "    "+id)
	for _, column := range ds.Columns {
		lines = append(lines, "    "+dialect.QuoteIdent(column.Name)+" "+sqlType(column.Kind))
	}
	lines = append(lines,
		"    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
		"    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP",
	)
	create := "CREATE TABLE " + dialect.QuoteIdent(table) + " (\n" + strings.Join(lines, ",\n") + "\n)"
	return []string{drop, create}, nil
}

// Loader writes datasets into a warehouse table.
type Loader struct {
	db        *sql.DB
	dialect   sqldb.Dialect
	logger    *slog.Logger
	BatchSize int
	RetrySize int
}

func NewLoader(db *sql.DB, dialect sqldb.Dialect, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{db: db, dialect: dialect, logger: logger, BatchSize: DefaultBatchSize, RetrySize: DefaultRetrySize}
}

func (l *Loader) CreateTable(ctx context.Context, ds Dataset, table string) error {
	statements, err := CreateTableSQL(ds, table, l.dialect)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// Load appends ds to table in multi-row batches. A failed batch is retried in
// smaller chunks; chunks that still fail are skipped and counted.
func (l *Loader) Load(ctx context.Context, ds Dataset, table string) (Summary, error) {
	summary := Summary{Table: table, Total: len(ds.Rows), Columns: ds.Columns}
	batchSize := max(l.BatchSize, 1)
	retrySize := max(l.RetrySize, 1)
	defer func() { observability.ObserveImportRows(summary.Imported, summary.Skipped) }()

	for start := 0; start < len(ds.Rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		batch := ds.Rows[start:min(start+batchSize, len(ds.Rows))]
		err := l.insert(ctx, ds.Columns, table, batch)
		if err == nil {
			summary.Imported += len(batch)
			continue
		}
		l.logger.WarnContext(ctx, "batch insert failed, retrying in chunks",
			slog.Int("first_row", start+1), slog.Int("rows", len(batch)), slog.Any("error", err))

		for chunkStart := 0; chunkStart < len(batch); chunkStart += retrySize {
			chunk := batch[chunkStart:min(chunkStart+retrySize, len(batch))]
			if err := l.insert(ctx, ds.Columns, table, chunk); err != nil {
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				l.logger.WarnContext(ctx, "skipping rows",
					slog.Int("first_row", start+chunkStart+1), slog.Int("rows", len(chunk)), slog.Any("error", err))
				summary.Skipped += len(chunk)
				continue
			}
			summary.Imported += len(chunk)
		}
	}
	return summary, nil
}

func (l *Loader) insert(ctx context.Context, columns []Column, table string, rows [][]any) error {
	query, args := l.insertSQL(columns, table, rows)
	_, err := l.db.ExecContext(ctx, query, args...)
	return err
}

func (l *Loader) insertSQL(columns []Column, table string, rows [][]any) (string, []any) {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = l.dialect.QuoteIdent(column.Name)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO " + l.dialect.QuoteIdent(table) + " (" + strings.Join(names, ", ") + ") VALUES ")
	args := make([]any, 0, len(rows)*len(columns))
	n := 0
	for r, row := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			n++
			b.WriteString(l.dialect.Placeholder(n))
			args = append(args, row[c])
		}
		b.WriteByte(')')
	}
	return b.String(), args
}

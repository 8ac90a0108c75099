// Package sqldb runs warehouse statements over database/sql for postgres
// (pgx), mysql and duckdb connections.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sqlsight/sqlsight/internal/observability"
	"github.com/sqlsight/sqlsight/internal/sqlguard"
	"github.com/sqlsight/sqlsight/internal/warehouse"
)

type Config struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

type DB struct {
	db           *sql.DB
	dialect      Dialect
	queryTimeout time.Duration
}

// Open connects to the warehouse, applies pool settings and pings it.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse dsn is required")
	}
	if cfg.Dialect.DriverName == "" {
		return nil, fmt.Errorf("warehouse dialect is required")
	}

	db, err := sql.Open(cfg.Dialect.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse db: %w", err)
	}
	return New(db, cfg.Dialect, cfg.QueryTimeout), nil
}

// New wraps an already opened handle.
func New(db *sql.DB, dialect Dialect, queryTimeout time.Duration) *DB {
	return &DB{db: db, dialect: dialect, queryTimeout: queryTimeout}
}

func (d *DB) SQL() *sql.DB { return d.db }

func (d *DB) Dialect() string { return d.dialect.Name }

func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse db: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Execute runs a statement inside a transaction that is always rolled back,
// read-only where the driver supports it. When RowLimit is set the
// statement is wrapped so one extra row is fetched to detect truncation.
func (d *DB) Execute(ctx context.Context, request warehouse.Request) (warehouse.Result, error) {
	sqlText := sqlguard.Normalize(request.SQL)
	if sqlText == "" {
		return warehouse.Result{}, fmt.Errorf("sql is required")
	}
	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit+1)
	}
	if d.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := d.queryReadOnly(ctx, sqlText)
	observability.ObserveWarehouseQuery(time.Since(start), err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return warehouse.Result{}, fmt.Errorf("execute query: timed out after %s: %w", d.queryTimeout, err)
		}
		return warehouse.Result{}, fmt.Errorf("execute query: %w", err)
	}
	if request.RowLimit > 0 && len(result.Rows) > request.RowLimit {
		result.Rows = result.Rows[:request.RowLimit]
		result.Truncated = true
	}
	result.Duration = time.Since(start)
	return result, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (d *DB) queryReadOnly(ctx context.Context, sqlText string) (warehouse.Result, error) {
	var opts *sql.TxOptions
	if d.dialect.ReadOnlyTx {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return queryRows(ctx, tx, sqlText)
}

func (d *DB) query(ctx context.Context, sqlText string, args ...any) (warehouse.Result, error) {
	return queryRows(ctx, d.db, sqlText, args...)
}

func queryRows(ctx context.Context, q queryer, sqlText string, args ...any) (warehouse.Result, error) {
	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return warehouse.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return warehouse.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return warehouse.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return warehouse.Result{Columns: columns, Rows: resultRows}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// Package duckdb serves warehouse queries from parquet snapshots kept in the
// object store. Snapshots are copied into tables of an in-process DuckDB
// database whose file access is switched off once loading is done.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlsight/sqlsight/internal/storage"
	"github.com/sqlsight/sqlsight/internal/warehouse"
	"github.com/sqlsight/sqlsight/internal/warehouse/sqldb"
)

type Config struct {
	// Tables maps a table name to the object key of its parquet snapshot.
	Tables       map[string]string
	QueryTimeout time.Duration
}

// lockdown runs after the snapshots are loaded. lock_configuration keeps
// statements from turning external access back on.
var lockdown = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

// Warehouse delegates to a sqldb.DB over the current DuckDB handle, so
// execution and introspection behave as they do for the network databases.
// Refresh builds a new handle and swaps it in.
type Warehouse struct {
	store        storage.ObjectStore
	tables       map[string]string
	workDir      string
	queryTimeout time.Duration

	refreshMu sync.Mutex
	mu        sync.RWMutex
	current   *sqldb.DB
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

func Open(ctx context.Context, store storage.ObjectStore, cfg Config) (*Warehouse, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("at least one table snapshot is required")
	}

	workDir, err := os.MkdirTemp("", "sqlsight-duckdb-")
	if err != nil {
		return nil, fmt.Errorf("create duckdb work dir: %w", err)
	}

	tables := make(map[string]string, len(cfg.Tables))
	for name, key := range cfg.Tables {
		tables[name] = key
	}
	w := &Warehouse{
		store:        store,
		tables:       tables,
		workDir:      workDir,
		queryTimeout: cfg.QueryTimeout,
	}
	if err := w.Refresh(ctx); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// Refresh downloads every configured snapshot again, loads them into a fresh
// database and replaces the one queries run against.
func (w *Warehouse) Refresh(ctx context.Context) error {
	w.refreshMu.Lock()
	defer w.refreshMu.Unlock()

	next, err := w.load(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	previous := w.current
	w.current = next
	w.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}
	return nil
}

func (w *Warehouse) load(ctx context.Context) (*sqldb.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	fail := func(err error) (*sqldb.DB, error) {
		_ = db.Close()
		return nil, err
	}

	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := w.tables[name]
		localPath := filepath.Join(w.workDir, sanitizeFileComponent(name)+".parquet")
		if _, err := storage.Download(ctx, w.store, key, localPath); err != nil {
			return fail(fmt.Errorf("download snapshot %q for table %q: %w", key, name, err))
		}
		tableSQL := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet(%s)`,
			sqldb.DuckDB.QuoteIdent(name), quoteString(localPath))
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fail(fmt.Errorf("load table %q: %w", name, err))
		}
		_ = os.Remove(localPath)
	}

	for _, statement := range lockdown {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fail(fmt.Errorf("configure duckdb: %w", err))
		}
	}
	return sqldb.New(db, sqldb.DuckDB, w.queryTimeout), nil
}

func (w *Warehouse) db() *sqldb.DB {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Warehouse) Execute(ctx context.Context, request warehouse.Request) (warehouse.Result, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Execute(ctx, request)
}

func (w *Warehouse) ListTables(ctx context.Context) ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.ListTables(ctx)
}

func (w *Warehouse) DescribeTable(ctx context.Context, table string) (warehouse.TableSchema, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.DescribeTable(ctx, table)
}

func (w *Warehouse) SampleRows(ctx context.Context, table string, limit int) (warehouse.Result, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.SampleRows(ctx, table, limit)
}

func (w *Warehouse) Ping(ctx context.Context) error {
	return w.db().Ping(ctx)
}

func (w *Warehouse) Dialect() string { return sqldb.DuckDB.Name }

func (w *Warehouse) Close() error {
	w.mu.Lock()
	current := w.current
	w.current = nil
	w.mu.Unlock()

	var err error
	if current != nil {
		err = current.Close()
	}
	if removeErr := os.RemoveAll(w.workDir); err == nil {
		err = removeErr
	}
	return err
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sqlsight/sqlsight/internal/cli/sqlsightimport"
	"github.com/sqlsight/sqlsight/internal/config"
	"github.com/sqlsight/sqlsight/internal/observability"
	"github.com/sqlsight/sqlsight/internal/storage"
	s3store "github.com/sqlsight/sqlsight/internal/storage/s3"
	"github.com/sqlsight/sqlsight/internal/warehouse/sqldb"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlsight-import")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := sqlsightimport.Run(ctx, os.Args[1:], sqlsightimport.Options{
		OpenDB: func(ctx context.Context) (*sql.DB, sqldb.Dialect, error) {
			dialect, err := sqldb.DialectByName(cfg.Warehouse.Driver)
			if err != nil {
				return nil, sqldb.Dialect{}, err
			}
			if dialect.Name == sqldb.DuckDB.Name {
				return nil, sqldb.Dialect{}, fmt.Errorf("the duckdb warehouse reads snapshots: use --snapshot --skip-load")
			}
			db, err := sqldb.Open(ctx, sqldb.Config{
				Dialect:         dialect,
				DSN:             cfg.Warehouse.DSN,
				MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
				MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
				ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
				ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
			})
			if err != nil {
				return nil, sqldb.Dialect{}, err
			}
			return db.SQL(), dialect, nil
		},
		OpenStore: func(ctx context.Context) (storage.ObjectStore, error) {
			store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
			if err != nil {
				return nil, err
			}
			return store, nil
		},
		Logger: logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}

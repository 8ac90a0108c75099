package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlsight/sqlsight/internal/analyst"
	"github.com/sqlsight/sqlsight/internal/api"
	"github.com/sqlsight/sqlsight/internal/auth"
	"github.com/sqlsight/sqlsight/internal/cache"
	"github.com/sqlsight/sqlsight/internal/config"
	"github.com/sqlsight/sqlsight/internal/events"
	"github.com/sqlsight/sqlsight/internal/examples"
	historypostgres "github.com/sqlsight/sqlsight/internal/history/postgres"
	"github.com/sqlsight/sqlsight/internal/insights"
	"github.com/sqlsight/sqlsight/internal/llm"
	"github.com/sqlsight/sqlsight/internal/nl2sql"
	"github.com/sqlsight/sqlsight/internal/observability"
	s3store "github.com/sqlsight/sqlsight/internal/storage/s3"
	"github.com/sqlsight/sqlsight/internal/warehouse"
	"github.com/sqlsight/sqlsight/internal/warehouse/duckdb"
	"github.com/sqlsight/sqlsight/internal/warehouse/sqldb"
)

type openWarehouse interface {
	warehouse.Warehouse
	io.Closer
}

func main() {
	cfg, err := config.LoadFromEnv("sqlsight-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	catalog, err := examples.Load(cfg.Examples.Path)
	if err != nil {
		logger.Error("failed to load examples", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Examples:          &catalog,
		DependencyTimeout: time.Second,
	}
	checks := []api.ReadinessCheck{api.CheckAIConfig(cfg), api.CheckMetadataDSN(cfg)}

	// The service starts without an analyst when the warehouse or the agent
	// cannot be set up; health then reports unhealthy and questions get 503.
	analystDeps := analyst.Dependencies{Logger: logger}
	wh, err := newWarehouse(ctx, cfg)
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
	} else {
		defer func() { _ = wh.Close() }()
		analystDeps.Warehouse = wh
		deps.DatabaseCheck = wh.Ping
		checks = append(checks, wh.Ping)
	}

	completer, err := llm.New(ctx, cfg.AI)
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
	} else {
		translator, err := nl2sql.NewAgentTranslator(completer)
		if err != nil {
			logger.Error("failed to initialize sql agent", slog.Any("error", err))
		} else {
			analystDeps.Translator = translator
		}
		analystDeps.Insights = insights.NewGenerator(completer, cfg.Analyst.InsightsTimeout, logger)
	}

	if cfg.Cache.Enabled {
		redisCache := cache.NewRedis(cfg.Cache)
		defer func() { _ = redisCache.Close() }()
		analystDeps.Cache = redisCache
		checks = append(checks, redisCache.Ping)
	}

	if cfg.Metadata.Enabled {
		metadataDB, err := historypostgres.Open(ctx, cfg.Metadata)
		if err != nil {
			logger.Error("failed to open metadata db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = metadataDB.Close() }()
		repo := historypostgres.NewRepository(metadataDB)
		analystDeps.History = repo
		checks = append(checks, repo.HealthCheck)
	}

	if cfg.Events.Enabled {
		publisher, err := events.NewRabbitPublisher(cfg.Events)
		if err != nil {
			logger.Error("failed to connect event publisher", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = publisher.Close() }()
		analystDeps.Events = publisher
	}

	if analystDeps.Warehouse != nil && analystDeps.Translator != nil {
		service, err := analyst.New(analystDeps, analyst.Options{
			AllowedTables:   cfg.Warehouse.AllowedTables,
			RowLimit:        cfg.Warehouse.RowLimit,
			MaxCorrections:  cfg.Analyst.MaxCorrections,
			SampleRows:      cfg.Analyst.SchemaSampleRows,
			SchemaFanout:    cfg.Analyst.SchemaFanout,
			AnswerTTL:       cfg.Cache.AnswerTTL,
			SchemaTTL:       cfg.Cache.SchemaTTL,
			InsightsEnabled: cfg.Analyst.InsightsEnabled,
			AnswerTimeout:   cfg.Analyst.AnswerTimeout,
		})
		if err != nil {
			logger.Error("failed to initialize analyst", slog.Any("error", err))
		} else {
			deps.Analyst = service
			logger.Info("sql agent service ready", slog.String("dialect", service.Dialect()))
		}
	}
	deps.Readiness = api.CombineReadinessChecks(checks...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
}

func newWarehouse(ctx context.Context, cfg config.Config) (openWarehouse, error) {
	if cfg.Warehouse.Driver == config.WarehouseDuckDB {
		store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			return nil, err
		}
		wh, err := duckdb.Open(ctx, store, duckdb.Config{
			Tables:       cfg.Warehouse.DuckDBTables,
			QueryTimeout: cfg.Warehouse.QueryTimeout,
		})
		if err != nil {
			return nil, err
		}
		return wh, nil
	}

	dialect, err := sqldb.DialectByName(cfg.Warehouse.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sqldb.Open(ctx, sqldb.Config{
		Dialect:         dialect,
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
		QueryTimeout:    cfg.Warehouse.QueryTimeout,
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

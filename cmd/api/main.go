package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/invoicefi/reconciler/internal/cache"
	"github.com/invoicefi/reconciler/internal/chain"
	"github.com/invoicefi/reconciler/internal/config"
	"github.com/invoicefi/reconciler/internal/infra"
	"github.com/invoicefi/reconciler/internal/logging"
	"github.com/invoicefi/reconciler/internal/metrics"
	"github.com/invoicefi/reconciler/internal/notification"
	"github.com/invoicefi/reconciler/internal/routes"
	"github.com/invoicefi/reconciler/internal/server"
)

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.ForService(logging.New(cfg.LogLevel), cfg.AppName, cfg.AppEnv)

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rpc, err := chain.NewRPCClient(chain.ClientConfig{URL: cfg.LedgerRPCURL, Timeout: cfg.LedgerTimeout})
	if err != nil {
		logger.Error("build ledger client", "error", err)
		os.Exit(1)
	}

	var (
		db    *pgxpool.Pool
		rdb   *redis.Client
		store cache.Store
	)
	switch cfg.CacheBackend {
	case config.CachePostgres:
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := cache.NewPostgresStore(db, cfg.CachePrefix)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("prepare cache table", "error", err)
			os.Exit(1)
		}
		store = pg
	case config.CacheMemory:
		store = cache.NewMemoryStore()
	}

	// Redis also backs the response cache and rate limit whenever configured.
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		if cfg.CacheBackend == config.CacheRedis {
			store = cache.NewRedisStore(rdb, cfg.CachePrefix)
		}
	}

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		Reader:   chain.Instrument(rpc, m),
		Store:    store,
		DB:       db,
		Redis:    rdb,
		Logger:   logger,
		Metrics:  m,
		Registry: reg,
		Notifier: notification.NewLoggerNotifier(logger),
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("server started", "addr", cfg.Address(), "cache_backend", cfg.CacheBackend)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

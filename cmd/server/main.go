package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3-frozen/chain-efficiency/internal/chains"
	"github.com/web3-frozen/chain-efficiency/internal/config"
	"github.com/web3-frozen/chain-efficiency/internal/efficiency"
	"github.com/web3-frozen/chain-efficiency/internal/handler"
	"github.com/web3-frozen/chain-efficiency/internal/llama"
	"github.com/web3-frozen/chain-efficiency/internal/middleware"
	"github.com/web3-frozen/chain-efficiency/internal/monitor"
	"github.com/web3-frozen/chain-efficiency/internal/refreshlock"
	"github.com/web3-frozen/chain-efficiency/internal/store"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DefiLlama client
	client := llama.New(llama.Config{
		APIBase:         cfg.LlamaAPIBase,
		StablecoinsBase: cfg.StablecoinsAPIBase,
		MaxRetries:      cfg.FetchRetries,
		RetryDelay:      cfg.FetchRetryDelay,
		Timeout:         cfg.FetchTimeout,
		BatchSize:       cfg.DetailBatchSize,
		BatchPause:      cfg.DetailBatchPause,
	}, logger)

	// Refresh engine
	engine := monitor.NewEngine(client,
		chains.NewNormalizer(chains.DefaultRegistry()),
		efficiency.DefaultRules(),
		monitor.Options{
			Schedule:        cfg.RefreshSchedule,
			DetailMinTVL:    cfg.DetailMinTVL,
			DetailMaxChains: cfg.DetailMaxChains,
			Retention:       cfg.HistoryRetention,
		},
		logger)

	var (
		archive  handler.Archive
		backends []handler.Pinger
	)

	// Database archive (optional)
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected and migrated")

		engine.SetArchive(db)
		archive = db
		backends = append(backends, db)
	} else {
		logger.Info("DATABASE_URL not set, history disabled")
	}

	// Redis refresh lock (optional, retry up to 30s for ExternalSecret to sync)
	if cfg.RedisURL != "" {
		var (
			lock *refreshlock.Lock
			err  error
		)
		for i := 0; i < 6; i++ {
			lock, err = refreshlock.New(cfg.RedisURL, cfg.RedisPassword, refreshlock.DefaultKey, cfg.RefreshLockTTL)
			if err == nil {
				break
			}
			logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
			time.Sleep(5 * time.Second)
		}
		if err != nil {
			logger.Error("failed to connect to redis after retries", "error", err)
			os.Exit(1)
		}
		defer lock.Close()
		engine.SetLock(lock)
		logger.Info("redis connected for refresh lock")
	}

	// Start background refresh loop
	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.Error("refresh loop stopped", "error", err)
			os.Exit(1)
		}
	}()

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(backends...))

	r.Route("/api", func(r chi.Router) {
		r.Get("/chains", handler.Chains(engine))
		r.Get("/summary", handler.Summary(engine))
		r.Get("/status", handler.Status(engine))
		r.Post("/refresh", handler.Refresh(ctx, engine))
		r.Get("/history", handler.History(archive))
		r.Get("/runs", handler.Runs(archive))
		r.Get("/stream", handler.Stream(engine, handler.OriginPatterns(cfg.FrontendOrigin), logger))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

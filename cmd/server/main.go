package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_backend/internal/app/di"
	"market_backend/internal/app/router"
	"market_backend/internal/feature/marketdata/transport/handler"
	infradb "market_backend/internal/platform/db"
	healthhandler "market_backend/internal/platform/http/handler"
	infraredis "market_backend/internal/platform/redis"

	"github.com/joho/godotenv"
	redisv9 "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env があれば読み込む（本番では環境変数を直接設定）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, err := infradb.OpenDB(infradb.LoadConfigFromEnv())
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Redis
	var rdb *redisv9.Client
	if tmp, err := infraredis.NewRedisClient(ctx); err != nil {
		slog.Warn("Redis unavailable. Running without symbol cache.", "error", err)
	} else if tmp != nil {
		rdb = tmp
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("failed to close Redis client", "error", err)
			}
		}()
	}

	// Provider / Usecase / Supervisor
	streamCfg := di.LoadStreamConfig()
	providers := di.NewProviders(rdb, streamCfg.SymbolsCacheTTL)
	historyUC := di.NewHistoryUsecase(db, providers)
	sup := di.NewSupervisor(providers, streamCfg)

	// Handler
	handlers := router.Handlers{
		Health:     healthhandler.NewHealthHandler(sup),
		MarketData: handler.NewMarketDataHandler(historyUC),
		Stream:     handler.NewStreamHandler(sup),
	}
	opts := router.LoadOptions()
	if opts.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set. Market data routes are open.")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router.NewRouter(handlers, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// srv.Shutdown does not track hijacked websocket connections
		supErr := sup.Shutdown(shutdownCtx)
		srvErr := srv.Shutdown(shutdownCtx)
		return errors.Join(supErr, srvErr)
	})
	return g.Wait()
}

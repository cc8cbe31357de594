// Command ingest warms the candle cache for a set of series.
//
//	ingest -symbols BTCUSDT,EUR/USD -intervals 1H,1D -limit 1000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"market_backend/internal/app/di"
	"market_backend/internal/feature/marketdata/domain/entity"
	infradb "market_backend/internal/platform/db"

	"github.com/joho/godotenv"
)

func main() {
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT,EUR/USD", "comma separated symbols")
	intervals := flag.String("intervals", "1H,1D", "comma separated intervals")
	limit := flag.Int("limit", 500, "candles per series")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	if err := run(split(*symbols), split(*intervals), *limit, *timeout); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
	slog.Info("ingest ok")
}

func run(symbols, intervals []string, limit int, timeout time.Duration) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	db, err := infradb.OpenDB(infradb.LoadConfigFromEnv())
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	uc := di.NewHistoryUsecase(db, di.NewProviders(nil, 0))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, sym := range symbols {
		for _, iv := range intervals {
			q := entity.HistoryQuery{Symbol: sym, Interval: entity.Interval(iv), Limit: limit}
			candles, err := uc.GetHistorical(ctx, q)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s@%s: %w", sym, iv, err))
				continue
			}
			slog.Info("ingested", "symbol", sym, "interval", iv, "count", len(candles))
		}
	}
	return errors.Join(errs...)
}

func split(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"unifeed/internal/adapter/binance"
	"unifeed/internal/app"
	"unifeed/internal/domain"
	"unifeed/internal/infra"
	"unifeed/internal/storage"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// Pprof server, localhost only.
	go func() {
		slog.Info("Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	cfg := bootstrap.Config
	infra.PrintBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bn := cfg.Exchanges.Binance
	adapter := binance.New(binance.Options{
		WSBaseURL:      bn.WSURL,
		RestURL:        bn.RestURL,
		APIKey:         bn.APIKey,
		SecretKey:      bn.SecretKey,
		DedupWindow:    cfg.Feed.DedupWindow,
		DeltaBufferCap: cfg.Feed.DeltaBufferCap,
	})
	defer adapter.Close()

	var wg sync.WaitGroup
	for _, symbol := range bn.Symbols {
		events, err := adapter.SubscribeBook(ctx, symbol)
		if err != nil {
			slog.Error("Book subscription failed", "symbol", symbol, slog.Any("error", err))
			os.Exit(1)
		}
		trades, err := adapter.SubscribeTrades(ctx, symbol)
		if err != nil {
			slog.Error("Trade subscription failed", "symbol", symbol, slog.Any("error", err))
			os.Exit(1)
		}

		wg.Add(2)
		go func(symbol string) {
			defer wg.Done()
			consumeBook(symbol, events, bootstrap.Recorder)
		}(symbol)
		go func(symbol string) {
			defer wg.Done()
			consumeTrades(symbol, trades, bootstrap.Recorder)
		}(symbol)

		slog.InfoContext(ctx, "Market subscribed", slog.String("symbol", symbol))
	}

	slog.InfoContext(ctx, "Feed running. Press Ctrl+C to exit.")
	<-ctx.Done()

	slog.Info("Shutting down gracefully...")
	adapter.Close()
	wg.Wait()
}

func consumeBook(symbol string, events <-chan domain.BookEvent, rec *storage.Recorder) {
	// Capture keeps going while shutdown drains the channels.
	rctx := context.Background()
	for ev := range events {
		if rec != nil {
			if err := rec.RecordBookEvent(rctx, ev); err != nil {
				slog.Warn("Book event capture failed", "symbol", symbol, "err", err)
			}
		}
		switch ev.Type {
		case domain.BookEventSnapshot:
			slog.Info("Book snapshot",
				slog.String("symbol", symbol),
				slog.Int("bids", len(ev.Bids)),
				slog.Int("asks", len(ev.Asks)))
		case domain.BookEventUpdate:
			slog.Debug("Book update",
				slog.String("symbol", symbol),
				slog.Int("bids", len(ev.Bids)),
				slog.Int("asks", len(ev.Asks)),
				slog.Uint64("seq", ev.Seq))
		}
	}
}

func consumeTrades(symbol string, trades <-chan domain.Trade, rec *storage.Recorder) {
	rctx := context.Background()
	for trade := range trades {
		if rec != nil {
			if err := rec.RecordTrade(rctx, trade); err != nil {
				slog.Warn("Trade capture failed", "symbol", symbol, "err", err)
			}
		}
		slog.Debug("Trade",
			slog.String("symbol", symbol),
			slog.String("side", trade.Side),
			slog.String("price", trade.Price.String()),
			slog.String("amount", trade.Amount.String()))
	}
}

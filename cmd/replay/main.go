package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"unifeed/backtest"
	"unifeed/internal/domain"
	"unifeed/internal/strategy"
)

func main() {
	dbPath := flag.String("db", "", "capture journal path")
	exchange := flag.String("exchange", "binance", "exchange name in the journal")
	symbol := flag.String("symbol", "BTC/USDT", "market symbol in the journal")
	short := flag.Int("short", 7, "short SMA period")
	long := flag.Int("long", 25, "long SMA period")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -db <capture.db> [-exchange binance] [-symbol BTC/USDT]")
		os.Exit(2)
	}

	rp, err := backtest.NewReplayer(*dbPath)
	if err != nil {
		slog.Error("Failed to open journal", slog.Any("error", err))
		os.Exit(1)
	}
	defer rp.Close()

	ctx := context.Background()

	var events int
	book, err := rp.ReplayBook(ctx, *exchange, *symbol, func(domain.BookEvent) { events++ })
	if err != nil {
		slog.Error("Book replay failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Printf("Replayed %d book events for %s %s\n", events, *exchange, *symbol)
	bids, asks := book.Bids(), book.Asks()
	if len(bids) > 0 && len(asks) > 0 {
		spread := asks[0].Price.Sub(bids[0].Price)
		fmt.Printf("Final book: %d bids / %d asks, best %s / %s, spread %s\n",
			len(bids), len(asks), bids[0].Price, asks[0].Price, spread)
	} else {
		fmt.Printf("Final book: %d bids / %d asks\n", len(bids), len(asks))
	}

	signals, err := rp.ReplayTrades(ctx, *exchange, *symbol, strategy.NewSMACross(*symbol, *short, *long))
	if err != nil {
		slog.Error("Trade replay failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Printf("SMA(%d/%d) produced %d signals\n", *short, *long, len(signals))
	for _, sig := range signals {
		fmt.Printf("  %s %s @ %s (t=%d)\n", sig.Side, sig.Symbol, sig.Price, sig.Time)
	}
}

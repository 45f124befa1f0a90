// Quick REST probe: fetches a depth snapshot and recent trades for one
// market and prints the normalized top of book. Useful for checking an
// endpoint without opening a stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"unifeed/internal/execution"
)

type depthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type tradeResponse struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Quantity     string `json:"qty"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

func main() {
	baseURL := flag.String("url", "https://api.binance.com", "REST base URL")
	symbol := flag.String("symbol", "BTC/USDT", "market symbol")
	flag.Parse()

	native := strings.ToUpper(strings.ReplaceAll(*symbol, "/", ""))
	client := execution.NewClient(*baseURL, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	q := url.Values{}
	q.Set("symbol", native)
	q.Set("limit", "5")

	var depth depthResponse
	if err := client.Get(ctx, "/api/v3/depth", q, &depth); err != nil {
		fmt.Fprintf(os.Stderr, "depth fetch failed: %v\n", err)
		os.Exit(1)
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		fmt.Fprintf(os.Stderr, "empty book for %s\n", native)
		os.Exit(1)
	}

	bestBid := mustDecimal(depth.Bids[0][0])
	bestAsk := mustDecimal(depth.Asks[0][0])
	spread := bestAsk.Sub(bestBid)

	fmt.Printf("=== %s @ %s ===\n", *symbol, *baseURL)
	fmt.Printf("Best bid: %s (%s)\n", bestBid, depth.Bids[0][1])
	fmt.Printf("Best ask: %s (%s)\n", bestAsk, depth.Asks[0][1])
	fmt.Printf("Spread:   %s\n", spread)
	fmt.Printf("Book seq: %d\n", depth.LastUpdateID)

	var trades []tradeResponse
	q.Set("limit", "3")
	if err := client.Get(ctx, "/api/v3/trades", q, &trades); err != nil {
		fmt.Fprintf(os.Stderr, "trades fetch failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Recent trades:")
	for _, trade := range trades {
		side := "buy"
		if trade.IsBuyerMaker {
			side = "sell"
		}
		fmt.Printf("  #%d %s %s x %s\n", trade.ID, side, trade.Price, trade.Quantity)
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad decimal %q: %v\n", s, err)
		os.Exit(1)
	}
	return d
}

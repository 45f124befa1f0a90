package adapter

import (
	"context"

	"unifeed/internal/domain"
)

// MarketDataAdapter is the read-side capability of one exchange connection.
// Implementations compose the core synchronizer, deduplicator and normalizer
// rather than inheriting a base type.
type MarketDataAdapter interface {
	Name() string

	// SubscribeBook returns a stream carrying one snapshot event per
	// (re)sync followed by update events with only the changed levels.
	SubscribeBook(ctx context.Context, symbol string) (<-chan domain.BookEvent, error)

	// SubscribeTrades returns a deduplicated trade stream combining REST
	// backfill and live push delivery.
	SubscribeTrades(ctx context.Context, symbol string) (<-chan domain.Trade, error)

	// SubscribeCandles streams live OHLCV buckets for the interval. The
	// in-progress bucket is re-emitted as it updates; a new Time value
	// marks the start of the next bucket.
	SubscribeCandles(ctx context.Context, symbol string, intervalMs int64) (<-chan domain.Candle, error)

	// Candles returns a gap-free OHLCV series for the interval.
	Candles(ctx context.Context, symbol string, intervalMs, endMs int64) ([]domain.Candle, error)

	// Pairs lists the markets currently tradable on the exchange.
	Pairs(ctx context.Context) ([]domain.Pair, error)

	// Close tears down every open subscription.
	Close() error
}

// TradingAdapter is the authenticated capability. All its calls for one
// credential run through a single request sequencer.
type TradingAdapter interface {
	Balances(ctx context.Context) ([]domain.Balance, error)
	OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error)
	CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

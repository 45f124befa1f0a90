package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"unifeed/internal/adapter"
	"unifeed/internal/domain"
	"unifeed/internal/engine"
	"unifeed/internal/execution"
	"unifeed/internal/infra"
)

// ExchangeName tags every normalized event produced by this adapter.
const ExchangeName = "binance"

var (
	_ adapter.MarketDataAdapter = (*Adapter)(nil)
	_ adapter.TradingAdapter    = (*Adapter)(nil)
)

// ErrClosed is returned by subscription calls after the adapter was closed.
var ErrClosed = errors.New("adapter closed")

// Options configures one Binance adapter instance.
type Options struct {
	WSBaseURL string // e.g. wss://stream.binance.com:9443/ws
	RestURL   string // e.g. https://api.binance.com
	APIKey    string
	SecretKey string

	DedupWindow    int // trade id window size, 0 for default
	DeltaBufferCap int // pre-snapshot delta buffer, 0 for default
}

// Adapter connects the Binance spot endpoints to the normalized model. Each
// subscription owns one push transport; the adapter tracks them all and tears
// them down together on Close. Authenticated calls are serialized through one
// request sequencer so timestamps never go backwards on the wire.
type Adapter struct {
	opts Options

	market  *execution.Client
	trading *execution.Client
	creds   *execution.Credentials
	seq     *execution.RequestSequencer

	mu       sync.Mutex
	closed   bool
	teardown map[string]func()
}

// New creates an adapter. Market data works without credentials; trading
// calls fail with a signing error until both key and secret are set.
func New(opts Options) *Adapter {
	breaker := infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("binance-rest"))

	return &Adapter{
		opts:     opts,
		market:   execution.NewClient(opts.RestURL, infra.NewMarketLimiter(), breaker),
		trading:  execution.NewClient(opts.RestURL, infra.NewOrderLimiter(), breaker),
		creds:    execution.NewCredentials(opts.APIKey, opts.SecretKey),
		seq:      execution.NewRequestSequencer(),
		teardown: make(map[string]func()),
	}
}

func (a *Adapter) Name() string { return ExchangeName }

// SubscribeBook streams the order book for one symbol. The returned channel
// carries a snapshot event after every (re)sync, then update events with only
// the changed levels; it is closed when the adapter is closed.
func (a *Adapter) SubscribeBook(ctx context.Context, symbol string) (<-chan domain.BookEvent, error) {
	syncer := engine.NewOrderBookSynchronizer(ExchangeName, symbol, func(ctx context.Context) (domain.BookSnapshot, error) {
		return a.fetchDepth(ctx, symbol)
	})
	if a.opts.DeltaBufferCap > 0 {
		syncer.BufferCap = a.opts.DeltaBufferCap
	}

	tr := infra.NewFeedTransport(a.streamURL(symbol, "depth"), func(msg []byte) {
		var upd depthUpdateMsg
		if err := json.Unmarshal(msg, &upd); err != nil || upd.Event != "depthUpdate" {
			return
		}
		bids, err := parseLevels(upd.Bids)
		if err != nil {
			slog.Warn("Depth update dropped", "symbol", symbol, "err", err)
			return
		}
		asks, err := parseLevels(upd.Asks)
		if err != nil {
			slog.Warn("Depth update dropped", "symbol", symbol, "err", err)
			return
		}
		syncer.HandleDelta(domain.BookDelta{
			Exchange: ExchangeName,
			Symbol:   symbol,
			Bids:     bids,
			Asks:     asks,
			Seq:      uint64(upd.FinalID),
		})
	})
	// Deltas lost during a disconnect window would corrupt the book, so a
	// reconnect always goes back through the snapshot path.
	tr.OnReconnect(syncer.Resync)

	if err := a.register("book:"+symbol, func() {
		tr.Close()
		syncer.Stop()
	}); err != nil {
		return nil, err
	}

	out := syncer.Start(ctx)
	tr.Open(ctx)
	return out, nil
}

// SubscribeTrades streams deduplicated trades for one symbol. Recent history
// is backfilled over REST before live delivery starts, with the id window
// suppressing the overlap between the two sources.
func (a *Adapter) SubscribeTrades(ctx context.Context, symbol string) (<-chan domain.Trade, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	dedup := engine.NewTradeDeduplicator(a.opts.DedupWindow)
	out := make(chan domain.Trade, 256)

	backfill, err := a.fetchTrades(ctx, symbol)
	if err != nil {
		return nil, err
	}

	emit := func(trade domain.Trade) {
		if accepted := dedup.Accept(trade); accepted != nil {
			select {
			case out <- *accepted:
			case <-ctx.Done():
			}
		}
	}
	for _, trade := range backfill {
		emit(trade)
	}

	tr := infra.NewFeedTransport(a.streamURL(symbol, "aggTrade"), func(msg []byte) {
		var m aggTradeMsg
		if err := json.Unmarshal(msg, &m); err != nil || m.Event != "aggTrade" {
			return
		}
		trade, err := m.toTrade(symbol)
		if err != nil {
			slog.Warn("Trade dropped", "symbol", symbol, "err", err)
			return
		}
		emit(trade)
	})

	if err := a.register("trades:"+symbol, func() {
		tr.Close()
		close(out)
	}); err != nil {
		return nil, err
	}

	tr.Open(ctx)
	return out, nil
}

// SubscribeCandles streams live klines for one symbol and interval. Every
// update of the in-progress bucket is emitted; the bucket start time tells
// consumers when a new bucket has opened.
func (a *Adapter) SubscribeCandles(ctx context.Context, symbol string, intervalMs int64) (<-chan domain.Candle, error) {
	name, ok := intervalNames[intervalMs]
	if !ok {
		return nil, fmt.Errorf("unsupported candle interval %dms", intervalMs)
	}

	out := make(chan domain.Candle, 64)
	tr := infra.NewFeedTransport(a.streamURL(symbol, "kline_"+name), func(msg []byte) {
		var m klineMsg
		if err := json.Unmarshal(msg, &m); err != nil || m.Event != "kline" {
			return
		}
		c, err := m.toCandle()
		if err != nil {
			slog.Warn("Kline dropped", "symbol", symbol, "err", err)
			return
		}
		select {
		case out <- c:
		case <-ctx.Done():
		}
	})

	if err := a.register("candles:"+symbol+":"+name, func() {
		tr.Close()
		close(out)
	}); err != nil {
		return nil, err
	}

	tr.Open(ctx)
	return out, nil
}

// Candles fetches klines for one interval and returns a gap-free series.
// Calendar-month intervals are passed through without gap filling.
func (a *Adapter) Candles(ctx context.Context, symbol string, intervalMs, endMs int64) ([]domain.Candle, error) {
	name, ok := intervalNames[intervalMs]
	if !ok {
		return nil, fmt.Errorf("unsupported candle interval %dms", intervalMs)
	}

	q := url.Values{}
	q.Set("symbol", nativeSymbol(symbol))
	q.Set("interval", name)
	q.Set("limit", "1000")
	if endMs > 0 {
		q.Set("endTime", strconv.FormatInt(endMs, 10))
	}

	var raw [][]any
	if err := a.market.Get(ctx, "/api/v3/klines", q, &raw); err != nil {
		return nil, fmt.Errorf("fetch klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		c, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}

	if name == "1M" {
		return engine.NormalizeCandles(candles, 0), nil
	}
	return engine.NormalizeCandles(candles, intervalMs), nil
}

// Pairs lists the tradable markets in normalized form. Symbols that are not
// currently in the TRADING state are skipped.
func (a *Adapter) Pairs(ctx context.Context) ([]domain.Pair, error) {
	var resp exchangeInfoResponse
	if err := a.market.Get(ctx, "/api/v3/exchangeInfo", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}

	pairs := make([]domain.Pair, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, domain.Pair{
			Symbol: s.BaseAsset + "/" + s.QuoteAsset,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
		})
	}
	return pairs, nil
}

// Close tears down every subscription and the request sequencer. Queued
// signed calls fail; event channels are closed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	teardown := a.teardown
	a.teardown = nil
	a.mu.Unlock()

	for _, fn := range teardown {
		fn()
	}
	a.seq.Close()
	return nil
}

func (a *Adapter) register(key string, fn func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if _, dup := a.teardown[key]; dup {
		return fmt.Errorf("duplicate subscription %s", key)
	}
	a.teardown[key] = fn
	return nil
}

func (a *Adapter) streamURL(symbol, channel string) string {
	return a.opts.WSBaseURL + "/" + streamName(symbol, channel)
}

func (a *Adapter) fetchDepth(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	q := url.Values{}
	q.Set("symbol", nativeSymbol(symbol))
	q.Set("limit", "1000")

	var resp depthSnapshotMsg
	if err := a.market.Get(ctx, "/api/v3/depth", q, &resp); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("fetch depth: %w", err)
	}

	bids, err := parseLevels(resp.Bids)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	asks, err := parseLevels(resp.Asks)
	if err != nil {
		return domain.BookSnapshot{}, err
	}
	return domain.BookSnapshot{
		Exchange: ExchangeName,
		Symbol:   symbol,
		Bids:     bids,
		Asks:     asks,
		Seq:      uint64(resp.LastUpdateID),
	}, nil
}

func (a *Adapter) fetchTrades(ctx context.Context, symbol string) ([]domain.Trade, error) {
	limit := a.opts.DedupWindow
	if limit <= 0 {
		limit = engine.DefaultDedupWindow
	}

	q := url.Values{}
	q.Set("symbol", nativeSymbol(symbol))
	q.Set("limit", strconv.Itoa(limit))

	var raw []restTrade
	if err := a.market.Get(ctx, "/api/v3/trades", q, &raw); err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(raw))
	for i := range raw {
		trade, err := raw[i].toTrade(symbol)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

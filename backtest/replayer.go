// Package backtest replays captured market data through the same consumer
// paths the live feed uses, so recorded sessions are reproducible offline.
package backtest

import (
	"context"
	"fmt"

	"unifeed/internal/domain"
	"unifeed/internal/storage"
	"unifeed/internal/strategy"
)

// Replayer reads a capture journal and feeds it back in journal order.
type Replayer struct {
	rec *storage.Recorder
}

// NewReplayer opens the journal at dbPath.
func NewReplayer(dbPath string) (*Replayer, error) {
	rec, err := storage.NewRecorder(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Replayer{rec: rec}, nil
}

// Close releases the journal.
func (r *Replayer) Close() error {
	return r.rec.Close()
}

// ReplayBook folds the recorded book events for one market into a fresh
// book. visit, when non-nil, observes every event in order. The returned
// book is the state after the last recorded event.
func (r *Replayer) ReplayBook(ctx context.Context, exchange, symbol string, visit func(domain.BookEvent)) (*domain.LocalBook, error) {
	events, err := r.rec.LoadBookEvents(ctx, exchange, symbol)
	if err != nil {
		return nil, fmt.Errorf("load book events: %w", err)
	}

	book := domain.NewLocalBook(exchange, symbol)
	for _, ev := range events {
		switch ev.Type {
		case domain.BookEventSnapshot:
			book.ApplySnapshot(domain.BookSnapshot{
				Exchange: exchange,
				Symbol:   symbol,
				Bids:     ev.Bids,
				Asks:     ev.Asks,
			})
		case domain.BookEventUpdate:
			book.ApplyDelta(domain.BookDelta{
				Exchange: exchange,
				Symbol:   symbol,
				Bids:     ev.Bids,
				Asks:     ev.Asks,
			})
		default:
			return nil, fmt.Errorf("unknown event type %q at seq %d", ev.Type, ev.Seq)
		}
		if visit != nil {
			visit(ev)
		}
	}
	return book, nil
}

// ReplayTrades runs the recorded trades for one market through a strategy
// and collects the emitted signals.
func (r *Replayer) ReplayTrades(ctx context.Context, exchange, symbol string, strat strategy.Strategy) ([]strategy.Signal, error) {
	trades, err := r.rec.LoadTrades(ctx, exchange, symbol)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	var signals []strategy.Signal
	for _, trade := range trades {
		signals = append(signals, strat.OnTrade(trade)...)
	}
	return signals, nil
}

package engine

import "unifeed/internal/domain"

// DefaultDedupWindow is the number of trade ids remembered per subscription.
// It bounds the REST-backfill / live-push overlap without needing an
// exchange-wide trade-id epoch.
const DefaultDedupWindow = 40

// TradeDeduplicator suppresses duplicate trades arising from overlapping
// REST backfill and live push delivery. One instance per (exchange, symbol)
// subscription; exclusively owned by its caller.
type TradeDeduplicator struct {
	capacity int
	seen     map[string]struct{}
	order    []string // insertion order for eviction
}

// NewTradeDeduplicator creates a deduplicator remembering the last capacity
// trade ids. capacity <= 0 falls back to DefaultDedupWindow.
func NewTradeDeduplicator(capacity int) *TradeDeduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupWindow
	}
	return &TradeDeduplicator{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Accept returns the trade if its id has not been seen inside the window,
// recording it and evicting the oldest id on overflow. It returns nil for a
// duplicate.
func (d *TradeDeduplicator) Accept(trade domain.Trade) *domain.Trade {
	if _, dup := d.seen[trade.ID]; dup {
		return nil
	}

	d.seen[trade.ID] = struct{}{}
	d.order = append(d.order, trade.ID)
	if len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}

	return &trade
}

// Reset clears the window. Called when the subscription is torn down.
func (d *TradeDeduplicator) Reset() {
	d.seen = make(map[string]struct{}, d.capacity)
	d.order = nil
}

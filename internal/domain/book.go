package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BookLevel is a single price level. A zero Size means the level is removed.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookSnapshot is a point-in-time full order book fetched over REST.
// Seq is a capture marker assigned by the synchronizer, never by the exchange.
type BookSnapshot struct {
	Exchange string      `json:"exchange"`
	Symbol   string      `json:"symbol"`
	Bids     []BookLevel `json:"bids"`
	Asks     []BookLevel `json:"asks"`
	Seq      uint64      `json:"seq"`
}

// BookDelta is an incremental change delivered over the push channel.
// Seq is an arrival marker assigned by the transport in arrival order.
type BookDelta struct {
	Exchange string      `json:"exchange"`
	Symbol   string      `json:"symbol"`
	Bids     []BookLevel `json:"bids"`
	Asks     []BookLevel `json:"asks"`
	Seq      uint64      `json:"seq"`
}

// BookEventType distinguishes the two downstream event shapes.
type BookEventType string

const (
	BookEventSnapshot BookEventType = "snapshot"
	BookEventUpdate   BookEventType = "update"
)

// BookEvent is what consumers of a book subscription receive: one snapshot
// event on (re)sync, then update events carrying only the changed levels.
// Zero-size levels are forwarded so consumers can prune their own copies.
type BookEvent struct {
	Type     BookEventType `json:"type"`
	Exchange string        `json:"exchange"`
	Symbol   string        `json:"symbol"`
	Bids     []BookLevel   `json:"bids"`
	Asks     []BookLevel   `json:"asks"`
	Seq      uint64        `json:"seq"`
}

// LocalBook is the authoritative local view of one (exchange, symbol) book.
// It is exclusively owned by one synchronizer instance and mutated only by
// applying a snapshot followed by deltas in arrival order.
type LocalBook struct {
	Exchange string
	Symbol   string

	bids map[string]BookLevel
	asks map[string]BookLevel
}

// NewLocalBook creates an empty book for one market.
func NewLocalBook(exchange, symbol string) *LocalBook {
	return &LocalBook{
		Exchange: exchange,
		Symbol:   symbol,
		bids:     make(map[string]BookLevel),
		asks:     make(map[string]BookLevel),
	}
}

// ApplySnapshot discards the current contents and reinitializes the book.
func (b *LocalBook) ApplySnapshot(snap BookSnapshot) {
	b.bids = make(map[string]BookLevel, len(snap.Bids))
	b.asks = make(map[string]BookLevel, len(snap.Asks))
	applyLevels(b.bids, snap.Bids)
	applyLevels(b.asks, snap.Asks)
}

// ApplyDelta mutates the book in place. A zero size removes the level;
// removing an absent level is a no-op.
func (b *LocalBook) ApplyDelta(delta BookDelta) {
	applyLevels(b.bids, delta.Bids)
	applyLevels(b.asks, delta.Asks)
}

func applyLevels(side map[string]BookLevel, levels []BookLevel) {
	for _, lvl := range levels {
		key := lvl.Price.String()
		if lvl.Size.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = lvl
	}
}

// Bids returns the bid side sorted best-first (highest price first).
func (b *LocalBook) Bids() []BookLevel {
	out := collectLevels(b.bids)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	return out
}

// Asks returns the ask side sorted best-first (lowest price first).
func (b *LocalBook) Asks() []BookLevel {
	out := collectLevels(b.asks)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}

// Depth returns the number of bid and ask levels currently held.
func (b *LocalBook) Depth() (bids, asks int) {
	return len(b.bids), len(b.asks)
}

func collectLevels(side map[string]BookLevel) []BookLevel {
	out := make([]BookLevel, 0, len(side))
	for _, lvl := range side {
		out = append(out, lvl)
	}
	return out
}

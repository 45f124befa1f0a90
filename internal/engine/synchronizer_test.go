package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"unifeed/internal/domain"
)

func lvl(price, size string) domain.BookLevel {
	return domain.BookLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func testSnapshot() domain.BookSnapshot {
	return domain.BookSnapshot{
		Exchange: "binance",
		Symbol:   "BTC/USDT",
		Bids:     []domain.BookLevel{lvl("100", "1"), lvl("99", "2")},
		Asks:     []domain.BookLevel{lvl("101", "1"), lvl("102", "2")},
	}
}

func testDeltas() []domain.BookDelta {
	return []domain.BookDelta{
		{Bids: []domain.BookLevel{lvl("100", "3")}},                               // overwrite
		{Bids: []domain.BookLevel{lvl("99", "0")}},                                // remove
		{Asks: []domain.BookLevel{lvl("101", "0"), lvl("103", "5")}},              // remove + add
		{Bids: []domain.BookLevel{lvl("98", "7")}, Asks: []domain.BookLevel{lvl("103", "6")}}, // add + overwrite
	}
}

// gatedFetcher blocks fetches until release is signalled.
type gatedFetcher struct {
	release chan struct{}
	calls   atomic.Int32
	snap    domain.BookSnapshot
}

func newGatedFetcher(snap domain.BookSnapshot) *gatedFetcher {
	return &gatedFetcher{release: make(chan struct{}, 8), snap: snap}
}

func (g *gatedFetcher) fetch(ctx context.Context) (domain.BookSnapshot, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
		return g.snap, nil
	case <-ctx.Done():
		return domain.BookSnapshot{}, ctx.Err()
	}
}

// consumerBook applies a stream of events the way a downstream consumer would.
func consumerBook(events []domain.BookEvent) *domain.LocalBook {
	book := domain.NewLocalBook("binance", "BTC/USDT")
	for _, ev := range events {
		switch ev.Type {
		case domain.BookEventSnapshot:
			book.ApplySnapshot(domain.BookSnapshot{Bids: ev.Bids, Asks: ev.Asks})
		case domain.BookEventUpdate:
			book.ApplyDelta(domain.BookDelta{Bids: ev.Bids, Asks: ev.Asks})
		}
	}
	return book
}

func collectEvents(t *testing.T, out <-chan domain.BookEvent, n int) []domain.BookEvent {
	t.Helper()
	var events []domain.BookEvent
	deadline := time.After(3 * time.Second)
	for len(events) < n {
		select {
		case ev, ok := <-out:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out after %d/%d events", len(events), n)
		}
	}
	return events
}

func booksEqual(a, b *domain.LocalBook) bool {
	ab, aa := a.Bids(), a.Asks()
	bb, ba := b.Bids(), b.Asks()
	if len(ab) != len(bb) || len(aa) != len(ba) {
		return false
	}
	for i := range ab {
		if !ab[i].Price.Equal(bb[i].Price) || !ab[i].Size.Equal(bb[i].Size) {
			return false
		}
	}
	for i := range aa {
		if !aa[i].Price.Equal(ba[i].Price) || !aa[i].Size.Equal(ba[i].Size) {
			return false
		}
	}
	return true
}

func expectedFinalBook() *domain.LocalBook {
	book := domain.NewLocalBook("binance", "BTC/USDT")
	book.ApplySnapshot(testSnapshot())
	for _, d := range testDeltas() {
		book.ApplyDelta(d)
	}
	return book
}

func TestSynchronizer_SnapshotFirst(t *testing.T) {
	fetcher := newGatedFetcher(testSnapshot())
	sync := NewOrderBookSynchronizer("binance", "BTC/USDT", fetcher.fetch)

	out := sync.Start(context.Background())
	defer sync.Stop()

	fetcher.release <- struct{}{}
	events := collectEvents(t, out, 1) // snapshot
	if events[0].Type != domain.BookEventSnapshot {
		t.Fatalf("first event = %s, want snapshot", events[0].Type)
	}

	for _, d := range testDeltas() {
		if err := sync.HandleDelta(d); err != nil {
			t.Fatalf("HandleDelta: %v", err)
		}
	}
	events = append(events, collectEvents(t, out, 4)...) // one update per delta

	if !booksEqual(consumerBook(events), expectedFinalBook()) {
		t.Error("consumer book diverged from snapshot ⊕ deltas")
	}
}

func TestSynchronizer_DeltasFirst(t *testing.T) {
	fetcher := newGatedFetcher(testSnapshot())
	sync := NewOrderBookSynchronizer("binance", "BTC/USDT", fetcher.fetch)

	out := sync.Start(context.Background())
	defer sync.Stop()

	// Deltas arrive while the snapshot fetch is still pending: they must be
	// buffered, not applied, not emitted.
	for _, d := range testDeltas() {
		if err := sync.HandleDelta(d); err != nil {
			t.Fatalf("HandleDelta: %v", err)
		}
	}

	select {
	case ev := <-out:
		t.Fatalf("event %s emitted before snapshot resolved", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}
	if sync.State() != StateUnsynced {
		t.Fatalf("state = %s, want UNSYNCED", sync.State())
	}

	fetcher.release <- struct{}{}

	// Exactly one snapshot followed by one cumulative update.
	events := collectEvents(t, out, 2)
	if events[0].Type != domain.BookEventSnapshot {
		t.Errorf("first event = %s, want snapshot", events[0].Type)
	}
	if events[1].Type != domain.BookEventUpdate {
		t.Errorf("second event = %s, want update", events[1].Type)
	}

	if !booksEqual(consumerBook(events), expectedFinalBook()) {
		t.Error("consumer book diverged from snapshot ⊕ deltas")
	}
}

func TestSynchronizer_InterleavingDeterminism(t *testing.T) {
	// Same snapshot and same delta sequence must produce the same final book
	// regardless of which side resolves first.
	run := func(deltasFirst bool) *domain.LocalBook {
		fetcher := newGatedFetcher(testSnapshot())
		sync := NewOrderBookSynchronizer("binance", "BTC/USDT", fetcher.fetch)
		out := sync.Start(context.Background())
		defer sync.Stop()

		wantEvents := 5 // snapshot + 4 updates
		if deltasFirst {
			for _, d := range testDeltas() {
				sync.HandleDelta(d)
			}
			fetcher.release <- struct{}{}
			wantEvents = 2 // snapshot + cumulative update
		} else {
			fetcher.release <- struct{}{}
			collectEvents(t, out, 1)
			for _, d := range testDeltas() {
				sync.HandleDelta(d)
			}
			wantEvents = 4
			return consumerBook(append(
				[]domain.BookEvent{{Type: domain.BookEventSnapshot, Bids: testSnapshot().Bids, Asks: testSnapshot().Asks}},
				collectEvents(t, out, wantEvents)...))
		}
		return consumerBook(collectEvents(t, out, wantEvents))
	}

	if !booksEqual(run(true), run(false)) {
		t.Error("final book depends on snapshot/delta interleaving")
	}
}

func TestSynchronizer_ReconnectForcesResync(t *testing.T) {
	fetcher := newGatedFetcher(testSnapshot())
	sync := NewOrderBookSynchronizer("binance", "BTC/USDT", fetcher.fetch)

	out := sync.Start(context.Background())
	defer sync.Stop()

	fetcher.release <- struct{}{}
	collectEvents(t, out, 1)
	if sync.State() != StateSynced {
		t.Fatalf("state = %s, want SYNCED", sync.State())
	}

	// Transport reconnect: deltas may have been lost in the disconnect
	// window, so the synchronizer must stop trusting the stream.
	sync.Resync()

	// Post-reconnect deltas must be buffered, not applied to the stale book.
	sync.HandleDelta(domain.BookDelta{Bids: []domain.BookLevel{lvl("42", "1")}})

	waitForState(t, sync, StateUnsynced)
	select {
	case ev := <-out:
		t.Fatalf("event %s emitted while resyncing", ev.Type)
	case <-time.After(100 * time.Millisecond):
	}

	// Fresh snapshot arrives: snapshot event plus the buffered delta.
	fetcher.release <- struct{}{}
	events := collectEvents(t, out, 2)
	if events[0].Type != domain.BookEventSnapshot {
		t.Errorf("first post-resync event = %s, want snapshot", events[0].Type)
	}
	if events[1].Type != domain.BookEventUpdate {
		t.Errorf("second post-resync event = %s, want update", events[1].Type)
	}
	if fetcher.calls.Load() < 2 {
		t.Errorf("fetch calls = %d, want >= 2 after resync", fetcher.calls.Load())
	}
}

func TestSynchronizer_BufferOverflowForcesResync(t *testing.T) {
	fetcher := newGatedFetcher(testSnapshot())
	sync := NewOrderBookSynchronizer("binance", "BTC/USDT", fetcher.fetch)
	sync.BufferCap = 2

	sync.Start(context.Background())
	defer sync.Stop()

	for i := 0; i < 4; i++ {
		sync.HandleDelta(domain.BookDelta{Bids: []domain.BookLevel{lvl("1", "1")}})
	}

	// Overflow must trigger a second fetch generation rather than growing
	// the buffer without bound.
	deadline := time.After(2 * time.Second)
	for fetcher.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("fetch calls = %d, want >= 2 after overflow", fetcher.calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSynchronizer_SnapshotFetchRetries(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context) (domain.BookSnapshot, error) {
		if calls.Add(1) < 3 {
			return domain.BookSnapshot{}, errors.New("rest unavailable")
		}
		return testSnapshot(), nil
	}

	sync := NewOrderBookSynchronizer("binance", "BTC/USDT", fetch)
	sync.Backoff = func(int) time.Duration { return 10 * time.Millisecond }

	out := sync.Start(context.Background())
	defer sync.Stop()

	events := collectEvents(t, out, 1)
	if events[0].Type != domain.BookEventSnapshot {
		t.Fatalf("event = %s, want snapshot after retries", events[0].Type)
	}
	if calls.Load() != 3 {
		t.Errorf("fetch calls = %d, want 3", calls.Load())
	}
}

func TestSynchronizer_StopDiscardsLateSnapshot(t *testing.T) {
	fetcher := newGatedFetcher(testSnapshot())
	sync := NewOrderBookSynchronizer("binance", "BTC/USDT", fetcher.fetch)

	out := sync.Start(context.Background())
	sync.Stop()

	// The channel must be closed with no events.
	select {
	case ev, ok := <-out:
		if ok {
			t.Fatalf("unexpected event %s after Stop", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("event channel not closed after Stop")
	}
}

func waitForState(t *testing.T, sync *OrderBookSynchronizer, want SyncState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for sync.State() != want {
		select {
		case <-deadline:
			t.Fatalf("state = %s, want %s", sync.State(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

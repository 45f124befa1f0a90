package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"unifeed/internal/domain"
	"unifeed/internal/infra"
)

// SyncState is the synchronizer's externally visible state.
type SyncState int32

const (
	StateUnsynced SyncState = iota
	StateSynced
)

func (s SyncState) String() string {
	switch s {
	case StateUnsynced:
		return "UNSYNCED"
	case StateSynced:
		return "SYNCED"
	default:
		return "UNKNOWN"
	}
}

// ErrStopped is returned by HandleDelta after the synchronizer was stopped.
var ErrStopped = errors.New("synchronizer stopped")

// SnapshotFetcher fetches a point-in-time full order book over REST.
type SnapshotFetcher func(ctx context.Context) (domain.BookSnapshot, error)

type msgKind int

const (
	msgDelta msgKind = iota
	msgSnapshot
	msgResync
)

type syncMsg struct {
	kind  msgKind
	delta domain.BookDelta
	snap  domain.BookSnapshot
	gen   uint64
}

// OrderBookSynchronizer merges a REST snapshot with an independently arriving
// delta stream into one authoritative LocalBook.
//
// All inputs (deltas, snapshot results, resync signals) are serialized
// through one inbox drained by a single goroutine, so any interleaving of
// snapshot-resolves-first vs. deltas-arrive-first resolves deterministically.
// While UNSYNCED, deltas are buffered in arrival order, never applied and
// never emitted; when the snapshot lands, the book is initialized, buffered
// deltas are replayed in order, and consumers get one snapshot event followed
// by one update event with the cumulative replayed changes.
type OrderBookSynchronizer struct {
	exchange string
	symbol   string
	fetch    SnapshotFetcher

	inbox chan syncMsg
	out   chan domain.BookEvent

	book   *domain.LocalBook
	buffer []domain.BookDelta

	state atomic.Int32
	gen   atomic.Uint64 // snapshot generation; stale results are discarded

	outSeq uint64

	fetchCancel context.CancelFunc
	cancel      context.CancelFunc
	ctxDone     <-chan struct{}
	wg          sync.WaitGroup
	stopOnce    sync.Once

	// BufferCap bounds the pre-snapshot replay buffer. Overflow forces a
	// resync instead of unbounded growth.
	BufferCap int

	// Backoff paces snapshot fetch retries.
	Backoff func(retry int) time.Duration
}

// NewOrderBookSynchronizer creates a synchronizer for one (exchange, symbol)
// pair. The fetcher is invoked on start and again on every forced resync.
func NewOrderBookSynchronizer(exchange, symbol string, fetch SnapshotFetcher) *OrderBookSynchronizer {
	return &OrderBookSynchronizer{
		exchange:  exchange,
		symbol:    symbol,
		fetch:     fetch,
		inbox:     make(chan syncMsg, 1024),
		out:       make(chan domain.BookEvent, 256),
		book:      domain.NewLocalBook(exchange, symbol),
		BufferCap: 4096,
		Backoff:   infra.CalculateBackoff,
	}
}

// Start launches the event loop and the initial snapshot fetch. The returned
// channel carries one snapshot event per (re)sync, then update events with
// only the changed levels. It is closed by Stop.
func (s *OrderBookSynchronizer) Start(ctx context.Context) <-chan domain.BookEvent {
	ctx, s.cancel = context.WithCancel(ctx)
	s.ctxDone = ctx.Done()
	s.wg.Add(1)
	go s.run(ctx)
	s.startFetch(ctx, s.gen.Load())
	return s.out
}

// Stop synchronously stops event emission, cancels any in-flight snapshot
// fetch and closes the event channel. In-flight fetches that resolve after
// Stop are discarded.
func (s *OrderBookSynchronizer) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		close(s.out)
	})
}

// State reports SYNCED or UNSYNCED. Safe from any goroutine.
func (s *OrderBookSynchronizer) State() SyncState {
	return SyncState(s.state.Load())
}

// HandleDelta feeds one delta in transport arrival order. It is called from
// the transport's message callback.
func (s *OrderBookSynchronizer) HandleDelta(delta domain.BookDelta) error {
	select {
	case s.inbox <- syncMsg{kind: msgDelta, delta: delta}:
		return nil
	default:
	}
	// Inbox full: block rather than drop, a lost delta corrupts the book.
	select {
	case s.inbox <- syncMsg{kind: msgDelta, delta: delta}:
		return nil
	case <-s.done():
		return ErrStopped
	}
}

// Resync forces the synchronizer back to UNSYNCED and triggers a fresh
// snapshot fetch. Wire it to the transport's reconnect hook: an unknown
// number of deltas may have been lost during the disconnect window, and
// applying post-reconnect deltas to the stale book would corrupt it silently.
func (s *OrderBookSynchronizer) Resync() {
	select {
	case s.inbox <- syncMsg{kind: msgResync}:
	case <-s.done():
	}
}

func (s *OrderBookSynchronizer) done() <-chan struct{} {
	// Set in Start; nil before then, which blocks, matching "not started".
	return s.ctxDone
}

func (s *OrderBookSynchronizer) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbox:
			switch msg.kind {
			case msgDelta:
				s.handleDelta(ctx, msg.delta)
			case msgSnapshot:
				s.handleSnapshot(ctx, msg)
			case msgResync:
				s.forceResync(ctx, "transport reconnect")
			}
		}
	}
}

func (s *OrderBookSynchronizer) handleDelta(ctx context.Context, delta domain.BookDelta) {
	if s.State() != StateSynced {
		s.buffer = append(s.buffer, delta)
		if len(s.buffer) > s.BufferCap {
			s.forceResync(ctx, "replay buffer overflow")
		}
		return
	}

	s.book.ApplyDelta(delta)
	s.emit(ctx, domain.BookEvent{
		Type:     domain.BookEventUpdate,
		Exchange: s.exchange,
		Symbol:   s.symbol,
		Bids:     delta.Bids,
		Asks:     delta.Asks,
	})
}

func (s *OrderBookSynchronizer) handleSnapshot(ctx context.Context, msg syncMsg) {
	if msg.gen != s.gen.Load() {
		// A resync happened while this fetch was in flight.
		slog.Debug("Discarding stale snapshot", "exchange", s.exchange, "symbol", s.symbol, "gen", msg.gen)
		return
	}

	s.book.ApplySnapshot(msg.snap)
	s.state.Store(int32(StateSynced))

	s.emit(ctx, domain.BookEvent{
		Type:     domain.BookEventSnapshot,
		Exchange: s.exchange,
		Symbol:   s.symbol,
		Bids:     msg.snap.Bids,
		Asks:     msg.snap.Asks,
	})

	if len(s.buffer) == 0 {
		return
	}

	// Replay buffered deltas in arrival order, then emit their cumulative
	// effect as a single update so a consumer applying snapshot-then-update
	// lands exactly on the synchronizer's state.
	bids := make(map[string]domain.BookLevel)
	asks := make(map[string]domain.BookLevel)
	for _, delta := range s.buffer {
		s.book.ApplyDelta(delta)
		for _, lvl := range delta.Bids {
			bids[lvl.Price.String()] = lvl
		}
		for _, lvl := range delta.Asks {
			asks[lvl.Price.String()] = lvl
		}
	}
	replayed := len(s.buffer)
	s.buffer = nil

	slog.Info("Book synced", "exchange", s.exchange, "symbol", s.symbol, "replayed", replayed)

	s.emit(ctx, domain.BookEvent{
		Type:     domain.BookEventUpdate,
		Exchange: s.exchange,
		Symbol:   s.symbol,
		Bids:     levelValues(bids),
		Asks:     levelValues(asks),
	})
}

func (s *OrderBookSynchronizer) forceResync(ctx context.Context, reason string) {
	slog.Warn("Book resync", "exchange", s.exchange, "symbol", s.symbol, "reason", reason)
	s.state.Store(int32(StateUnsynced))
	s.buffer = nil
	gen := s.gen.Add(1)
	s.startFetch(ctx, gen)
}

// startFetch launches one snapshot fetch attempt loop for the given
// generation. A newer generation cancels the previous loop.
func (s *OrderBookSynchronizer) startFetch(ctx context.Context, gen uint64) {
	if s.fetchCancel != nil {
		s.fetchCancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	s.fetchCancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		retry := 0
		for {
			snap, err := s.fetch(fctx)
			if err == nil {
				select {
				case s.inbox <- syncMsg{kind: msgSnapshot, snap: snap, gen: gen}:
				case <-fctx.Done():
				}
				return
			}
			if fctx.Err() != nil {
				return
			}
			// Transient REST failures are expected operating conditions:
			// stay UNSYNCED, keep buffering, retry with backoff.
			slog.Warn("Snapshot fetch failed", "exchange", s.exchange, "symbol", s.symbol, "err", err, "retry", retry)
			select {
			case <-fctx.Done():
				return
			case <-time.After(s.Backoff(retry)):
			}
			retry++
		}
	}()
}

func (s *OrderBookSynchronizer) emit(ctx context.Context, ev domain.BookEvent) {
	s.outSeq++
	ev.Seq = s.outSeq
	select {
	case s.out <- ev:
	case <-ctx.Done():
	}
}

func levelValues(side map[string]domain.BookLevel) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(side))
	for _, lvl := range side {
		out = append(out, lvl)
	}
	return out
}

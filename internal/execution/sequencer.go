package execution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSequencerClosed is returned by Do after Close.
var ErrSequencerClosed = errors.New("request sequencer closed")

// NonceContext carries the per-call nonce and timestamp. It is handed to a
// call factory only once it is that call's turn, so the values are generated
// strictly after the previous call in the chain has settled.
type NonceContext struct {
	Nonce     int64
	Timestamp time.Time
}

// SignedCall builds, signs and executes one authenticated request.
type SignedCall func(ctx context.Context, nc NonceContext) ([]byte, error)

type pendingCall struct {
	ctx    context.Context
	call   SignedCall
	result chan callResult
}

type callResult struct {
	body []byte
	err  error
}

// RequestSequencer guarantees that signed calls for one credential are issued
// strictly ordered and never concurrently. Exchanges reject requests whose
// nonces are not monotonically increasing as observed by the server, which a
// burst of concurrently issued calls can violate under normal network jitter.
//
// One sequencer per credential; every call site for that credential must go
// through it, never around it. A failed call propagates its error to its own
// caller only; the chain always advances.
type RequestSequencer struct {
	queue chan pendingCall

	nonceMu   sync.Mutex
	lastNonce int64

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRequestSequencer creates and starts a sequencer. Close releases it.
func NewRequestSequencer() *RequestSequencer {
	s := &RequestSequencer{
		queue: make(chan pendingCall, 128),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.drain(ctx)
	return s
}

// Do enqueues a call and blocks until it has run at its FIFO turn. The
// factory receives the nonce context only when it is invoked.
func (s *RequestSequencer) Do(ctx context.Context, call SignedCall) ([]byte, error) {
	p := pendingCall{ctx: ctx, call: call, result: make(chan callResult, 1)}

	select {
	case s.queue <- p:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-p.result:
		return res.body, res.err
	case <-ctx.Done():
		// The call may still run at its turn; its result is discarded.
		return nil, ctx.Err()
	}
}

// Close stops the drain loop. Queued calls that have not run yet fail with
// ErrSequencerClosed.
func (s *RequestSequencer) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}

func (s *RequestSequencer) drain(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.failPending()
			return
		case p := <-s.queue:
			s.runOne(p)
		}
	}
}

func (s *RequestSequencer) runOne(p pendingCall) {
	if p.ctx.Err() != nil {
		p.result <- callResult{err: p.ctx.Err()}
		return
	}

	nc := s.nextNonce()
	body, err := p.call(p.ctx, nc)
	if err != nil {
		// Propagated to this caller only; the chain advances regardless.
		slog.Warn("Signed call failed", "nonce", nc.Nonce, "err", err)
	}
	p.result <- callResult{body: body, err: err}
}

// nextNonce returns a strictly increasing nonce. Wall-clock milliseconds,
// bumped past the previous value if the clock has not advanced.
func (s *RequestSequencer) nextNonce() NonceContext {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	now := time.Now()
	nonce := now.UnixMilli()
	if nonce <= s.lastNonce {
		nonce = s.lastNonce + 1
	}
	s.lastNonce = nonce

	return NonceContext{Nonce: nonce, Timestamp: now}
}

func (s *RequestSequencer) failPending() {
	for {
		select {
		case p := <-s.queue:
			p.result <- callResult{err: ErrSequencerClosed}
		default:
			return
		}
	}
}

package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FeedTransport manages one resilient duplex connection to an exchange push
// channel. It reconnects on unexpected closure with bounded backoff and, on
// every (re)connection, replays the subscribe payloads registered via
// Subscribe, so a reconnect is transparent to consumers. Payloads passed to
// Send while disconnected are queued and flushed on reconnect, not dropped.
//
// Messages are delivered to onMessage in network arrival order; the transport
// never deduplicates or reorders.
type FeedTransport struct {
	url       string
	onMessage func([]byte)

	// onReconnect fires after every re-established connection except the
	// first. Book synchronizers use it as the resync signal.
	onReconnect func()

	mu       sync.RWMutex
	conn     *websocket.Conn
	pingStop chan struct{} // closed when the current conn is torn down
	writeMu  sync.Mutex

	queueMu sync.Mutex
	subs    [][]byte // replayed on every (re)connect, in registration order
	pending [][]byte // queued while disconnected

	cancel context.CancelFunc
	wg     sync.WaitGroup

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration

	// Backoff returns the delay before the given reconnect attempt.
	Backoff func(retry int) time.Duration
}

// NewFeedTransport creates a transport for one endpoint. onMessage receives
// every raw frame; decoding is the adapter's job.
func NewFeedTransport(url string, onMessage func([]byte)) *FeedTransport {
	return &FeedTransport{
		url:              url,
		onMessage:        onMessage,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		Backoff:          CalculateBackoff,
	}
}

// OnReconnect registers the reconnect hook. Must be called before Open.
func (t *FeedTransport) OnReconnect(fn func()) {
	t.onReconnect = fn
}

// Open starts the supervised connect/read loop.
func (t *FeedTransport) Open(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go t.runLoop(ctx)
}

// Close terminates the transport and releases the connection.
func (t *FeedTransport) Close() {
	if t.cancel != nil {
		t.cancel()
	}
	t.closeConn()
	t.wg.Wait()
}

// Subscribe sends a subscribe payload and remembers it for replay on every
// reconnect. Calling it before the connection is up is fine: the payload is
// sent as part of the next connect.
func (t *FeedTransport) Subscribe(payload []byte) {
	t.queueMu.Lock()
	t.subs = append(t.subs, payload)
	t.queueMu.Unlock()
	// Best effort now; replaySubs covers the disconnected case.
	t.write(payload)
}

// Send writes a payload to the connection. While disconnected the payload is
// queued and flushed once the connection is re-established.
func (t *FeedTransport) Send(payload []byte) {
	if err := t.write(payload); err != nil {
		t.queueMu.Lock()
		t.pending = append(t.pending, payload)
		t.queueMu.Unlock()
	}
}

func (t *FeedTransport) write(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.RLock()
	c := t.conn
	t.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("ws not connected")
	}
	return c.WriteMessage(websocket.TextMessage, payload)
}

func (t *FeedTransport) runLoop(ctx context.Context) {
	defer t.wg.Done()
	retry := 0
	connects := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := t.connect(ctx, connects); err != nil {
			slog.Warn("WS Connection failed", "url", t.url, "err", err, "retry", retry)
			delay := t.Backoff(retry)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0 // Reset on successful connect
		connects++
		t.process(ctx)
	}
}

func (t *FeedTransport) connect(ctx context.Context, connects int) error {
	dialer := websocket.Dialer{HandshakeTimeout: t.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.pingStop = make(chan struct{})
	pingStop := t.pingStop
	t.mu.Unlock()

	t.replaySubs()
	t.flushPending()

	if connects > 0 && t.onReconnect != nil {
		t.onReconnect()
	}

	if t.PingInterval > 0 {
		// Bound to this connection: a reconnect tears it down via pingStop
		// instead of leaving it ticking against the replacement conn.
		go t.pingLoop(ctx, conn, pingStop)
	}

	slog.Info("WS Connected", "url", t.url, "reconnect", connects > 0)
	return nil
}

func (t *FeedTransport) replaySubs() {
	t.queueMu.Lock()
	subs := make([][]byte, len(t.subs))
	copy(subs, t.subs)
	t.queueMu.Unlock()

	for _, payload := range subs {
		if err := t.write(payload); err != nil {
			slog.Warn("WS Subscribe replay failed", "url", t.url, "err", err)
			return
		}
	}
}

func (t *FeedTransport) flushPending() {
	t.queueMu.Lock()
	pending := t.pending
	t.pending = nil
	t.queueMu.Unlock()

	for i, payload := range pending {
		if err := t.write(payload); err != nil {
			// Re-queue what we could not flush.
			t.queueMu.Lock()
			t.pending = append(pending[i:], t.pending...)
			t.queueMu.Unlock()
			return
		}
	}
}

func (t *FeedTransport) process(ctx context.Context) {
	for {
		t.mu.RLock()
		c := t.conn
		t.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(t.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("WS Read error", "url", t.url, "err", err)
			}
			t.closeConn()
			return
		}

		t.onMessage(msg)
	}
}

func (t *FeedTransport) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(t.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				slog.Warn("WS Ping error", "url", t.url, "err", err)
				t.closeConn()
				return
			}
		}
	}
}

func (t *FeedTransport) closeConn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	if t.pingStop != nil {
		close(t.pingStop)
		t.pingStop = nil
	}
}

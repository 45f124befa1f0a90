package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"unifeed/internal/domain"
)

// Record kinds stored in the journal.
const (
	KindBookEvent = 1
	KindTrade     = 2
)

// Recorder journals emitted book events and deduplicated trades to SQLite in
// arrival order, so a feed session can be replayed offline through the same
// consumer code path as live.
//
// Safe for concurrent writers: the book and trade consumers for every symbol
// share one Recorder, so sequence assignment and the insert are serialized
// under one mutex.
type Recorder struct {
	db *sql.DB

	mu      sync.Mutex
	nextSeq int64
}

// NewRecorder opens (or creates) a journal with WAL mode enabled.
func NewRecorder(dbPath string) (*Recorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY,
			kind INTEGER NOT NULL,
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}

	r := &Recorder{db: db}
	last, err := r.lastSeq(context.Background())
	if err != nil {
		return nil, err
	}
	r.nextSeq = last + 1

	return r, nil
}

// RecordBookEvent appends one emitted book event to the journal.
func (r *Recorder) RecordBookEvent(ctx context.Context, ev domain.BookEvent) error {
	return r.insert(ctx, KindBookEvent, ev.Exchange, ev.Symbol, ev)
}

// RecordTrade appends one deduplicated trade to the journal.
func (r *Recorder) RecordTrade(ctx context.Context, t domain.Trade) error {
	return r.insert(ctx, KindTrade, t.Exchange, t.Symbol, t)
}

func (r *Recorder) insert(ctx context.Context, kind int, exchange, symbol string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO records (id, kind, exchange, symbol, payload) VALUES (?, ?, ?, ?, ?)",
		r.nextSeq, kind, exchange, symbol, data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	r.nextSeq++

	return nil
}

// LoadBookEvents streams back all recorded book events for one market in
// journal order.
func (r *Recorder) LoadBookEvents(ctx context.Context, exchange, symbol string) ([]domain.BookEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT payload FROM records WHERE kind = ? AND exchange = ? AND symbol = ? ORDER BY id ASC",
		KindBookEvent, exchange, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var events []domain.BookEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var ev domain.BookEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal book event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}

// LoadTrades streams back all recorded trades for one market in journal
// order.
func (r *Recorder) LoadTrades(ctx context.Context, exchange, symbol string) ([]domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT payload FROM records WHERE kind = ? AND exchange = ? AND symbol = ? ORDER BY id ASC",
		KindTrade, exchange, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var t domain.Trade
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return trades, nil
}

// lastSeq returns the highest record id stored, 0 if the journal is empty.
func (r *Recorder) lastSeq(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	err := r.db.QueryRowContext(ctx, "SELECT MAX(id) FROM records").Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !last.Valid {
		return 0, nil // No records yet
	}
	return last.Int64, nil
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	return r.db.Close()
}

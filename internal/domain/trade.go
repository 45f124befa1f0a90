package domain

import "github.com/shopspring/decimal"

// Trade sides as published downstream.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Trade is a single executed trade. The ID is exchange-assigned and is the
// deduplication key across REST backfill and live push delivery.
// Immutable once constructed.
type Trade struct {
	ID        string          `json:"id"`
	Side      string          `json:"side"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Symbol    string          `json:"symbol"`
	Exchange  string          `json:"exchange"`
}

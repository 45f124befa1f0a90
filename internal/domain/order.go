package domain

import "github.com/shopspring/decimal"

// Order statuses in the normalized vocabulary. Exchange-specific states are
// collapsed into these three by the adapter layer.
const (
	OrderOpen     = "open"
	OrderClosed   = "closed"
	OrderCanceled = "canceled"
)

// Order types supported across adapters.
const (
	OrderLimit  = "limit"
	OrderMarket = "market"
)

// Order is a normalized view of an exchange order.
type Order struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"` // "buy", "sell"
	Type      string          `json:"type"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Executed  decimal.Decimal `json:"executed"`
	Remaining decimal.Decimal `json:"remaining"`
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == OrderOpen
}

// OrderRequest is the input for placing an order.
type OrderRequest struct {
	Symbol string
	Side   string
	Type   string
	Price  decimal.Decimal // ignored for market orders
	Amount decimal.Decimal
}

// Balance is the normalized per-asset balance of one account.
type Balance struct {
	Coin  string          `json:"coin"`
	Free  decimal.Decimal `json:"free"`
	Used  decimal.Decimal `json:"used"`
	Total decimal.Decimal `json:"total"`
}

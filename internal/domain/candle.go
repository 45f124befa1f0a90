package domain

import "github.com/shopspring/decimal"

// Candle is one OHLCV bucket. Time is the grid-aligned bucket start in
// Unix milliseconds.
type Candle struct {
	Time   int64           `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

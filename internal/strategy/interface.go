package strategy

import (
	"github.com/shopspring/decimal"

	"unifeed/internal/domain"
)

// Signal is a directional hint emitted by a strategy. It is advisory output
// for replay analysis, not an order.
type Signal struct {
	Symbol string
	Side   string // domain.SideBuy or domain.SideSell
	Price  decimal.Decimal
	Time   int64 // Unix milliseconds
}

// Strategy consumes a normalized trade stream and emits signals.
type Strategy interface {
	OnTrade(trade domain.Trade) []Signal
}

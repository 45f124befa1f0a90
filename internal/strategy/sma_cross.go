package strategy

import (
	"github.com/shopspring/decimal"

	"unifeed/internal/domain"
)

// SMACross detects short/long moving average crossovers on trade prices.
// It is stateful and deterministic: replaying the same trade sequence yields
// the same signals. Prices live in a fixed ring buffer with a running sum so
// each trade costs one subtraction and one addition for the long average.
type SMACross struct {
	symbol      string
	shortPeriod int
	longPeriod  int

	prices []decimal.Decimal
	head   int
	count  int
	sum    decimal.Decimal

	prevShort decimal.Decimal
	prevLong  decimal.Decimal
	prevSet   bool
}

// NewSMACross creates a crossover detector. shortPeriod must be smaller than
// longPeriod.
func NewSMACross(symbol string, shortPeriod, longPeriod int) *SMACross {
	if shortPeriod >= longPeriod {
		panic("SMACross: shortPeriod must be less than longPeriod")
	}
	return &SMACross{
		symbol:      symbol,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		prices:      make([]decimal.Decimal, longPeriod),
	}
}

// OnTrade folds one trade into the averages and reports a crossover signal
// if one occurred.
func (s *SMACross) OnTrade(trade domain.Trade) []Signal {
	if trade.Symbol != s.symbol {
		return nil
	}

	// When full, head points at the oldest value about to be overwritten.
	if s.count == s.longPeriod {
		s.sum = s.sum.Sub(s.prices[s.head])
	}
	s.prices[s.head] = trade.Price
	s.sum = s.sum.Add(trade.Price)
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}

	if s.count < s.longPeriod {
		return nil
	}

	longDiv := decimal.NewFromInt(int64(s.longPeriod))
	currLong := s.sum.Div(longDiv)
	currShort := s.shortSMA()

	var signals []Signal
	if s.prevSet {
		// Golden cross: short average rises through the long one.
		if s.prevShort.LessThanOrEqual(s.prevLong) && currShort.GreaterThan(currLong) {
			signals = append(signals, Signal{
				Symbol: s.symbol,
				Side:   domain.SideBuy,
				Price:  trade.Price,
				Time:   trade.Timestamp,
			})
		}
		// Dead cross: short average falls through the long one.
		if s.prevShort.GreaterThanOrEqual(s.prevLong) && currShort.LessThan(currLong) {
			signals = append(signals, Signal{
				Symbol: s.symbol,
				Side:   domain.SideSell,
				Price:  trade.Price,
				Time:   trade.Timestamp,
			})
		}
	}

	s.prevShort = currShort
	s.prevLong = currLong
	s.prevSet = true

	return signals
}

// shortSMA walks the ring buffer backwards from the latest write.
func (s *SMACross) shortSMA() decimal.Decimal {
	sum := decimal.Zero
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = sum.Add(s.prices[idx])
	}
	return sum.Div(decimal.NewFromInt(int64(s.shortPeriod)))
}

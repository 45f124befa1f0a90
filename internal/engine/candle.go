package engine

import "unifeed/internal/domain"

// NormalizeCandles fills temporal gaps in an OHLCV series with synthetic flat
// candles (open=high=low=close = previous close, volume 0) so the output has
// exactly one candle per interval. The input is treated as read-only; a
// gap-free series is returned as-is.
//
// intervalMs <= 0 disables filling. Callers pass 0 for monthly series, whose
// wall-clock length is irregular.
func NormalizeCandles(candles []domain.Candle, intervalMs int64) []domain.Candle {
	if intervalMs <= 0 || len(candles) < 2 {
		return candles
	}

	if !hasGaps(candles, intervalMs) {
		return candles
	}

	out := make([]domain.Candle, 0, len(candles))
	out = append(out, candles[0])
	for i := 1; i < len(candles); i++ {
		prev := out[len(out)-1]
		next := candles[i]
		for t := prev.Time + intervalMs; t < next.Time; t += intervalMs {
			out = append(out, domain.Candle{
				Time:  t,
				Open:  prev.Close,
				High:  prev.Close,
				Low:   prev.Close,
				Close: prev.Close,
				// Volume stays zero: synthetic candles never fabricate volume.
			})
		}
		out = append(out, next)
	}
	return out
}

func hasGaps(candles []domain.Candle, intervalMs int64) bool {
	for i := 1; i < len(candles); i++ {
		if candles[i].Time-candles[i-1].Time > intervalMs {
			return true
		}
	}
	return false
}

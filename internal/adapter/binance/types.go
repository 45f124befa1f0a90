package binance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"unifeed/internal/domain"
)

// Wire shapes for the Binance REST and stream payloads this adapter decodes.
// Numeric prices and quantities arrive as strings and are parsed into
// decimals, never floats.

type depthSnapshotMsg struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type depthUpdateMsg struct {
	Event   string     `json:"e"`
	Time    int64      `json:"E"`
	Symbol  string     `json:"s"`
	FirstID int64      `json:"U"`
	FinalID int64      `json:"u"`
	Bids    [][]string `json:"b"`
	Asks    [][]string `json:"a"`
}

type aggTradeMsg struct {
	Event      string `json:"e"`
	Symbol     string `json:"s"`
	TradeID    int64  `json:"a"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	Time       int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
}

type klineMsg struct {
	Event string `json:"e"`
	Kline struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

type restTrade struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Quantity     string `json:"qty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

type restOrder struct {
	OrderID      int64  `json:"orderId"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	Price        string `json:"price"`
	OrigQty      string `json:"origQty"`
	ExecutedQty  string `json:"executedQty"`
	Time         int64  `json:"time"`
	TransactTime int64  `json:"transactTime"`
}

type restBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type accountResponse struct {
	Balances []restBalance `json:"balances"`
}

type exchangeInfoResponse struct {
	Symbols []exchangeSymbol `json:"symbols"`
}

type exchangeSymbol struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// statusMap collapses Binance order states into the normalized three.
var statusMap = map[string]string{
	"NEW":              domain.OrderOpen,
	"PARTIALLY_FILLED": domain.OrderOpen,
	"FILLED":           domain.OrderClosed,
	"CANCELED":         domain.OrderCanceled,
	"PENDING_CANCEL":   domain.OrderCanceled,
	"REJECTED":         domain.OrderCanceled,
	"EXPIRED":          domain.OrderCanceled,
}

// intervalNames maps candle interval lengths to Binance kline interval
// identifiers. Months are calendar-based and carry no fixed length.
var intervalNames = map[int64]string{
	60_000:        "1m",
	180_000:       "3m",
	300_000:       "5m",
	900_000:       "15m",
	1_800_000:     "30m",
	3_600_000:     "1h",
	7_200_000:     "2h",
	14_400_000:    "4h",
	21_600_000:    "6h",
	28_800_000:    "8h",
	43_200_000:    "12h",
	86_400_000:    "1d",
	259_200_000:   "3d",
	604_800_000:   "1w",
	2_592_000_000: "1M",
}

// nativeSymbol converts "BTC/USDT" to the exchange's "BTCUSDT" form.
func nativeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

// streamName builds the combined stream suffix, e.g. "btcusdt@depth".
func streamName(symbol, channel string) string {
	return strings.ToLower(nativeSymbol(symbol)) + "@" + channel
}

func parseLevels(raw [][]string) ([]domain.BookLevel, error) {
	levels := make([]domain.BookLevel, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			return nil, fmt.Errorf("malformed level %v", r)
		}
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, fmt.Errorf("level price %q: %w", r[0], err)
		}
		size, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, fmt.Errorf("level size %q: %w", r[1], err)
		}
		levels = append(levels, domain.BookLevel{Price: price, Size: size})
	}
	return levels, nil
}

func (m *aggTradeMsg) toTrade(symbol string) (domain.Trade, error) {
	price, err := decimal.NewFromString(m.Price)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade price %q: %w", m.Price, err)
	}
	amount, err := decimal.NewFromString(m.Quantity)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade qty %q: %w", m.Quantity, err)
	}
	side := domain.SideBuy
	if m.BuyerMaker {
		side = domain.SideSell
	}
	return domain.Trade{
		ID:        fmt.Sprintf("%d", m.TradeID),
		Side:      side,
		Timestamp: m.Time,
		Price:     price,
		Amount:    amount,
		Symbol:    symbol,
		Exchange:  ExchangeName,
	}, nil
}

func (r *restTrade) toTrade(symbol string) (domain.Trade, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade price %q: %w", r.Price, err)
	}
	amount, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("trade qty %q: %w", r.Quantity, err)
	}
	side := domain.SideBuy
	if r.IsBuyerMaker {
		side = domain.SideSell
	}
	return domain.Trade{
		ID:        fmt.Sprintf("%d", r.ID),
		Side:      side,
		Timestamp: r.Time,
		Price:     price,
		Amount:    amount,
		Symbol:    symbol,
		Exchange:  ExchangeName,
	}, nil
}

func (r *restOrder) toOrder(symbol string) (domain.Order, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order price %q: %w", r.Price, err)
	}
	amount, err := decimal.NewFromString(r.OrigQty)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order qty %q: %w", r.OrigQty, err)
	}
	executed, err := decimal.NewFromString(r.ExecutedQty)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order executed qty %q: %w", r.ExecutedQty, err)
	}

	status, ok := statusMap[r.Status]
	if !ok {
		status = domain.OrderOpen
	}
	ts := r.Time
	if ts == 0 {
		ts = r.TransactTime
	}
	return domain.Order{
		ID:        fmt.Sprintf("%d", r.OrderID),
		Symbol:    symbol,
		Side:      strings.ToLower(r.Side),
		Type:      strings.ToLower(r.Type),
		Price:     price,
		Amount:    amount,
		Executed:  executed,
		Remaining: amount.Sub(executed),
		Status:    status,
		Timestamp: ts,
	}, nil
}

func (m *klineMsg) toCandle() (domain.Candle, error) {
	k := &m.Kline
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	parsed := [5]decimal.Decimal{}
	for i, s := range fields {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %q: %w", s, err)
		}
		parsed[i] = d
	}
	return domain.Candle{
		Time:   k.StartTime,
		Open:   parsed[0],
		High:   parsed[1],
		Low:    parsed[2],
		Close:  parsed[3],
		Volume: parsed[4],
	}, nil
}

func (b *restBalance) toBalance() (domain.Balance, error) {
	free, err := decimal.NewFromString(b.Free)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("balance free %q: %w", b.Free, err)
	}
	locked, err := decimal.NewFromString(b.Locked)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("balance locked %q: %w", b.Locked, err)
	}
	return domain.Balance{
		Coin:  b.Asset,
		Free:  free,
		Used:  locked,
		Total: free.Add(locked),
	}, nil
}

// parseKline decodes one kline array element from the REST response. The
// payload mixes numbers (timestamps) and strings (prices), so it is decoded
// as []any upstream.
func parseKline(k []any) (domain.Candle, error) {
	if len(k) < 6 {
		return domain.Candle{}, fmt.Errorf("malformed kline, %d fields", len(k))
	}
	openTime, ok := k[0].(float64)
	if !ok {
		return domain.Candle{}, fmt.Errorf("kline open time %v", k[0])
	}
	fields := make([]decimal.Decimal, 5)
	for i := 1; i <= 5; i++ {
		s, ok := k[i].(string)
		if !ok {
			return domain.Candle{}, fmt.Errorf("kline field %d: %v", i, k[i])
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("kline field %d %q: %w", i, s, err)
		}
		fields[i-1] = d
	}
	return domain.Candle{
		Time:   int64(openTime),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}

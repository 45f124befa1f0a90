package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"unifeed/internal/domain"
	"unifeed/internal/execution"
)

const recvWindowMs = "5000"

// signed runs one authenticated call through the sequencer. The timestamp
// comes from the sequencer's nonce, so calls hit the wire with strictly
// increasing timestamps regardless of how concurrently they were issued.
// The signature is computed over the exact query string sent, with the
// signature parameter appended last as the API requires.
func (a *Adapter) signed(ctx context.Context, method, path string, params url.Values, out any) error {
	body, err := a.seq.Do(ctx, func(ctx context.Context, nc execution.NonceContext) ([]byte, error) {
		q := url.Values{}
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		q.Set("recvWindow", recvWindowMs)
		q.Set("timestamp", strconv.FormatInt(nc.Nonce, 10))

		qs := q.Encode()
		sig, err := a.creds.Sign(qs)
		if err != nil {
			return nil, err
		}
		full := path + "?" + qs + "&signature=" + sig
		headers := map[string]string{"X-MBX-APIKEY": a.creds.Key()}
		return a.trading.Do(ctx, method, full, nil, headers, nil, nil)
	})
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// Balances returns the non-zero balances of the account.
func (a *Adapter) Balances(ctx context.Context) ([]domain.Balance, error) {
	var resp accountResponse
	if err := a.signed(ctx, "GET", "/api/v3/account", nil, &resp); err != nil {
		return nil, err
	}

	balances := make([]domain.Balance, 0, len(resp.Balances))
	for i := range resp.Balances {
		b, err := resp.Balances[i].toBalance()
		if err != nil {
			return nil, err
		}
		if b.Total.IsZero() {
			continue
		}
		balances = append(balances, b)
	}
	return balances, nil
}

// OpenOrders returns the active orders for one symbol.
func (a *Adapter) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", nativeSymbol(symbol))

	var raw []restOrder
	if err := a.signed(ctx, "GET", "/api/v3/openOrders", params, &raw); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(raw))
	for i := range raw {
		o, err := raw[i].toOrder(symbol)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// CreateOrder places an order and returns its normalized form.
func (a *Adapter) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", nativeSymbol(req.Symbol))
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("type", strings.ToUpper(req.Type))
	params.Set("quantity", req.Amount.String())
	if req.Type == domain.OrderLimit {
		params.Set("price", req.Price.String())
		params.Set("timeInForce", "GTC")
	}

	var raw restOrder
	if err := a.signed(ctx, "POST", "/api/v3/order", params, &raw); err != nil {
		return domain.Order{}, err
	}
	return raw.toOrder(req.Symbol)
}

// CancelOrder cancels one order by exchange id.
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", nativeSymbol(symbol))
	params.Set("orderId", orderID)
	return a.signed(ctx, "DELETE", "/api/v3/order", params, nil)
}

package broker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	fillPollInterval = 250 * time.Millisecond
	fillWaitTimeout  = 15 * time.Second

	// The bars endpoint allows 200 requests/minute; the limiter spreads
	// batched lookups under that budget.
	barsPerMinute = 200
)

// AlpacaBroker implements Broker against the Alpaca paper-trading API.
type AlpacaBroker struct {
	account string // label for logs, "A" or "B"
	trading *alpaca.Client
	md      *marketdata.Client

	barsLimiter *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
}

var _ Broker = (*AlpacaBroker)(nil)

// NewAlpacaBroker creates a broker bound to one account's credentials.
func NewAlpacaBroker(account, apiKey, apiSecret, baseURL string) *AlpacaBroker {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alpaca-marketdata-" + account,
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("⚡ Circuit breaker %s: %s → %s", name, from, to)
		},
	})

	return &AlpacaBroker{
		account: account,
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		barsLimiter: rate.NewLimiter(rate.Limit(float64(barsPerMinute)/60.0), 10),
		breaker:     breaker,
	}
}

// AccountEquity returns current account equity in dollars.
func (b *AlpacaBroker) AccountEquity() (float64, error) {
	acct, err := b.trading.GetAccount()
	if err != nil {
		return 0, fmt.Errorf("failed to get account: %w", err)
	}
	return acct.Equity.InexactFloat64(), nil
}

// Positions returns the broker's view of open positions.
func (b *AlpacaBroker) Positions() ([]Position, error) {
	positions, err := b.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		current := 0.0
		if p.CurrentPrice != nil {
			current = p.CurrentPrice.InexactFloat64()
		}
		out = append(out, Position{
			Symbol:        p.Symbol,
			Qty:           int(p.Qty.IntPart()),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
			CurrentPrice:  current,
		})
	}
	return out, nil
}

// MarketBuy submits a market buy and waits for the fill.
func (b *AlpacaBroker) MarketBuy(symbol string, qty int) (*Fill, error) {
	return b.placeMarketOrder(symbol, qty, alpaca.Buy)
}

// MarketSell submits a market sell and waits for the fill.
func (b *AlpacaBroker) MarketSell(symbol string, qty int) (*Fill, error) {
	return b.placeMarketOrder(symbol, qty, alpaca.Sell)
}

func (b *AlpacaBroker) placeMarketOrder(symbol string, qty int, side alpaca.Side) (*Fill, error) {
	q := decimal.NewFromInt(int64(qty))
	order, err := b.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &q,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: clientOrderID(string(side)),
	})
	if err != nil {
		return nil, fmt.Errorf("order %s %d %s rejected: %w", side, qty, symbol, err)
	}
	return b.waitForFill(order.ID)
}

// Liquidate closes whatever quantity the broker holds in symbol.
func (b *AlpacaBroker) Liquidate(symbol string) (*Fill, error) {
	order, err := b.trading.ClosePosition(symbol, alpaca.ClosePositionRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to liquidate %s: %w", symbol, err)
	}
	return b.waitForFill(order.ID)
}

// waitForFill polls the order until it fills or the wait window expires.
func (b *AlpacaBroker) waitForFill(orderID string) (*Fill, error) {
	deadline := time.Now().Add(fillWaitTimeout)
	for {
		order, err := b.trading.GetOrder(orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll order %s: %w", orderID, err)
		}

		switch order.Status {
		case "filled":
			avg := 0.0
			if order.FilledAvgPrice != nil {
				avg = order.FilledAvgPrice.InexactFloat64()
			}
			filledAt := time.Now()
			if order.FilledAt != nil {
				filledAt = *order.FilledAt
			}
			return &Fill{
				OrderID:  order.ID,
				Symbol:   order.Symbol,
				Qty:      int(order.FilledQty.IntPart()),
				AvgPrice: avg,
				FilledAt: filledAt,
			}, nil
		case "rejected", "canceled", "expired":
			return nil, fmt.Errorf("order %s ended %s", orderID, order.Status)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("order %s not filled within %v", orderID, fillWaitTimeout)
		}
		time.Sleep(fillPollInterval)
	}
}

// GetSnapshot returns last trade, daily open and previous close. The call
// runs behind a circuit breaker and honors the caller's context deadline.
func (b *AlpacaBroker) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	result, err := b.callWithContext(ctx, func() (interface{}, error) {
		return b.breaker.Execute(func() (interface{}, error) {
			return b.md.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", symbol, err)
	}

	snap, ok := result.(*marketdata.Snapshot)
	if !ok || snap == nil {
		return nil, fmt.Errorf("snapshot %s: empty response", symbol)
	}

	out := &Snapshot{}
	if snap.LatestTrade != nil {
		out.LastPrice = snap.LatestTrade.Price
	}
	if snap.DailyBar != nil {
		out.DailyOpen = snap.DailyBar.Open
	}
	if snap.PrevDailyBar != nil {
		out.PrevClose = snap.PrevDailyBar.Close
	}
	return out, nil
}

// DailyBars returns up to days of daily bars per symbol from the SIP feed.
// Pagination across the total bar count is handled by the SDK; the limiter
// keeps the batch under the 200 req/min budget.
func (b *AlpacaBroker) DailyBars(ctx context.Context, symbols []string, days int) (map[string][]Bar, error) {
	if err := b.barsLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := b.callWithContext(ctx, func() (interface{}, error) {
		return b.md.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     time.Now().AddDate(0, 0, -days),
			Feed:      marketdata.SIP,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("daily bars %v: %w", symbols, err)
	}

	raw, ok := result.(map[string][]marketdata.Bar)
	if !ok {
		return nil, fmt.Errorf("daily bars: unexpected response type")
	}

	out := make(map[string][]Bar, len(raw))
	for sym, bars := range raw {
		mapped := make([]Bar, 0, len(bars))
		for _, bar := range bars {
			mapped = append(mapped, Bar{
				Date:   bar.Timestamp,
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: int64(bar.Volume),
			})
		}
		out[sym] = mapped
	}
	return out, nil
}

// callWithContext runs fn in a goroutine so SDK calls without context
// support still honor the caller's deadline.
func (b *AlpacaBroker) callWithContext(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	type callResult struct {
		value interface{}
		err   error
	}
	ch := make(chan callResult, 1)
	go func() {
		v, err := fn()
		ch <- callResult{v, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.value, r.err
	}
}

func clientOrderID(side string) string {
	return fmt.Sprintf("uoa-%s-%s", strings.ToLower(side), uuid.NewString()[:13])
}

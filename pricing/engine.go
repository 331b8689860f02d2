// Package pricing turns raw order-book quotes into currency prices.
package pricing

import (
	"context"
	"fmt"

	"github.com/rkulagin/autolot/broker"
	"github.com/rkulagin/autolot/money"
)

// topOfBookDepth is all we need: only the last traded price is consumed.
const topOfBookDepth = 1

// Engine prices instruments from top-of-book quotes. Bond quotes arrive as
// a percent of nominal and are rescaled to a currency amount.
type Engine struct {
	broker broker.Broker
}

func NewEngine(b broker.Broker) *Engine {
	return &Engine{broker: b}
}

// Quote returns the instrument's last price as a currency amount rounded
// to 2 decimals. For bonds this is the clean price: accrued interest is
// not included.
func (e *Engine) Quote(ctx context.Context, in broker.Instrument) (float64, error) {
	ob, err := e.broker.GetOrderBook(ctx, in.FIGI, topOfBookDepth)
	if err != nil {
		return 0, fmt.Errorf("order book for %s: %w", in.Ticker, err)
	}

	raw := ob.LastPrice.Float()
	if in.IsBond() {
		return money.Round2(raw * in.Nominal.Float() / 100), nil
	}
	return money.Round2(raw), nil
}

// AccruedInterest returns the bond's accrued interest (NKD) since the last
// coupon, or 0 for non-bonds and bonds without the attribute. Adding it to
// the clean price gives the settlement price.
func AccruedInterest(in broker.Instrument) float64 {
	if !in.IsBond() {
		return 0
	}
	return in.AccruedInterest.Float()
}

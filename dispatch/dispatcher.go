// Package dispatch drives the three run modes: limit-order placement,
// market buys with execution-price confirmation, and bulk cancellation.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rkulagin/autolot/broker"
	"github.com/rkulagin/autolot/config"
	"github.com/rkulagin/autolot/instrument"
	"github.com/rkulagin/autolot/money"
	"github.com/rkulagin/autolot/pricing"
	"github.com/rkulagin/autolot/sizing"
)

// Reporter is the narrow logging capability the dispatcher needs.
// *zap.SugaredLogger satisfies it; tests inject a recorder.
type Reporter interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// ConfirmPolicy bounds the holdings poll that discovers a market order's
// realized price when the submission response omits it.
type ConfirmPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// Sleep overrides time.Sleep so tests run with zero delay.
	Sleep func(time.Duration)
}

// DefaultConfirmPolicy polls up to 5 times, 1 second apart.
func DefaultConfirmPolicy() ConfirmPolicy {
	return ConfirmPolicy{MaxAttempts: 5, Delay: time.Second}
}

func (p ConfirmPolicy) wait() {
	if p.Sleep != nil {
		p.Sleep(p.Delay)
		return
	}
	time.Sleep(p.Delay)
}

// Dispatcher processes the allocation table against one account, one entry
// at a time. Per-entry failures are recorded and reported; only
// account-level failures escape.
type Dispatcher struct {
	broker   broker.Broker
	resolver *instrument.Resolver
	pricer   *pricing.Engine

	accountID   string
	allocations []config.Allocation

	rep     Reporter
	confirm ConfirmPolicy
	runID   string
}

func New(b broker.Broker, r *instrument.Resolver, p *pricing.Engine,
	accountID string, allocations []config.Allocation,
	rep Reporter, confirm ConfirmPolicy, runID string) *Dispatcher {

	return &Dispatcher{
		broker:      b,
		resolver:    r,
		pricer:      p,
		accountID:   accountID,
		allocations: allocations,
		rep:         rep,
		confirm:     confirm,
		runID:       runID,
	}
}

// PlaceLimitOrders runs mode 1: a limit buy per allocation entry at the
// discounted (or fixed) price, sized to the entry's budget.
func (d *Dispatcher) PlaceLimitOrders(ctx context.Context) BatchReport {
	report := BatchReport{RunID: d.runID}
	for _, entry := range d.allocations {
		res := d.placeLimit(ctx, entry)
		d.logResult(entry, res)
		report.add(res)
	}
	return report
}

func (d *Dispatcher) placeLimit(ctx context.Context, entry config.Allocation) EntryResult {
	res := EntryResult{Ticker: entry.Ticker}

	inst, err := d.resolver.Resolve(ctx, entry.Ticker)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}

	quote, err := d.pricer.Quote(ctx, inst)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.MarketPrice = quote
	res.AccruedInterest = pricing.AccruedInterest(inst)

	limitPrice := sizing.LimitPrice(quote, entry.Discount(), entry.FixedPrice)
	lots := sizing.LotsAffordable(entry.Amount, limitPrice, inst.Lot)
	if lots == 0 {
		res.Status, res.Price = StatusInsufficientFunds, limitPrice
		return res
	}

	_, err = d.broker.PostOrder(ctx, broker.OrderRequest{
		FIGI:      inst.FIGI,
		Lots:      lots,
		AccountID: d.accountID,
		Direction: broker.Buy,
		Type:      broker.Limit,
		Price:     money.FromFloat(limitPrice),
		OrderID:   uuid.NewString(),
	})
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}

	res.Status = StatusPlaced
	res.Lots = lots
	res.Quantity = lots * inst.Lot
	res.Price = limitPrice
	res.Spent = money.Round2(limitPrice * float64(res.Quantity))
	return res
}

// MarketBuyAll runs mode 3: a market buy per allocation entry sized to the
// raw quote, followed by execution-price confirmation.
func (d *Dispatcher) MarketBuyAll(ctx context.Context) BatchReport {
	report := BatchReport{RunID: d.runID}
	for _, entry := range d.allocations {
		res := d.marketBuy(ctx, entry)
		d.logResult(entry, res)
		report.add(res)
	}
	return report
}

func (d *Dispatcher) marketBuy(ctx context.Context, entry config.Allocation) EntryResult {
	res := EntryResult{Ticker: entry.Ticker}

	inst, err := d.resolver.Resolve(ctx, entry.Ticker)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}

	quote, err := d.pricer.Quote(ctx, inst)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.MarketPrice = quote
	res.AccruedInterest = pricing.AccruedInterest(inst)

	lots := sizing.LotsAffordable(entry.Amount, quote, inst.Lot)
	if lots == 0 {
		res.Status, res.Price = StatusInsufficientFunds, quote
		return res
	}

	resp, err := d.broker.PostOrder(ctx, broker.OrderRequest{
		FIGI:      inst.FIGI,
		Lots:      lots,
		AccountID: d.accountID,
		Direction: broker.Buy,
		Type:      broker.Market,
		OrderID:   uuid.NewString(),
	})
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}

	res.Lots = lots
	res.Quantity = lots * inst.Lot

	if resp.ExecutedPrice != nil {
		res.Status = StatusPlaced
		res.Price = resp.ExecutedPrice.Float()
	} else if price, ok := d.confirmExecutedPrice(ctx, inst.FIGI); ok {
		res.Status = StatusPlaced
		res.Price = price
	} else {
		// Order is in; only the realized price is unknown. Fall back
		// to the quote for the spend estimate.
		res.Status = StatusUnconfirmed
		res.Price = quote
	}
	res.Spent = money.Round2(res.Price * float64(res.Quantity))
	return res
}

// confirmExecutedPrice polls the account's holdings for a position on the
// instrument with a populated average entry price, stopping as soon as one
// shows up.
func (d *Dispatcher) confirmExecutedPrice(ctx context.Context, figi string) (float64, bool) {
	for attempt := 1; attempt <= d.confirm.MaxAttempts; attempt++ {
		d.confirm.wait()

		positions, err := d.broker.GetPositions(ctx, d.accountID)
		if err != nil {
			d.rep.Warnf("holdings poll %d/%d: %v", attempt, d.confirm.MaxAttempts, err)
			continue
		}
		for _, p := range positions {
			if p.FIGI == figi && p.AveragePrice != nil {
				return p.AveragePrice.Float(), true
			}
		}
	}
	return 0, false
}

// CancelAllOrders runs mode 2. A failure on one order does not block the
// rest; only the order listing itself is fatal.
func (d *Dispatcher) CancelAllOrders(ctx context.Context) (CancelReport, error) {
	orders, err := d.broker.ListOrders(ctx, d.accountID)
	if err != nil {
		return CancelReport{}, err
	}

	report := CancelReport{Total: len(orders)}
	for _, o := range orders {
		name := d.describe(ctx, o.FIGI)
		if err := d.broker.CancelOrder(ctx, d.accountID, o.OrderID); err != nil {
			d.rep.Errorf("cancel order %s (%s): %v", o.OrderID, name, err)
			report.Failed++
			continue
		}
		d.rep.Infof("cancelled order %s (%s, %d lots)", o.OrderID, name, o.Lots)
		report.Cancelled++
	}
	return report, nil
}

// describe names an instrument by ticker for report lines, falling back to
// the raw FIGI when the catalogs don't list it.
func (d *Dispatcher) describe(ctx context.Context, figi string) string {
	in, ok, err := d.resolver.ByFIGI(ctx, figi)
	if err != nil || !ok {
		return figi
	}
	return in.Ticker
}

func (d *Dispatcher) logResult(entry config.Allocation, res EntryResult) {
	switch res.Status {
	case StatusPlaced, StatusUnconfirmed:
		if entry.FixedPrice > 0 {
			d.rep.Infof("%s: %d pcs at %.2f (fixed price, market %.2f), total %.2f",
				res.Ticker, res.Quantity, res.Price, res.MarketPrice, res.Spent)
		} else {
			d.rep.Infof("%s: %d pcs at %.2f (market %.2f, discount %.1f%%), total %.2f",
				res.Ticker, res.Quantity, res.Price, res.MarketPrice, entry.Discount(), res.Spent)
		}
		if res.AccruedInterest > 0 {
			d.rep.Infof("%s: accrued interest %.2f per bond, settlement price %.2f",
				res.Ticker, res.AccruedInterest, money.Round2(res.Price+res.AccruedInterest))
		}
		if res.Status == StatusUnconfirmed {
			d.rep.Warnf("%s: execution price not reported after %d polls, using quote %.2f",
				res.Ticker, d.confirm.MaxAttempts, res.MarketPrice)
		}
	case StatusInsufficientFunds:
		d.rep.Infof("%s: insufficient funds for one lot at %.2f", res.Ticker, res.Price)
	case StatusFailed:
		if errors.Is(res.Err, instrument.ErrNotFound) {
			d.rep.Errorf("%s: not found among shares, etfs or bonds", res.Ticker)
		} else {
			d.rep.Errorf("%s: %v", res.Ticker, res.Err)
		}
	}
}

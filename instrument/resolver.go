// Package instrument resolves ticker symbols to tradeable instruments.
package instrument

import (
	"context"
	"errors"
	"fmt"

	"github.com/rkulagin/autolot/broker"
)

// ErrNotFound is returned when a ticker is absent from every catalog class.
var ErrNotFound = errors.New("instrument not found")

// Priority is the class search order. A ticker listed in more than one
// class resolves to the earliest class here: shares win over ETFs, ETFs win
// over bonds. This is a behavioral contract, not an artifact.
var Priority = []broker.InstrumentClass{
	broker.ClassShare,
	broker.ClassEtf,
	broker.ClassBond,
}

// Resolver looks up instruments by ticker across the broker's catalogs.
// Listings are fetched at most once per class per run.
type Resolver struct {
	broker broker.Broker
	cache  map[broker.InstrumentClass][]broker.Instrument
}

func NewResolver(b broker.Broker) *Resolver {
	return &Resolver{
		broker: b,
		cache:  make(map[broker.InstrumentClass][]broker.Instrument),
	}
}

func (r *Resolver) listing(ctx context.Context, class broker.InstrumentClass) ([]broker.Instrument, error) {
	if cached, ok := r.cache[class]; ok {
		return cached, nil
	}

	instruments, err := r.broker.ListInstruments(ctx, class)
	if err != nil {
		return nil, fmt.Errorf("list %s instruments: %w", class, err)
	}
	r.cache[class] = instruments
	return instruments, nil
}

// Resolve returns the first instrument matching the ticker, scanning
// classes in Priority order.
func (r *Resolver) Resolve(ctx context.Context, ticker string) (broker.Instrument, error) {
	for _, class := range Priority {
		instruments, err := r.listing(ctx, class)
		if err != nil {
			return broker.Instrument{}, err
		}
		for _, in := range instruments {
			if in.Ticker == ticker {
				return in, nil
			}
		}
	}
	return broker.Instrument{}, fmt.Errorf("ticker %s: %w", ticker, ErrNotFound)
}

// ByFIGI finds an instrument by its identifier, scanning the same cached
// listings. The second return is false when no class lists the FIGI.
func (r *Resolver) ByFIGI(ctx context.Context, figi string) (broker.Instrument, bool, error) {
	for _, class := range Priority {
		instruments, err := r.listing(ctx, class)
		if err != nil {
			return broker.Instrument{}, false, err
		}
		for _, in := range instruments {
			if in.FIGI == figi {
				return in, true, nil
			}
		}
	}
	return broker.Instrument{}, false, nil
}

package broker

import (
	"context"

	"github.com/rkulagin/autolot/money"
)

// InstrumentClass identifies which of the broker's catalogs an instrument
// belongs to. Resolution priority across classes is a behavioral contract
// and lives with the resolver, not here.
type InstrumentClass string

const (
	ClassShare InstrumentClass = "share"
	ClassEtf   InstrumentClass = "etf"
	ClassBond  InstrumentClass = "bond"
)

// Instrument is one entry of a catalog listing. Nominal and AccruedInterest
// are populated for bonds only.
type Instrument struct {
	Ticker string
	FIGI   string
	Lot    int
	Class  InstrumentClass

	Nominal         money.Value
	AccruedInterest money.Value
}

// IsBond reports whether quotes for this instrument are percent-of-nominal.
func (i Instrument) IsBond() bool { return i.Class == ClassBond }

type Account struct {
	ID   string
	Name string
}

// OrderBook is the top of book for an instrument. Only the last traded
// price is consumed; for bonds it is quoted as a percent of nominal.
type OrderBook struct {
	FIGI      string
	LastPrice money.Value
}

type Direction string

const Buy Direction = "buy"

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

type OrderRequest struct {
	FIGI      string
	Lots      int
	AccountID string
	Direction Direction
	Type      OrderType
	Price     money.Value // limit orders only

	// OrderID is the client-generated idempotency key; a fresh one is
	// required per submission.
	OrderID string
}

// OrderResponse is the broker's immediate answer to a submission.
// ExecutedPrice is nil when the broker has not reported a fill price yet;
// callers fall back to polling holdings.
type OrderResponse struct {
	OrderID       string
	ExecutedPrice *money.Value
}

// OrderState is one open order as returned by the order listing.
type OrderState struct {
	OrderID string
	FIGI    string
	Lots    int
}

// Position is one holding on the account. AveragePrice is nil until the
// broker's reporting has caught up with a recent fill.
type Position struct {
	FIGI         string
	AveragePrice *money.Value
}

// Broker is the boundary to the trading venue. The run is strictly
// sequential; nothing here is called concurrently.
type Broker interface {
	GetAccounts(ctx context.Context) ([]Account, error)
	ListInstruments(ctx context.Context, class InstrumentClass) ([]Instrument, error)
	GetOrderBook(ctx context.Context, figi string, depth int) (OrderBook, error)
	PostOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
	ListOrders(ctx context.Context, accountID string) ([]OrderState, error)
	CancelOrder(ctx context.Context, accountID, orderID string) error
	GetPositions(ctx context.Context, accountID string) ([]Position, error)
}

// Package tinvest implements broker.Broker against the T-Invest public REST
// gateway, the JSON/HTTP projection of the broker's gRPC API. Every call is
// a POST to /rest/<service>/<method> with a Bearer token; int64 fields are
// JSON strings on the wire, per the gateway convention.
package tinvest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rkulagin/autolot/broker"
	"github.com/rkulagin/autolot/money"
)

const (
	// ProductionURL is the gateway for real accounts.
	ProductionURL = "https://invest-public-api.tinkoff.ru/rest"
	// SandboxURL is the gateway for sandbox accounts.
	SandboxURL = "https://sandbox-invest-public-api.tinkoff.ru/rest"

	apiPrefix = "tinkoff.public.invest.api.contract.v1."
)

// Client is a T-Invest REST gateway client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ broker.Broker = (*Client)(nil)

// NewClient creates a gateway client for the production or sandbox
// environment.
func NewClient(token string, sandbox bool) *Client {
	baseURL := ProductionURL
	if sandbox {
		baseURL = SandboxURL
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// call POSTs the request body to <service>/<method> and decodes the JSON
// response into out.
func (c *Client) call(ctx context.Context, service, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s/%s request: %w", service, method, err)
	}

	url := c.baseURL + "/" + apiPrefix + service + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", service, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return fmt.Errorf("%s/%s: http %d: %s", service, method, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s/%s response: %w", service, method, err)
	}
	return nil
}

type accountsResponse struct {
	Accounts []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"accounts"`
}

// GetAccounts lists the accounts the token can trade under.
func (c *Client) GetAccounts(ctx context.Context) ([]broker.Account, error) {
	var resp accountsResponse
	if err := c.call(ctx, "UsersService", "GetAccounts", struct{}{}, &resp); err != nil {
		return nil, err
	}

	accounts := make([]broker.Account, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		accounts = append(accounts, broker.Account{ID: a.ID, Name: a.Name})
	}
	return accounts, nil
}

type instrumentsRequest struct {
	InstrumentStatus string `json:"instrumentStatus"`
}

type apiInstrument struct {
	Ticker   string     `json:"ticker"`
	FIGI     string     `json:"figi"`
	Lot      int        `json:"lot"`
	Nominal  moneyValue `json:"nominal,omitempty"`
	ACIValue moneyValue `json:"aciValue,omitempty"`
}

type instrumentsResponse struct {
	Instruments []apiInstrument `json:"instruments"`
}

// ListInstruments fetches the full catalog listing for one instrument class.
func (c *Client) ListInstruments(ctx context.Context, class broker.InstrumentClass) ([]broker.Instrument, error) {
	var method string
	switch class {
	case broker.ClassShare:
		method = "Shares"
	case broker.ClassEtf:
		method = "Etfs"
	case broker.ClassBond:
		method = "Bonds"
	default:
		return nil, fmt.Errorf("unknown instrument class %q", class)
	}

	var resp instrumentsResponse
	req := instrumentsRequest{InstrumentStatus: "INSTRUMENT_STATUS_BASE"}
	if err := c.call(ctx, "InstrumentsService", method, req, &resp); err != nil {
		return nil, err
	}

	instruments := make([]broker.Instrument, 0, len(resp.Instruments))
	for _, in := range resp.Instruments {
		nominal, err := in.Nominal.value()
		if err != nil {
			return nil, fmt.Errorf("instrument %s nominal: %w", in.Ticker, err)
		}
		aci, err := in.ACIValue.value()
		if err != nil {
			return nil, fmt.Errorf("instrument %s aci: %w", in.Ticker, err)
		}
		instruments = append(instruments, broker.Instrument{
			Ticker:          in.Ticker,
			FIGI:            in.FIGI,
			Lot:             in.Lot,
			Class:           class,
			Nominal:         nominal,
			AccruedInterest: aci,
		})
	}
	return instruments, nil
}

type orderBookRequest struct {
	FIGI  string `json:"figi"`
	Depth int    `json:"depth"`
}

type orderBookResponse struct {
	FIGI      string    `json:"figi"`
	LastPrice quotation `json:"lastPrice"`
}

// GetOrderBook fetches the order book for an instrument. Depth 1 is enough
// for top-of-book pricing.
func (c *Client) GetOrderBook(ctx context.Context, figi string, depth int) (broker.OrderBook, error) {
	var resp orderBookResponse
	req := orderBookRequest{FIGI: figi, Depth: depth}
	if err := c.call(ctx, "MarketDataService", "GetOrderBook", req, &resp); err != nil {
		return broker.OrderBook{}, err
	}

	last, err := resp.LastPrice.value()
	if err != nil {
		return broker.OrderBook{}, fmt.Errorf("order book %s last price: %w", figi, err)
	}
	return broker.OrderBook{
		FIGI:      resp.FIGI,
		LastPrice: last,
	}, nil
}

type postOrderRequest struct {
	FIGI      string     `json:"figi"`
	Quantity  string     `json:"quantity"`
	AccountID string     `json:"accountId"`
	Direction string     `json:"direction"`
	OrderType string     `json:"orderType"`
	OrderID   string     `json:"orderId"`
	Price     *quotation `json:"price,omitempty"`
}

type postOrderResponse struct {
	OrderID            string     `json:"orderId"`
	ExecutedOrderPrice moneyValue `json:"executedOrderPrice,omitempty"`
}

// PostOrder submits a buy order. The gateway may answer before the fill
// price is known, in which case ExecutedPrice is nil.
func (c *Client) PostOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResponse, error) {
	wire := postOrderRequest{
		FIGI:      req.FIGI,
		Quantity:  strconv.Itoa(req.Lots),
		AccountID: req.AccountID,
		Direction: "ORDER_DIRECTION_BUY",
		OrderType: "ORDER_TYPE_MARKET",
		OrderID:   req.OrderID,
	}
	if req.Type == broker.Limit {
		wire.OrderType = "ORDER_TYPE_LIMIT"
		q := quotationFrom(req.Price)
		wire.Price = &q
	}

	var resp postOrderResponse
	if err := c.call(ctx, "OrdersService", "PostOrder", wire, &resp); err != nil {
		return broker.OrderResponse{}, err
	}

	executed, err := resp.ExecutedOrderPrice.value()
	if err != nil {
		return broker.OrderResponse{}, fmt.Errorf("order %s executed price: %w", resp.OrderID, err)
	}

	out := broker.OrderResponse{OrderID: resp.OrderID}
	if !executed.IsZero() {
		out.ExecutedPrice = &executed
	}
	return out, nil
}

type getOrdersRequest struct {
	AccountID string `json:"accountId"`
}

type getOrdersResponse struct {
	Orders []struct {
		OrderID       string `json:"orderId"`
		FIGI          string `json:"figi"`
		LotsRequested string `json:"lotsRequested"`
	} `json:"orders"`
}

// ListOrders returns the account's open orders.
func (c *Client) ListOrders(ctx context.Context, accountID string) ([]broker.OrderState, error) {
	var resp getOrdersResponse
	if err := c.call(ctx, "OrdersService", "GetOrders", getOrdersRequest{AccountID: accountID}, &resp); err != nil {
		return nil, err
	}

	orders := make([]broker.OrderState, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		lots, err := parseUnits(o.LotsRequested)
		if err != nil {
			return nil, fmt.Errorf("order %s lots: %w", o.OrderID, err)
		}
		orders = append(orders, broker.OrderState{
			OrderID: o.OrderID,
			FIGI:    o.FIGI,
			Lots:    int(lots),
		})
	}
	return orders, nil
}

type cancelOrderRequest struct {
	AccountID string `json:"accountId"`
	OrderID   string `json:"orderId"`
}

// CancelOrder cancels one open order.
func (c *Client) CancelOrder(ctx context.Context, accountID, orderID string) error {
	var resp struct{}
	req := cancelOrderRequest{AccountID: accountID, OrderID: orderID}
	return c.call(ctx, "OrdersService", "CancelOrder", req, &resp)
}

type portfolioRequest struct {
	AccountID string `json:"accountId"`
}

type portfolioResponse struct {
	Positions []struct {
		FIGI                 string     `json:"figi"`
		AveragePositionPrice moneyValue `json:"averagePositionPrice,omitempty"`
	} `json:"positions"`
}

// GetPositions returns the account's current holdings.
func (c *Client) GetPositions(ctx context.Context, accountID string) ([]broker.Position, error) {
	var resp portfolioResponse
	if err := c.call(ctx, "OperationsService", "GetPortfolio", portfolioRequest{AccountID: accountID}, &resp); err != nil {
		return nil, err
	}

	positions := make([]broker.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		avg, err := p.AveragePositionPrice.value()
		if err != nil {
			return nil, fmt.Errorf("position %s average price: %w", p.FIGI, err)
		}
		pos := broker.Position{FIGI: p.FIGI}
		if !avg.IsZero() {
			pos.AveragePrice = &avg
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// moneyValue is the gateway's money representation: string-typed int64
// units plus numeric nanos.
type moneyValue struct {
	Currency string `json:"currency,omitempty"`
	Units    string `json:"units"`
	Nano     int32  `json:"nano"`
}

func (m moneyValue) value() (money.Value, error) {
	units, err := parseUnits(m.Units)
	if err != nil {
		return money.Value{}, err
	}
	return money.Value{Units: units, Nano: m.Nano}, nil
}

// quotation is moneyValue without the currency; used for prices.
type quotation struct {
	Units string `json:"units"`
	Nano  int32  `json:"nano"`
}

func (q quotation) value() (money.Value, error) {
	units, err := parseUnits(q.Units)
	if err != nil {
		return money.Value{}, err
	}
	return money.Value{Units: units, Nano: q.Nano}, nil
}

func quotationFrom(v money.Value) quotation {
	return quotation{Units: strconv.FormatInt(v.Units, 10), Nano: v.Nano}
}

// parseUnits tolerates the empty string the gateway emits for absent
// values; anything else that fails to parse is corrupt data, not a zero.
func parseUnits(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse units %q: %w", s, err)
	}
	return n, nil
}

package tinvest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rkulagin/autolot/broker"
	"github.com/rkulagin/autolot/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	return &Client{
		baseURL:    serverURL,
		token:      "test-token",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestNewClient(t *testing.T) {
	t.Run("production", func(t *testing.T) {
		c := NewClient("test-token", false)
		assert.Equal(t, ProductionURL, c.baseURL)
		assert.Equal(t, "test-token", c.token)
		assert.NotNil(t, c.httpClient)
	})

	t.Run("sandbox", func(t *testing.T) {
		c := NewClient("test-token", true)
		assert.Equal(t, SandboxURL, c.baseURL)
	})
}

func TestGetAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/"+apiPrefix+"UsersService/GetAccounts", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"accounts":[{"id":"acc-1","name":"Main"},{"id":"acc-2","name":"IIA"}]}`))
	}))
	defer server.Close()

	accounts, err := newTestClient(server.URL).GetAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, broker.Account{ID: "acc-1", Name: "Main"}, accounts[0])
}

func TestListInstruments_Bonds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+apiPrefix+"InstrumentsService/Bonds", r.URL.Path)

		var req instrumentsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "INSTRUMENT_STATUS_BASE", req.InstrumentStatus)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"instruments":[
			{"ticker":"SU26248RMFS3","figi":"BBG00R05JT04","lot":1,
			 "nominal":{"currency":"rub","units":"1000","nano":0},
			 "aciValue":{"currency":"rub","units":"12","nano":340000000}}
		]}`))
	}))
	defer server.Close()

	instruments, err := newTestClient(server.URL).ListInstruments(context.Background(), broker.ClassBond)
	require.NoError(t, err)
	require.Len(t, instruments, 1)

	bond := instruments[0]
	assert.Equal(t, "SU26248RMFS3", bond.Ticker)
	assert.Equal(t, "BBG00R05JT04", bond.FIGI)
	assert.Equal(t, 1, bond.Lot)
	assert.Equal(t, broker.ClassBond, bond.Class)
	assert.Equal(t, 1000.00, bond.Nominal.Float())
	assert.Equal(t, 12.34, bond.AccruedInterest.Float())
}

func TestListInstruments_UnknownClass(t *testing.T) {
	_, err := newTestClient("http://unused").ListInstruments(context.Background(), "future")
	assert.Error(t, err)
}

func TestGetOrderBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+apiPrefix+"MarketDataService/GetOrderBook", r.URL.Path)

		var req orderBookRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BBG004730N88", req.FIGI)
		assert.Equal(t, 1, req.Depth)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"figi":"BBG004730N88","lastPrice":{"units":"285","nano":500000000}}`))
	}))
	defer server.Close()

	ob, err := newTestClient(server.URL).GetOrderBook(context.Background(), "BBG004730N88", 1)
	require.NoError(t, err)
	assert.Equal(t, "BBG004730N88", ob.FIGI)
	assert.Equal(t, 285.50, ob.LastPrice.Float())
}

func TestPostOrder_Limit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+apiPrefix+"OrdersService/PostOrder", r.URL.Path)

		var req postOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BBG004730N88", req.FIGI)
		assert.Equal(t, "3", req.Quantity)
		assert.Equal(t, "acc-1", req.AccountID)
		assert.Equal(t, "ORDER_DIRECTION_BUY", req.Direction)
		assert.Equal(t, "ORDER_TYPE_LIMIT", req.OrderType)
		assert.Equal(t, "client-order-1", req.OrderID)
		require.NotNil(t, req.Price)
		assert.Equal(t, "276", req.Price.Units)
		assert.Equal(t, int32(940000000), req.Price.Nano)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"orderId":"broker-order-1"}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).PostOrder(context.Background(), broker.OrderRequest{
		FIGI:      "BBG004730N88",
		Lots:      3,
		AccountID: "acc-1",
		Direction: broker.Buy,
		Type:      broker.Limit,
		Price:     money.FromFloat(276.94),
		OrderID:   "client-order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "broker-order-1", resp.OrderID)
	assert.Nil(t, resp.ExecutedPrice)
}

func TestPostOrder_MarketWithExecutedPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req postOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ORDER_TYPE_MARKET", req.OrderType)
		assert.Nil(t, req.Price)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"orderId":"broker-order-2",
			"executedOrderPrice":{"currency":"rub","units":"285","nano":600000000}}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).PostOrder(context.Background(), broker.OrderRequest{
		FIGI:      "BBG004730N88",
		Lots:      1,
		AccountID: "acc-1",
		Direction: broker.Buy,
		Type:      broker.Market,
		OrderID:   "client-order-2",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.ExecutedPrice)
	assert.Equal(t, 285.60, resp.ExecutedPrice.Float())
}

func TestListOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+apiPrefix+"OrdersService/GetOrders", r.URL.Path)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"orders":[
			{"orderId":"o-1","figi":"BBG004730N88","lotsRequested":"3"},
			{"orderId":"o-2","figi":"BBG333","lotsRequested":"10"}
		]}`))
	}))
	defer server.Close()

	orders, err := newTestClient(server.URL).ListOrders(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, broker.OrderState{OrderID: "o-1", FIGI: "BBG004730N88", Lots: 3}, orders[0])
	assert.Equal(t, 10, orders[1].Lots)
}

func TestCancelOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cancelOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acc-1", req.AccountID)
		assert.Equal(t, "o-1", req.OrderID)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).CancelOrder(context.Background(), "acc-1", "o-1")
	assert.NoError(t, err)
}

func TestGetPositions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+apiPrefix+"OperationsService/GetPortfolio", r.URL.Path)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"positions":[
			{"figi":"BBG004730N88","averagePositionPrice":{"currency":"rub","units":"285","nano":600000000}},
			{"figi":"BBG333","averagePositionPrice":{"currency":"rub","units":"0","nano":0}}
		]}`))
	}))
	defer server.Close()

	positions, err := newTestClient(server.URL).GetPositions(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	require.NotNil(t, positions[0].AveragePrice)
	assert.Equal(t, 285.60, positions[0].AveragePrice.Float())

	// A zero average price means reporting has not caught up yet.
	assert.Nil(t, positions[1].AveragePrice)
}

// Corrupt wire numbers must surface as errors, never as zero prices.
func TestMalformedUnitsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"figi":"BBG004730N88","lastPrice":{"units":"28S","nano":0}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetOrderBook(context.Background(), "BBG004730N88", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parse units "28S"`)
}

func TestListOrders_MalformedLotsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"orders":[{"orderId":"o-1","figi":"BBG004730N88","lotsRequested":"many"}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ListOrders(context.Background(), "acc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "o-1")
	assert.Contains(t, err.Error(), `"many"`)
}

func TestCallErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":40003,"message":"authentication token is missing or invalid"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetAccounts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 401")
	assert.Contains(t, err.Error(), "authentication token")
}

package tastytrade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/pkg/broker"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	t           *testing.T
	loginStatus int
	loginCalls  atomic.Int32
	validateOK  atomic.Bool
	orderStatus []string // status returned by successive polls
	polls       atomic.Int32

	mu          sync.Mutex
	lastEntry   map[string]any
	lastComplex map[string]any
}

func (f *fakeAPI) sent() (entry, complexOrder map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEntry, f.lastComplex
}

func (f *fakeAPI) decode(r *http.Request, dst *map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.NoError(f.t, json.NewDecoder(r.Body).Decode(dst))
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls.Add(1)
		var body map[string]any
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(f.t, "trader", body["login"])
		if f.loginStatus != 0 {
			w.WriteHeader(f.loginStatus)
			_, _ = w.Write([]byte(`{"error":{"code":"invalid_credentials","message":"Invalid login"}}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"session-token":"tok-1"}}`))
	})
	mux.HandleFunc("POST /sessions/validate", func(w http.ResponseWriter, r *http.Request) {
		if !f.validateOK.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	mux.HandleFunc("GET /instruments/futures", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "tok-1", r.Header.Get("Authorization"))
		assert.Equal(f.t, "MES", r.URL.Query().Get("product-code[]"))
		_, _ = w.Write([]byte(`{"data":{"items":[{"symbol":"/MESH7","active-month":false},{"symbol":"/MESZ6","active-month":true}]}}`))
	})
	mux.HandleFunc("GET /customers/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"items":[{"account":{"account-number":"5WT00001"}},{"account":{"account-number":"5WT00002"}}]}}`))
	})
	mux.HandleFunc("POST /accounts/5WT00002/orders", func(w http.ResponseWriter, r *http.Request) {
		f.decode(r, &f.lastEntry)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"order":{"id":4242,"status":"Received"}}}`))
	})
	mux.HandleFunc("GET /accounts/5WT00002/orders/4242", func(w http.ResponseWriter, r *http.Request) {
		n := int(f.polls.Add(1)) - 1
		status := f.orderStatus[len(f.orderStatus)-1]
		if n < len(f.orderStatus) {
			status = f.orderStatus[n]
		}
		_, _ = w.Write([]byte(`{"data":{"id":4242,"status":"` + status + `","legs":[{"fills":[` +
			`{"fill-price":"5000.00","quantity":"1"},{"fill-price":"5001.00","quantity":"3"}]}]}}`))
	})
	mux.HandleFunc("POST /accounts/5WT00002/complex-orders", func(w http.ResponseWriter, r *http.Request) {
		f.decode(r, &f.lastComplex)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"complex-order":{"id":77}}}`))
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	api.t = t
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:      srv.URL,
		Username:     "trader",
		Password:     "secret",
		SymbolBase:   "/MES",
		AccountIndex: 1,
		LoginWait:    time.Millisecond,
		PollInterval: time.Millisecond,
		PollAttempts: 5,
	})
}

func TestLoginResolvesContractAndAccount(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, "/MESZ6", c.Symbol())
	assert.Equal(t, "5WT00002", c.Account())
}

func TestLoginRejectedIsNotRetried(t *testing.T) {
	api := &fakeAPI{loginStatus: http.StatusUnauthorized}
	c := newTestClient(t, api)
	err := c.Login(context.Background())
	assert.ErrorIs(t, err, broker.ErrAuthRejected)
	assert.ErrorContains(t, err, "Invalid login")
	assert.EqualValues(t, 1, api.loginCalls.Load())
}

func TestLoginRetriesTransientFailures(t *testing.T) {
	api := &fakeAPI{loginStatus: http.StatusServiceUnavailable}
	c := newTestClient(t, api)
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, broker.ErrAuthRejected)
	assert.EqualValues(t, 3, api.loginCalls.Load())
}

func TestRevalidateFallsBackToLogin(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)
	assert.True(t, c.Revalidate(context.Background()))
	assert.EqualValues(t, 1, api.loginCalls.Load())

	api.validateOK.Store(true)
	assert.True(t, c.Revalidate(context.Background()))
	assert.EqualValues(t, 1, api.loginCalls.Load())
}

func TestPlaceBracketLong(t *testing.T) {
	api := &fakeAPI{orderStatus: []string{"Received", "Live", "Filled"}}
	c := newTestClient(t, api)
	require.NoError(t, c.Login(context.Background()))

	res, err := c.PlaceBracket(context.Background(), broker.BracketRequest{
		Side: broker.Buy, Target: decimal.RequireFromString("0.2"), Stop: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "4242", res.EntryOrderID)
	assert.Equal(t, "77", res.ComplexOrderID)
	assert.Equal(t, "5000.75", res.FillPrice.String())
	assert.Equal(t, "5000.95", res.TargetPrice.String())
	assert.Equal(t, "5000.25", res.StopPrice.String())
	assert.EqualValues(t, 3, api.polls.Load())

	entry, complexOrder := api.sent()
	assert.Equal(t, "Market", entry["order-type"])
	entryLeg := entry["legs"].([]any)[0].(map[string]any)
	assert.Equal(t, "Buy to Open", entryLeg["action"])
	assert.Equal(t, "/MESZ6", entryLeg["symbol"])

	assert.Equal(t, "OCO", complexOrder["type"])
	orders := complexOrder["orders"].([]any)
	require.Len(t, orders, 2)
	limit := orders[0].(map[string]any)
	assert.Equal(t, "Limit", limit["order-type"])
	assert.Equal(t, "5000.95", limit["price"])
	assert.Equal(t, "Credit", limit["price-effect"])
	stop := orders[1].(map[string]any)
	assert.Equal(t, "Stop", stop["order-type"])
	assert.Equal(t, "5000.25", stop["stop-trigger"])
	exitLeg := stop["legs"].([]any)[0].(map[string]any)
	assert.Equal(t, "Sell to Close", exitLeg["action"])
}

func TestPlaceBracketRejected(t *testing.T) {
	api := &fakeAPI{orderStatus: []string{"Rejected"}}
	c := newTestClient(t, api)
	require.NoError(t, c.Login(context.Background()))

	_, err := c.PlaceBracket(context.Background(), broker.BracketRequest{Side: broker.Sell})
	assert.ErrorIs(t, err, broker.ErrOrderRejected)
	entry, complexOrder := api.sent()
	assert.Equal(t, "Sell to Open", entry["legs"].([]any)[0].(map[string]any)["action"])
	assert.Nil(t, complexOrder)
}

func TestPlaceBracketFillTimeout(t *testing.T) {
	api := &fakeAPI{orderStatus: []string{"Live"}}
	c := newTestClient(t, api)
	require.NoError(t, c.Login(context.Background()))

	_, err := c.PlaceBracket(context.Background(), broker.BracketRequest{Side: broker.Buy})
	assert.ErrorIs(t, err, broker.ErrFillTimeout)
	assert.EqualValues(t, 5, api.polls.Load())
}

func TestPlaceBracketRequiresLogin(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	_, err := c.PlaceBracket(context.Background(), broker.BracketRequest{Side: broker.Buy})
	assert.Error(t, err)
}

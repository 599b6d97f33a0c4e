package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := &Client{
		BaseURL:    srv.URL + "/v1",
		APIKey:     "test-key",
		HTTPClient: srv.Client(),
	}
	return c, srv
}

func TestCaseSendsAPIKey(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/case", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		w.Write([]byte(`{"name":"MM1","period":1,"tick":117,"ticks_per_period":300,"status":"ACTIVE"}`))
	})
	defer srv.Close()

	cs, err := c.Case(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 117, cs.Tick)
	assert.True(t, cs.Active())
}

func TestBookQuery(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/securities/book", r.URL.Path)
		assert.Equal(t, "WNTR", r.URL.Query().Get("ticker"))
		w.Write([]byte(`{"bids":[{"price":99.95,"quantity":500}],"asks":[{"price":100.05,"quantity":700}]}`))
	})
	defer srv.Close()

	book, err := c.Book(context.Background(), "WNTR")
	require.NoError(t, err)
	require.True(t, book.Valid())
	assert.Equal(t, 99.95, book.BestBid())
	assert.Equal(t, 100.05, book.BestAsk())
	assert.InDelta(t, 100.00, book.Mid(), 1e-9)
}

func TestOpenOrdersFilter(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OPEN", r.URL.Query().Get("status"))
		w.Write([]byte(`[{"order_id":7,"ticker":"WNTR","action":"BUY","quantity":7200,"filled":200,"price":99.99,"status":"OPEN"}]`))
	})
	defer srv.Close()

	orders, err := c.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 7000.0, orders[0].Unfilled())
}

func TestPlaceLimitParams(t *testing.T) {
	var got map[string]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		q := r.URL.Query()
		got = map[string]string{
			"ticker":   q.Get("ticker"),
			"type":     q.Get("type"),
			"action":   q.Get("action"),
			"quantity": q.Get("quantity"),
			"price":    q.Get("price"),
		}
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	err := c.PlaceLimit(context.Background(), "WNTR", "SELL", 7200, 100.0149)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"ticker":   "WNTR",
		"type":     "LIMIT",
		"action":   "SELL",
		"quantity": "7200",
		"price":    "100.01", // 两位小数
	}, got)
}

func TestCancelAll(t *testing.T) {
	called := false
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/v1/commands/cancel", r.URL.Path)
		assert.Equal(t, "SMMR", r.URL.Query().Get("ticker"))
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	require.NoError(t, c.CancelAll(context.Background(), "SMMR"))
	assert.True(t, called)
}

func TestRejectionDistinctFromTransportError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient trading limit", http.StatusUnprocessableEntity)
	})
	defer srv.Close()

	err := c.PlaceLimit(context.Background(), "WNTR", "BUY", 100, 99.99)
	require.Error(t, err)
	assert.True(t, IsRejection(err))

	var re *RejectionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnprocessableEntity, re.StatusCode)
	assert.Contains(t, re.Body, "insufficient")

	// 网络错误不是拒单
	srv.Close()
	err = c.PlaceLimit(context.Background(), "WNTR", "BUY", 100, 99.99)
	require.Error(t, err)
	assert.False(t, IsRejection(err))
}

func TestLimiterInvoked(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ACTIVE"}`))
	})
	defer srv.Close()

	waits := 0
	c.Limiter = limiterFunc(func(context.Context) error { waits++; return nil })

	_, err := c.Case(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, waits)
}

func TestLimiterErrorAbortsCall(t *testing.T) {
	handled := false
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		handled = true
	})
	defer srv.Close()

	c.Limiter = limiterFunc(func(ctx context.Context) error { return context.Canceled })

	_, err := c.Case(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, handled, "request must not reach the venue when the limiter refuses")
}

type limiterFunc func(context.Context) error

func (f limiterFunc) Wait(ctx context.Context) error { return f(ctx) }

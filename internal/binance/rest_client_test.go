package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"futures-ema-bot/internal/config"
	"futures-ema-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:     resty.New().SetBaseURL(server.URL),
		apiKey:     "test_api_key",
		secretKey:  "test_secret_key",
		recvWindow: defaultRecv,
		streamURL:  "ws" + server.URL[len("http"):] + "/ws",
		dialer:     websocket.DefaultDialer,
		logger:     zap.NewNop(), // Use a no-op logger for tests
		limiter:    rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return c, server
}

func TestGetServerTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		expectedTime := time.Now().UnixMilli()
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/fapi/v1/time", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"serverTime": %d}`, expectedTime)
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := c.GetServerTime(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, expectedTime, serverTime)
	})

	t.Run("ClientError", func(t *testing.T) {
		calls := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code": -1021, "msg": "Timestamp outside recvWindow"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := c.GetServerTime(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get server time")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, -1021, apiErr.Code)
		assert.Equal(t, int64(0), serverTime)
		assert.Equal(t, 1, calls, "4xx responses are not retried")
	})
}

func TestNewClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		c := NewClient(&config.Binance{Testnet: true}, "k", "s", zap.NewNop())
		assert.Equal(t, testnetBaseURL, c.client.BaseURL)
		assert.Equal(t, testnetStreamURL, c.streamURL)
		assert.Equal(t, "k", c.apiKey)
	})

	t.Run("Production", func(t *testing.T) {
		c := NewClient(&config.Binance{}, "k", "s", zap.NewNop())
		assert.Equal(t, baseURL, c.client.BaseURL)
		assert.Equal(t, streamURL, c.streamURL)
		assert.Equal(t, int64(defaultRecv), c.recvWindow)
	})
}

func TestCurrentPrice(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"50000.10","time":1}`))
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	price, err := c.CurrentPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.10, price)
}

func TestPlaceMarketOrder(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		assert.Equal(t, "test_api_key", r.Header.Get("X-MBX-APIKEY"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "BTCUSDT", r.PostForm.Get("symbol"))
		assert.Equal(t, "BUY", r.PostForm.Get("side"))
		assert.Equal(t, "MARKET", r.PostForm.Get("type"))
		assert.Equal(t, "0.005", r.PostForm.Get("quantity"))
		assert.Equal(t, "RESULT", r.PostForm.Get("newOrderRespType"))
		assert.Len(t, r.PostForm.Get("newClientOrderId"), 36)
		assert.NotEmpty(t, r.PostForm.Get("signature"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId": 42, "symbol":"BTCUSDT", "status":"FILLED", "avgPrice":"50010.5", "price":"0"}`))
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	res, err := c.PlaceMarketOrder(context.Background(), "BTCUSDT", models.OrderSideBuy, 0.005)
	require.NoError(t, err)
	assert.Equal(t, models.OrderResult{OrderID: "42", AvgPrice: 50010.5}, res)
}

func TestPlaceBracketOrders(t *testing.T) {
	var forms []map[string]string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		forms = append(forms, map[string]string{
			"type":        r.PostForm.Get("type"),
			"side":        r.PostForm.Get("side"),
			"price":       r.PostForm.Get("price"),
			"stopPrice":   r.PostForm.Get("stopPrice"),
			"timeInForce": r.PostForm.Get("timeInForce"),
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"orderId": %d, "avgPrice":"0.00", "price":"0"}`, len(forms))
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	stop, err := c.PlaceStopOrder(context.Background(), "BTCUSDT", models.OrderSideSell, 0.005, 49000)
	require.NoError(t, err)
	assert.Equal(t, "1", stop.OrderID)

	tp, err := c.PlaceLimitOrder(context.Background(), "BTCUSDT", models.OrderSideSell, 0.005, 51000.5)
	require.NoError(t, err)
	assert.Equal(t, "2", tp.OrderID)

	require.Len(t, forms, 2)
	assert.Equal(t, map[string]string{"type": "STOP_MARKET", "side": "SELL", "price": "", "stopPrice": "49000", "timeInForce": "GTC"}, forms[0])
	assert.Equal(t, map[string]string{"type": "LIMIT", "side": "SELL", "price": "51000.5", "stopPrice": "", "timeInForce": "GTC"}, forms[1])
}

func TestPlaceOrder_NotRetried(t *testing.T) {
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	_, err := c.PlaceMarketOrder(context.Background(), "BTCUSDT", models.OrderSideSell, 1)
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "orders must never be sent twice")
}

func TestSetLeverageAndCancelAll(t *testing.T) {
	var paths []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/fapi/v1/leverage":
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "10", r.PostForm.Get("leverage"))
			_, _ = w.Write([]byte(`{"leverage":10,"symbol":"BTCUSDT"}`))
		case "/fapi/v1/allOpenOrders":
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			assert.NotEmpty(t, r.URL.Query().Get("signature"))
			_, _ = w.Write([]byte(`{"code":200,"msg":"The operation of cancel all open order is done."}`))
		}
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	require.NoError(t, c.SetLeverage(context.Background(), "BTCUSDT", 10))
	require.NoError(t, c.CancelAllOrders(context.Background(), "BTCUSDT"))
	assert.Equal(t, []string{"POST /fapi/v1/leverage", "DELETE /fapi/v1/allOpenOrders"}, paths)
}

func TestPing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/account", r.URL.Path)
		assert.Equal(t, "test_api_key", r.Header.Get("X-MBX-APIKEY"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalWalletBalance":"100.0","availableBalance":"90.0"}`))
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	assert.NoError(t, c.Ping(context.Background()))
}

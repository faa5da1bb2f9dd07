package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"futures-ema-bot/internal/config"
	"futures-ema-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL          = "https://fapi.binance.com"
	testnetBaseURL   = "https://testnet.binancefuture.com"
	streamURL        = "wss://fstream.binance.com/ws"
	testnetStreamURL = "wss://fstream.binancefuture.com/ws"
	defaultRecv      = 5000 // How long a request is valid in milliseconds

	OrderTypeMarket     = "MARKET"
	OrderTypeLimit      = "LIMIT"
	OrderTypeStopMarket = "STOP_MARKET"
	TimeInForceGTC      = "GTC"
)

// APIError is the error body Binance returns on rejected requests.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance error %d: %s", e.Code, e.Msg)
}

// Client is a USDT-M futures client bound to one user's API key pair.
type Client struct {
	client     *resty.Client
	apiKey     string
	secretKey  string
	recvWindow int64
	streamURL  string
	dialer     *websocket.Dialer
	logger     *zap.Logger
	limiter    *rate.Limiter
}

// NewClient creates a futures client for one key pair.
func NewClient(cfg *config.Binance, apiKey, secretKey string, logger *zap.Logger) *Client {
	rest, stream := cfg.BaseURL, cfg.StreamURL
	if cfg.Testnet {
		rest, stream = testnetBaseURL, testnetStreamURL
		logger.Warn("Using Binance Futures Testnet")
	}
	if rest == "" {
		rest = baseURL
	}
	if stream == "" {
		stream = streamURL
	}

	recv := cfg.RecvWindow
	if recv <= 0 {
		recv = defaultRecv
	}

	// rate.Limit is requests per second.
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		client:     resty.New().SetBaseURL(rest).SetTimeout(10 * time.Second),
		apiKey:     apiKey,
		secretKey:  secretKey,
		recvWindow: recv,
		streamURL:  stream,
		dialer:     websocket.DefaultDialer,
		logger:     logger.Named("binance"),
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *Client) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// signed stamps and signs params and returns the encoded query.
func (c *Client) signed(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
	query := params.Encode()
	return query + "&signature=" + c.sign(query)
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// Requests that change orders are sent once; the caller decides what a failure means.
func (c *Client) doRequest(ctx context.Context, method, path string, req *resty.Request, retry bool) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	maxAttempts := 1
	if retry {
		maxAttempts = 3
	}
	req.SetContext(ctx).SetError(&APIError{})

	attempts := 0
	for i := 0; i < maxAttempts; i++ {
		attempts++
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err = req.Execute(method, path)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
			if apiErr, ok := resp.Error().(*APIError); ok && apiErr.Code != 0 {
				err = apiErr
			} else {
				err = fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry || i == maxAttempts-1 {
			break
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempt(s): %w", attempts, err)
}

// GetServerTime fetches the current server time from Binance.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	type serverTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().SetResult(&serverTimeResponse{})
	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/time", req, true)
	if err != nil {
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}
	return resp.Result().(*serverTimeResponse).ServerTime, nil
}

// accountResponse is the subset of /fapi/v2/account the bot reads.
type accountResponse struct {
	TotalWalletBalance string `json:"totalWalletBalance"`
	AvailableBalance   string `json:"availableBalance"`
}

// Ping verifies connectivity and that the key pair is accepted for futures trading.
func (c *Client) Ping(ctx context.Context) error {
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(c.signed(url.Values{})).
		SetResult(&accountResponse{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/account", req, true)
	if err != nil {
		return fmt.Errorf("failed to get futures account: %w", err)
	}
	account := resp.Result().(*accountResponse)
	c.logger.Info("Futures account reachable", zap.String("wallet_balance", account.TotalWalletBalance))
	return nil
}

// SetLeverage sets the initial leverage for symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.signed(params))

	if _, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/leverage", req, false); err != nil {
		return fmt.Errorf("failed to set leverage: %w", err)
	}
	return nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// CurrentPrice fetches the latest trade price of symbol.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&TickerPrice{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/ticker/price", req, true)
	if err != nil {
		return 0, fmt.Errorf("failed to get ticker price: %w", err)
	}
	ticker := resp.Result().(*TickerPrice)
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse price %q for %s: %w", ticker.Price, symbol, err)
	}
	return price, nil
}

// OrderResponse represents the response from placing a futures order.
type OrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice"`
	OrigQuantity  string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	TimeInForce   string `json:"timeInForce"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	StopPrice     string `json:"stopPrice"`
}

// PlaceMarketOrder places a market order and returns its fill price.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity float64) (models.OrderResult, error) {
	params := url.Values{}
	params.Set("type", OrderTypeMarket)
	params.Set("newOrderRespType", "RESULT")
	return c.placeOrder(ctx, symbol, side, quantity, params)
}

// PlaceStopOrder places a STOP_MARKET order triggered at stopPrice.
func (c *Client) PlaceStopOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, stopPrice float64) (models.OrderResult, error) {
	params := url.Values{}
	params.Set("type", OrderTypeStopMarket)
	params.Set("stopPrice", formatFloat(stopPrice))
	params.Set("timeInForce", TimeInForceGTC)
	return c.placeOrder(ctx, symbol, side, quantity, params)
}

// PlaceLimitOrder places a GTC LIMIT order at price.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, price float64) (models.OrderResult, error) {
	params := url.Values{}
	params.Set("type", OrderTypeLimit)
	params.Set("price", formatFloat(price))
	params.Set("timeInForce", TimeInForceGTC)
	return c.placeOrder(ctx, symbol, side, quantity, params)
}

func (c *Client) placeOrder(ctx context.Context, symbol string, side models.OrderSide, quantity float64, params url.Values) (models.OrderResult, error) {
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("quantity", formatFloat(quantity))
	params.Set("newClientOrderId", uuid.NewString())

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.signed(params)).
		SetResult(&OrderResponse{})

	l := c.logger.With(
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("type", params.Get("type")),
		zap.Float64("quantity", quantity),
	)

	resp, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", req, false)
	if err != nil {
		l.Error("Failed to place order", zap.Error(err))
		return models.OrderResult{}, fmt.Errorf("failed to place %s order: %w", params.Get("type"), err)
	}

	order := resp.Result().(*OrderResponse)
	l.Info("Order placed", zap.Int64("order_id", order.OrderID), zap.String("status", order.Status))

	avg, _ := strconv.ParseFloat(order.AvgPrice, 64)
	if avg == 0 {
		avg, _ = strconv.ParseFloat(order.Price, 64)
	}
	return models.OrderResult{OrderID: strconv.FormatInt(order.OrderID, 10), AvgPrice: avg}, nil
}

// CancelAllOrders cancels every open order on symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(c.signed(params))

	if _, err := c.doRequest(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", req, false); err != nil {
		return fmt.Errorf("failed to cancel open orders: %w", err)
	}
	c.logger.Info("Cancelled all open orders", zap.String("symbol", symbol))
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package trader

import (
	"context"
	"math"
	"testing"

	"futures-ema-bot/internal/database"
	"futures-ema-bot/internal/models"
	"futures-ema-bot/internal/telemetry"
	"futures-ema-bot/internal/vault"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockExchange is a mock implementation of the Exchange interface.
type MockExchange struct {
	mock.Mock
}

func (m *MockExchange) Ping(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return m.Called(symbol, leverage).Error(0)
}

func (m *MockExchange) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, qty float64) (models.OrderResult, error) {
	args := m.Called(symbol, side, qty)
	return args.Get(0).(models.OrderResult), args.Error(1)
}

func (m *MockExchange) PlaceStopOrder(ctx context.Context, symbol string, side models.OrderSide, qty, stopPrice float64) (models.OrderResult, error) {
	args := m.Called(symbol, side, qty, stopPrice)
	return args.Get(0).(models.OrderResult), args.Error(1)
}

func (m *MockExchange) PlaceLimitOrder(ctx context.Context, symbol string, side models.OrderSide, qty, price float64) (models.OrderResult, error) {
	args := m.Called(symbol, side, qty, price)
	return args.Get(0).(models.OrderResult), args.Error(1)
}

func (m *MockExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	return m.Called(symbol).Error(0)
}

func (m *MockExchange) StreamClosedCandles(ctx context.Context, symbol, interval string) (<-chan models.Candle, error) {
	args := m.Called(symbol, interval)
	ch, _ := args.Get(0).(chan models.Candle)
	if ch == nil {
		return nil, args.Error(1)
	}
	return ch, args.Error(1)
}

// approx matches a float argument within a small tolerance.
func approx(want float64) any {
	return mock.MatchedBy(func(got float64) bool {
		return math.Abs(got-want) < 1e-9
	})
}

// staticResolver hands out fixed credentials, or err when set.
type staticResolver struct {
	err error
}

func (r staticResolver) Resolve(ctx context.Context, userID string) (vault.Credentials, error) {
	if r.err != nil {
		return vault.Credentials{}, r.err
	}
	return vault.Credentials{APIKey: "key-" + userID, APISecret: "secret-" + userID}, nil
}

func newTestSink(t *testing.T) *telemetry.Store {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	return telemetry.NewStore(db)
}

func validSettings() Settings {
	return Settings{
		Symbol:            "BTCUSDT",
		Leverage:          10,
		OrderSize:         25,
		StopLossPercent:   2,
		TakeProfitPercent: 4,
		Timeframe:         "5m",
	}
}

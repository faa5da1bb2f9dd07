package trader

import (
	"context"

	"futures-ema-bot/internal/models"
	"futures-ema-bot/internal/vault"
)

// Exchange is the futures capability a bot trades through. One value serves one user.
type Exchange interface {
	// Ping verifies connectivity and that the credentials are accepted.
	Ping(ctx context.Context) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, qty float64) (models.OrderResult, error)
	PlaceStopOrder(ctx context.Context, symbol string, side models.OrderSide, qty, stopPrice float64) (models.OrderResult, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side models.OrderSide, qty, price float64) (models.OrderResult, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	// StreamClosedCandles emits closed candles until the connection drops or ctx ends,
	// then closes the channel. Calling it again opens a new stream.
	StreamClosedCandles(ctx context.Context, symbol, interval string) (<-chan models.Candle, error)
}

// ExchangeFactory builds an exchange session from decrypted credentials.
type ExchangeFactory func(creds vault.Credentials) (Exchange, error)

// CredentialResolver returns a user's decrypted key pair.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID string) (vault.Credentials, error)
}

// Sink persists trades, stats, activity entries and market snapshots.
type Sink interface {
	AppendTrade(ctx context.Context, trade models.Trade) error
	UpdateStats(ctx context.Context, userID string, pnl float64) error
	AppendActivity(ctx context.Context, userID string, level models.ActivityLevel, title, message string) error
	UpdateMarketSnapshot(ctx context.Context, snap models.MarketSnapshot) error
}

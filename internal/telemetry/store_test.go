package telemetry

import (
	"context"
	"testing"
	"time"

	"futures-ema-bot/internal/database"
	"futures-ema-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	return NewStore(db)
}

func TestApplyPnL(t *testing.T) {
	at := time.Now()
	stats := models.Stats{UserID: "u"}

	stats = ApplyPnL(stats, 5, at)
	stats = ApplyPnL(stats, -2, at)
	stats = ApplyPnL(stats, 0, at)
	stats = ApplyPnL(stats, 1, at)

	assert.Equal(t, int64(4), stats.TotalTrades)
	assert.Equal(t, int64(2), stats.WinningTrades)
	assert.Equal(t, int64(2), stats.LosingTrades, "zero pnl counts as a loss")
	assert.InDelta(t, 4.0, stats.TotalProfit, 1e-9)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
	require.NotNil(t, stats.LastTradeAt)
}

func TestStore_UpdateStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateStats(ctx, "user-1", 5))
	require.NoError(t, s.UpdateStats(ctx, "user-1", -1))
	require.NoError(t, s.UpdateStats(ctx, "user-2", 3))

	stats, err := s.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTrades)
	assert.Equal(t, int64(1), stats.WinningTrades)
	assert.Equal(t, int64(1), stats.LosingTrades)
	assert.InDelta(t, 4.0, stats.TotalProfit, 1e-9)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)

	other, err := s.Stats(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.TotalTrades)
}

func TestStore_Stats_Empty(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, models.Stats{UserID: "nobody"}, stats)
}

func TestStore_TradesAndActivities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pnl := 5.0

	require.NoError(t, s.AppendTrade(ctx, models.Trade{UserID: "user-1", Symbol: "BTCUSDT", Side: "LONG", Timestamp: 1}))
	require.NoError(t, s.AppendTrade(ctx, models.Trade{UserID: "user-1", Symbol: "BTCUSDT", Side: "SELL", PnL: &pnl, Timestamp: 2}))
	require.NoError(t, s.AppendTrade(ctx, models.Trade{UserID: "user-2", Symbol: "ETHUSDT", Side: "SHORT", Timestamp: 3}))

	trades, err := s.RecentTrades(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "SELL", trades[0].Side, "newest first")
	require.NotNil(t, trades[0].PnL)
	assert.Equal(t, 5.0, *trades[0].PnL)
	assert.Nil(t, trades[1].PnL)

	require.NoError(t, s.AppendActivity(ctx, "user-1", models.ActivityInfo, "Bot started", "monitoring"))
	require.NoError(t, s.AppendActivity(ctx, "user-1", models.ActivityError, "Failed", "boom"))

	activities, err := s.RecentActivities(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityError, activities[0].Level)
}

func TestStore_MarketSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap, err := s.MarketSnapshot(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, s.UpdateMarketSnapshot(ctx, models.MarketSnapshot{UserID: "user-1", Symbol: "BTCUSDT", CurrentPrice: 100}))
	require.NoError(t, s.UpdateMarketSnapshot(ctx, models.MarketSnapshot{UserID: "user-1", Symbol: "BTCUSDT", CurrentPrice: 101, EMAFast: 100.5}))

	snap, err = s.MarketSnapshot(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 101.0, snap.CurrentPrice)
	assert.Equal(t, 100.5, snap.EMAFast)
}

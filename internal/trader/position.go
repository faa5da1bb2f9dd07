package trader

import (
	"context"
	"fmt"
	"time"

	"futures-ema-bot/internal/models"
	"go.uber.org/zap"
)

// Position is the single futures position a bot tracks, with its bracket orders.
type Position struct {
	Side              models.Side `json:"side"`
	Quantity          float64     `json:"quantity"`
	EntryPrice        float64     `json:"entry_price"`
	StopLossPrice     float64     `json:"stop_loss_price"`
	TakeProfitPrice   float64     `json:"take_profit_price"`
	StopOrderID       string      `json:"stop_order_id"`
	TakeProfitOrderID string      `json:"take_profit_order_id"`
	OpenedAt          time.Time   `json:"opened_at"`
}

// BracketPrices returns the stop-loss and take-profit trigger prices for a position
// entered at price, rounded to the symbol's tick precision.
func BracketPrices(symbol string, side models.Side, price, stopLossPercent, takeProfitPercent float64) (stopLoss, takeProfit float64) {
	sl := stopLossPercent / 100
	tp := takeProfitPercent / 100
	if side == models.SideLong {
		return RoundPrice(symbol, price*(1-sl)), RoundPrice(symbol, price*(1+tp))
	}
	return RoundPrice(symbol, price*(1+sl)), RoundPrice(symbol, price*(1-tp))
}

// RealizedPnL is the profit of closing qty at exit for a position entered at entry.
func RealizedPnL(side models.Side, entry, exit, qty float64) float64 {
	if side == models.SideLong {
		return (exit - entry) * qty
	}
	return (entry - exit) * qty
}

// PositionManager opens and closes the one position of a bot. It is driven by the
// bot's candle goroutine only and is not safe for concurrent use.
type PositionManager struct {
	userID   string
	settings Settings
	exchange Exchange
	sink     Sink
	logger   *zap.Logger
	now      func() time.Time
	// stopping reports that the owning bot was asked to stop; nil means never.
	stopping func() bool

	position *Position
}

// NewPositionManager creates a manager with no open position.
func NewPositionManager(userID string, settings Settings, exchange Exchange, sink Sink, logger *zap.Logger) *PositionManager {
	return &PositionManager{
		userID:   userID,
		settings: settings,
		exchange: exchange,
		sink:     sink,
		logger:   logger.With(zap.String("symbol", settings.Symbol)),
		now:      time.Now,
	}
}

// Position returns a copy of the open position, or nil.
func (m *PositionManager) Position() *Position {
	if m.position == nil {
		return nil
	}
	p := *m.position
	return &p
}

// OnSignal moves the account to side: nothing if already there, otherwise close the
// opposite position first and then open. A failed close leaves the old position in
// place and nothing new is opened.
func (m *PositionManager) OnSignal(ctx context.Context, side models.Side) error {
	if m.position != nil && m.position.Side == side {
		m.logger.Debug("Signal matches open position, nothing to do", zap.String("side", string(side)))
		return nil
	}
	if m.position != nil {
		if err := m.Close(ctx); err != nil {
			return err
		}
	}
	if err := m.checkStopping(); err != nil {
		m.logger.Info("Bot stopping, not opening a new position", zap.String("side", string(side)))
		return err
	}
	return m.Open(ctx, side)
}

func (m *PositionManager) checkStopping() error {
	if m.stopping != nil && m.stopping() {
		return newError(ErrState, "bot stopping")
	}
	return nil
}

// Open enters a new position with a market order and places its bracket.
// Any exchange failure leaves the manager without a position. A stop that arrives
// after the entry filled keeps the position tracked but places no bracket.
func (m *PositionManager) Open(ctx context.Context, side models.Side) error {
	if m.position != nil {
		return newError(ErrState, "position already open on %s", m.position.Side)
	}
	if err := m.checkStopping(); err != nil {
		return err
	}

	l := m.logger.With(zap.String("side", string(side)))
	pos, order, err := m.open(ctx, side)
	if err != nil && pos != nil {
		m.position = pos
		l.Warn("Bot stopping, position opened without bracket", zap.Float64("entry_price", pos.EntryPrice))
		m.entryTrade(ctx, pos, order)
		m.activity(ctx, models.ActivityWarning,
			fmt.Sprintf("%s position opened without bracket", side),
			fmt.Sprintf("Bot stopped while opening %s position for %s at $%.2f; no stop-loss or take-profit placed",
				side, m.settings.Symbol, pos.EntryPrice))
		return err
	}
	if err != nil {
		l.Error("Failed to open position", zap.Error(err))
		m.activity(ctx, models.ActivityError, fmt.Sprintf("Failed to open %s position", side), err.Error())
		return err
	}
	m.position = pos

	l.Info("Position opened",
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("quantity", pos.Quantity),
		zap.Float64("stop_loss", pos.StopLossPrice),
		zap.Float64("take_profit", pos.TakeProfitPrice),
	)
	m.entryTrade(ctx, pos, order)
	m.activity(ctx, models.ActivityInfo,
		fmt.Sprintf("%s position opened", side),
		fmt.Sprintf("Opened %s position for %s at $%.2f", side, m.settings.Symbol, pos.EntryPrice))
	return nil
}

// open returns a position together with ErrState when a stop cut it short after the
// entry filled.
func (m *PositionManager) open(ctx context.Context, side models.Side) (*Position, models.OrderResult, error) {
	s := m.settings

	if err := m.exchange.SetLeverage(ctx, s.Symbol, s.Leverage); err != nil {
		return nil, models.OrderResult{}, wrapError(ErrExecution, "set leverage", err)
	}

	price, err := m.exchange.CurrentPrice(ctx, s.Symbol)
	if err != nil {
		return nil, models.OrderResult{}, wrapError(ErrExecution, "fetch price", err)
	}
	if price <= 0 {
		return nil, models.OrderResult{}, newError(ErrExecution, "invalid price %v for %s", price, s.Symbol)
	}

	qty := RoundQuantity(s.Symbol, s.OrderSize*float64(s.Leverage)/price)
	if qty <= 0 {
		return nil, models.OrderResult{}, newError(ErrExecution, "quantity for %s rounds to zero at price %v", s.Symbol, price)
	}

	if err := m.checkStopping(); err != nil {
		return nil, models.OrderResult{}, err
	}
	order, err := m.exchange.PlaceMarketOrder(ctx, s.Symbol, side.EntrySide(), qty)
	if err != nil {
		return nil, models.OrderResult{}, wrapError(ErrExecution, "place market order", err)
	}

	stopLoss, takeProfit := BracketPrices(s.Symbol, side, price, s.StopLossPercent, s.TakeProfitPercent)
	pos := &Position{
		Side:            side,
		Quantity:        qty,
		EntryPrice:      price,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		OpenedAt:        m.now(),
	}
	if err := m.checkStopping(); err != nil {
		return pos, order, err
	}

	stop, err := m.exchange.PlaceStopOrder(ctx, s.Symbol, side.ExitSide(), qty, stopLoss)
	if err != nil {
		return nil, models.OrderResult{}, wrapError(ErrExecution, "place stop-loss order", err)
	}
	take, err := m.exchange.PlaceLimitOrder(ctx, s.Symbol, side.ExitSide(), qty, takeProfit)
	if err != nil {
		return nil, models.OrderResult{}, wrapError(ErrExecution, "place take-profit order", err)
	}

	pos.StopOrderID = stop.OrderID
	pos.TakeProfitOrderID = take.OrderID
	return pos, order, nil
}

// Close cancels the bracket, exits the position at market and books the pnl.
// On failure the position is kept so a later signal can retry.
func (m *PositionManager) Close(ctx context.Context) error {
	if m.position == nil {
		return nil
	}
	pos := *m.position
	l := m.logger.With(zap.String("side", string(pos.Side)))

	pnl, order, exit, err := m.close(ctx, pos)
	if err != nil {
		l.Error("Failed to close position", zap.Error(err))
		m.activity(ctx, models.ActivityError, "Failed to close position", err.Error())
		return err
	}
	m.position = nil

	l.Info("Position closed", zap.Float64("exit_price", exit), zap.Float64("pnl", pnl))
	m.trade(ctx, models.Trade{
		Symbol:   m.settings.Symbol,
		Side:     string(pos.Side.ExitSide()),
		Quantity: pos.Quantity,
		Price:    exit,
		OrderID:  order.OrderID,
		PnL:      &pnl,
	})
	if err := m.sink.UpdateStats(ctx, m.userID, pnl); err != nil {
		l.Error("Failed to update stats", zap.Error(err))
	}
	m.activity(ctx, models.ActivityInfo, "Position closed",
		fmt.Sprintf("Closed %s position. P&L: $%.2f", pos.Side, pnl))
	return nil
}

func (m *PositionManager) close(ctx context.Context, pos Position) (pnl float64, order models.OrderResult, exit float64, err error) {
	symbol := m.settings.Symbol

	if err := m.exchange.CancelAllOrders(ctx, symbol); err != nil {
		return 0, order, 0, wrapError(ErrExecution, "cancel open orders", err)
	}

	order, err = m.exchange.PlaceMarketOrder(ctx, symbol, pos.Side.ExitSide(), pos.Quantity)
	if err != nil {
		return 0, order, 0, wrapError(ErrExecution, "place closing order", err)
	}

	exit = order.AvgPrice
	if exit <= 0 {
		// fill price not reported; the order is filled so book against the market price
		exit, err = m.exchange.CurrentPrice(ctx, symbol)
		if err != nil {
			m.logger.Warn("No fill price for closing order, booking at entry", zap.Error(err))
			exit = pos.EntryPrice
		}
	}

	return RealizedPnL(pos.Side, pos.EntryPrice, exit, pos.Quantity), order, exit, nil
}

func (m *PositionManager) entryTrade(ctx context.Context, pos *Position, order models.OrderResult) {
	m.trade(ctx, models.Trade{
		Symbol:   m.settings.Symbol,
		Side:     string(pos.Side),
		Quantity: pos.Quantity,
		Price:    pos.EntryPrice,
		OrderID:  order.OrderID,
	})
}

func (m *PositionManager) trade(ctx context.Context, t models.Trade) {
	t.UserID = m.userID
	t.Type = "MARKET"
	t.Status = "FILLED"
	t.Timestamp = m.now().UnixMilli()
	if err := m.sink.AppendTrade(ctx, t); err != nil {
		// The trade happened on the exchange; a lost record must not change bot state.
		m.logger.Error("Failed to save trade record", zap.Error(err))
	}
}

func (m *PositionManager) activity(ctx context.Context, level models.ActivityLevel, title, message string) {
	if err := m.sink.AppendActivity(ctx, m.userID, level, title, message); err != nil {
		m.logger.Error("Failed to log activity", zap.String("title", title), zap.Error(err))
	}
}

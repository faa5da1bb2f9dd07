package trader

import (
	"slices"
	"strings"
)

// Settings is the user's bot configuration. A running bot never sees changes;
// stop and start again to apply new values.
type Settings struct {
	Symbol            string  `json:"symbol"`
	Leverage          int     `json:"leverage"`
	OrderSize         float64 `json:"order_size"` // margin in USDT
	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	Timeframe         string  `json:"timeframe"`
}

// Timeframes accepted for the kline stream.
var Timeframes = []string{"5m", "15m", "30m"}

const (
	MinLeverage   = 1
	MaxLeverage   = 25
	MinOrderSize  = 25.0
	MinStopLoss   = 0.5
	MaxStopLoss   = 10.0
	MinTakeProfit = 1.0
	MaxTakeProfit = 20.0
)

// Normalize returns a copy with the symbol upper-cased and trimmed.
func (s Settings) Normalize() Settings {
	s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
	s.Timeframe = strings.TrimSpace(s.Timeframe)
	return s
}

// Validate checks the settings against the ranges the product allows.
func (s Settings) Validate() error {
	switch {
	case s.Symbol == "":
		return newError(ErrConfiguration, "symbol is required")
	case s.Leverage < MinLeverage || s.Leverage > MaxLeverage:
		return newError(ErrConfiguration, "leverage must be between %dx and %dx", MinLeverage, MaxLeverage)
	case s.OrderSize < MinOrderSize:
		return newError(ErrConfiguration, "order size must be at least %.0f USDT", MinOrderSize)
	case s.StopLossPercent < MinStopLoss || s.StopLossPercent > MaxStopLoss:
		return newError(ErrConfiguration, "stop loss must be between %.1f%% and %.0f%%", MinStopLoss, MaxStopLoss)
	case s.TakeProfitPercent < MinTakeProfit || s.TakeProfitPercent > MaxTakeProfit:
		return newError(ErrConfiguration, "take profit must be between %.0f%% and %.0f%%", MinTakeProfit, MaxTakeProfit)
	case !slices.Contains(Timeframes, s.Timeframe):
		return newError(ErrConfiguration, "invalid timeframe %q", s.Timeframe)
	}
	return nil
}

package models

import "time"

// Stats is the cumulative trading result of one user.
// There should only ever be one row per user.
type Stats struct {
	UserID        string     `gorm:"primaryKey" json:"user_id"`
	TotalTrades   int64      `json:"total_trades"`
	TotalProfit   float64    `json:"total_profit"`
	WinningTrades int64      `json:"winning_trades"`
	LosingTrades  int64      `json:"losing_trades"`
	WinRate       float64    `json:"win_rate"` // percent, 0..100
	LastTradeAt   *time.Time `json:"last_trade_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

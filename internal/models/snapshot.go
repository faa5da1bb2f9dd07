package models

import "time"

// MarketSnapshot is the latest market view of a running bot, overwritten on every closed candle.
type MarketSnapshot struct {
	UserID        string    `gorm:"primaryKey" json:"user_id"`
	Symbol        string    `json:"symbol"`
	CurrentPrice  float64   `json:"current_price"`
	Volume        float64   `json:"volume"`
	EMAFast       float64   `json:"ema_fast"`
	EMASlow       float64   `json:"ema_slow"`
	PositionSide  string    `json:"position_side,omitempty"`
	PositionQty   float64   `json:"position_qty,omitempty"`
	PositionEntry float64   `json:"position_entry,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

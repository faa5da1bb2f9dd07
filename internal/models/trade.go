package models

import "gorm.io/gorm"

// Trade represents a filled order recorded for a user. Rows are append-only.
type Trade struct {
	gorm.Model
	UserID    string   `gorm:"index;not null" json:"user_id"`
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"` // "LONG"/"SHORT" on open, "BUY"/"SELL" on close
	Type      string   `json:"type"` // always "MARKET"
	Status    string   `json:"status"`
	Quantity  float64  `json:"quantity"`
	Price     float64  `json:"price"`
	OrderID   string   `json:"order_id"`
	PnL       *float64 `json:"pnl,omitempty"` // set on closing trades only
	Timestamp int64    `gorm:"index" json:"timestamp"`
}

package models

import "time"

// Candle is a closed kline reduced to what the signal engine needs.
type Candle struct {
	Price     float64   `json:"price"` // close
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"` // open time
}

// Side is the direction of a futures position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OrderSide is the exchange order direction.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// EntrySide is the order side that opens a position on s.
func (s Side) EntrySide() OrderSide {
	if s == SideLong {
		return OrderSideBuy
	}
	return OrderSideSell
}

// ExitSide is the order side that reduces a position on s.
func (s Side) ExitSide() OrderSide {
	if s == SideLong {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderResult is what the engine needs back from a placed order.
type OrderResult struct {
	OrderID  string
	AvgPrice float64
}

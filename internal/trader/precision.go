package trader

import "github.com/shopspring/decimal"

const (
	defaultQuantityPrecision = 3
	defaultPricePrecision    = 2
)

// Decimal places accepted by the exchange per symbol.
var (
	quantityPrecision = map[string]int32{
		"BTCUSDT":  3,
		"ETHUSDT":  3,
		"BNBUSDT":  2,
		"ADAUSDT":  0,
		"DOTUSDT":  1,
		"LINKUSDT": 2,
	}
	pricePrecision = map[string]int32{
		"BTCUSDT":  2,
		"ETHUSDT":  2,
		"BNBUSDT":  2,
		"ADAUSDT":  4,
		"DOTUSDT":  3,
		"LINKUSDT": 3,
	}
)

// RoundQuantity rounds an order quantity half away from zero to the symbol's lot precision.
func RoundQuantity(symbol string, qty float64) float64 {
	places, ok := quantityPrecision[symbol]
	if !ok {
		places = defaultQuantityPrecision
	}
	return round(qty, places)
}

// RoundPrice rounds a price to the symbol's tick precision.
func RoundPrice(symbol string, price float64) float64 {
	places, ok := pricePrecision[symbol]
	if !ok {
		places = defaultPricePrecision
	}
	return round(price, places)
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Package signal turns a stream of closed candles into EMA crossover events.
package signal

import (
	"fmt"

	"futures-ema-bot/internal/models"
)

// Signal is a crossover direction.
type Signal string

const (
	None  Signal = ""
	Long  Signal = "LONG"
	Short Signal = "SHORT"
)

// Side maps a directional signal to the position side it asks for.
func (s Signal) Side() models.Side {
	if s == Short {
		return models.SideShort
	}
	return models.SideLong
}

// Config sizes the engine.
type Config struct {
	WindowSize int // candles (and EMA values) retained
	FastPeriod int
	SlowPeriod int
}

// DefaultConfig is EMA 9/21 over a 50 candle window.
func DefaultConfig() Config {
	return Config{WindowSize: 50, FastPeriod: 9, SlowPeriod: 21}
}

// Validate checks the periods fit inside the window.
func (c Config) Validate() error {
	if c.FastPeriod <= 0 || c.SlowPeriod <= 0 {
		return fmt.Errorf("ema periods must be positive, got %d/%d", c.FastPeriod, c.SlowPeriod)
	}
	if c.FastPeriod >= c.SlowPeriod {
		return fmt.Errorf("fast period %d must be below slow period %d", c.FastPeriod, c.SlowPeriod)
	}
	if c.WindowSize < c.SlowPeriod {
		return fmt.Errorf("window size %d is smaller than slow period %d", c.WindowSize, c.SlowPeriod)
	}
	return nil
}

// Engine keeps a bounded candle window and the fast/slow EMA series computed from it.
// It is not safe for concurrent use; a bot feeds it from a single goroutine.
type Engine struct {
	cfg     Config
	candles []models.Candle
	fast    []float64
	slow    []float64
}

// NewEngine creates an engine. Use Config.Validate first for user supplied values.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		candles: make([]models.Candle, 0, cfg.WindowSize+1),
		fast:    make([]float64, 0, cfg.WindowSize+1),
		slow:    make([]float64, 0, cfg.WindowSize+1),
	}
}

// Ingest appends a closed candle and returns the crossover it produced, if any.
// Both EMAs are recomputed from the whole retained window once it holds at least
// SlowPeriod candles; a crossover needs two such values in each series.
func (e *Engine) Ingest(c models.Candle) Signal {
	e.candles = appendBounded(e.candles, c, e.cfg.WindowSize)

	if len(e.candles) < e.cfg.SlowPeriod {
		return None
	}

	prices := make([]float64, len(e.candles))
	for i, candle := range e.candles {
		prices[i] = candle.Price
	}
	e.fast = appendBounded(e.fast, EMA(prices, e.cfg.FastPeriod), e.cfg.WindowSize)
	e.slow = appendBounded(e.slow, EMA(prices, e.cfg.SlowPeriod), e.cfg.WindowSize)

	if len(e.fast) < 2 || len(e.slow) < 2 {
		return None
	}
	n := len(e.fast)
	return DetectCross(e.fast[n-2], e.slow[n-2], e.fast[n-1], e.slow[n-1])
}

// DetectCross is edge triggered: it reports a direction only on the pair where the
// fast EMA moves from one side of the slow EMA (or equal) to the other.
func DetectCross(prevFast, prevSlow, fast, slow float64) Signal {
	switch {
	case fast > slow && prevFast <= prevSlow:
		return Long
	case fast < slow && prevFast >= prevSlow:
		return Short
	default:
		return None
	}
}

// Depth is the number of candles currently retained.
func (e *Engine) Depth() int {
	return len(e.candles)
}

// Latest returns the newest fast and slow EMA values; ok is false during warm-up.
func (e *Engine) Latest() (fast, slow float64, ok bool) {
	if len(e.fast) == 0 {
		return 0, 0, false
	}
	return e.fast[len(e.fast)-1], e.slow[len(e.slow)-1], true
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if len(s) > limit {
		// shift in place so the backing array does not grow forever
		copy(s, s[len(s)-limit:])
		s = s[:limit]
	}
	return s
}

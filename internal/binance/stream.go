package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"futures-ema-bot/internal/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// klineEvent is a <symbol>@kline_<interval> message.
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

// parseClosedKline decodes a kline message; ok is false for candles that are still forming.
func parseClosedKline(msg []byte) (candle models.Candle, ok bool, err error) {
	var ev klineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return models.Candle{}, false, fmt.Errorf("decode kline: %w", err)
	}
	if ev.EventType != "kline" {
		return models.Candle{}, false, nil
	}
	if !ev.Kline.IsClosed {
		return models.Candle{}, false, nil
	}
	price, err := strconv.ParseFloat(ev.Kline.Close, 64)
	if err != nil {
		return models.Candle{}, false, fmt.Errorf("parse close %q: %w", ev.Kline.Close, err)
	}
	volume, err := strconv.ParseFloat(ev.Kline.Volume, 64)
	if err != nil {
		return models.Candle{}, false, fmt.Errorf("parse volume %q: %w", ev.Kline.Volume, err)
	}
	return models.Candle{
		Price:     price,
		Volume:    volume,
		Timestamp: time.UnixMilli(ev.Kline.OpenTime),
	}, true, nil
}

// StreamClosedCandles subscribes to the kline stream of symbol/interval and emits closed
// candles in arrival order. The channel is closed when the connection drops or ctx is
// cancelled; call again to reconnect.
func (c *Client) StreamClosedCandles(ctx context.Context, symbol, interval string) (<-chan models.Candle, error) {
	// Binance requires lowercase symbols for WebSocket streams
	u := fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(c.streamURL, "/"), strings.ToLower(symbol), interval)
	l := c.logger.With(zap.String("symbol", symbol), zap.String("interval", interval))

	conn, resp, err := c.dialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial binance ws: %w", err)
	}
	l.Info("Kline stream connected", zap.String("url", u))

	out := make(chan models.Candle, 100)
	done := make(chan struct{})

	// ReadMessage blocks, so closing the connection is how cancellation reaches it.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					l.Warn("Kline stream read failed", zap.Error(err))
				}
				return
			}

			candle, ok, err := parseClosedKline(msg)
			if err != nil {
				l.Warn("Skipping malformed kline message", zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			select {
			case out <- candle:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

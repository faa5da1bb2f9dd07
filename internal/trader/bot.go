package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"futures-ema-bot/internal/models"
	"futures-ema-bot/internal/signal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle phase of a bot.
type State string

const (
	StateStopped      State = "stopped"
	StateInitializing State = "initializing"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
)

// Options are the engine-wide knobs shared by every bot.
type Options struct {
	Signal             signal.Config
	ReconnectDelay     time.Duration
	VerifyConnectivity bool
	CancelOrdersOnStop bool
}

// DefaultOptions mirrors the engine section defaults of the config file.
func DefaultOptions() Options {
	return Options{
		Signal:             signal.DefaultConfig(),
		ReconnectDelay:     5 * time.Second,
		VerifyConnectivity: true,
	}
}

// Status is a point-in-time snapshot of a bot.
type Status struct {
	IsRunning         bool          `json:"is_running"`
	State             State         `json:"state"`
	RunID             string        `json:"run_id,omitempty"`
	Symbol            string        `json:"symbol,omitempty"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	CurrentPosition   *Position     `json:"current_position"`
	LastSignal        signal.Signal `json:"last_signal"`
	CandleBufferDepth int           `json:"candle_buffer_depth"`
	EMAFast           float64       `json:"ema_fast"`
	EMASlow           float64       `json:"ema_slow"`
}

const stopOrderTimeout = 15 * time.Second

// Bot trades one user's settings. After initialize it runs a single goroutine
// that owns the candle stream, the signal engine and the position manager.
type Bot struct {
	userID   string
	settings Settings
	opts     Options
	vault    CredentialResolver
	factory  ExchangeFactory
	sink     Sink
	logger   *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once

	// set during initialize, read-only afterwards
	exchange  Exchange
	engine    *signal.Engine
	positions *PositionManager

	// held for the duration of one trading action
	tradeMu sync.Mutex

	mu     sync.RWMutex
	status Status
}

func newBot(userID string, settings Settings, opts Options, vault CredentialResolver, factory ExchangeFactory, sink Sink, logger *zap.Logger) *Bot {
	// The bot outlives the request that started it.
	ctx, cancel := context.WithCancel(context.Background())
	runID := uuid.NewString()
	return &Bot{
		userID:   userID,
		settings: settings,
		opts:     opts,
		vault:    vault,
		factory:  factory,
		sink:     sink,
		logger: logger.With(
			zap.String("user_id", userID),
			zap.String("run_id", runID),
			zap.String("symbol", settings.Symbol),
		),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		status: Status{
			State:  StateStopped,
			RunID:  runID,
			Symbol: settings.Symbol,
		},
	}
}

// initialize resolves credentials, opens the exchange session and seeds an empty
// signal engine. It aborts if either ctx or the bot is cancelled.
func (b *Bot) initialize(ctx context.Context) error {
	b.setState(StateInitializing)

	initCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	creds, err := b.vault.Resolve(initCtx, b.userID)
	if err != nil {
		return classifyVaultError(err)
	}

	exchange, err := b.factory(creds)
	if err != nil {
		return wrapError(ErrConfiguration, "create exchange client", err)
	}

	if b.opts.VerifyConnectivity {
		if err := exchange.Ping(initCtx); err != nil {
			return wrapError(ErrConnection, "verify exchange connectivity", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return wrapError(ErrState, "initialize", err)
	}
	if err := b.ctx.Err(); err != nil {
		return wrapError(ErrState, "initialize", err)
	}

	b.mu.Lock()
	b.exchange = exchange
	b.mu.Unlock()
	b.engine = signal.NewEngine(b.opts.Signal)
	b.positions = NewPositionManager(b.userID, b.settings, exchange, b.sink, b.logger)
	b.positions.stopping = func() bool { return b.ctx.Err() != nil }
	return nil
}

// start launches the run loop. It fails if Stop already ran.
func (b *Bot) start() error {
	now := time.Now()
	b.mu.Lock()
	// checked under the lock so Stop either sees StartedAt or cancels first
	if b.ctx.Err() != nil {
		b.mu.Unlock()
		return newError(ErrState, "bot stopped during initialization")
	}
	b.status.StartedAt = &now
	b.status.IsRunning = true
	b.mu.Unlock()

	go b.run()
	return nil
}

func (b *Bot) run() {
	defer b.finish()

	l := b.logger
	l.Info("Bot started", zap.String("timeframe", b.settings.Timeframe))

	for {
		candles, err := b.exchange.StreamClosedCandles(b.ctx, b.settings.Symbol, b.settings.Timeframe)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			err = wrapError(ErrConnection, "open candle stream", err)
			l.Error("Failed to connect candle stream", zap.Error(err))
			b.activity(models.ActivityError, "WebSocket error", err.Error())
		} else {
			l.Info("Candle stream connected")
			b.activity(models.ActivityInfo, "WebSocket connected",
				fmt.Sprintf("Streaming %s %s candles", b.settings.Symbol, b.settings.Timeframe))
			b.setState(StateStreaming)

			for c := range candles {
				if b.ctx.Err() != nil {
					break
				}
				b.process(c)
			}
			if b.ctx.Err() != nil {
				return
			}
			l.Warn("Candle stream disconnected", zap.Duration("retry_in", b.opts.ReconnectDelay))
			b.activity(models.ActivityWarning, "WebSocket disconnected",
				fmt.Sprintf("Reconnecting in %s", b.opts.ReconnectDelay))
		}

		b.setState(StateReconnecting)
		timer := time.NewTimer(b.opts.ReconnectDelay)
		select {
		case <-b.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// process feeds one closed candle through the engine and acts on a new crossover.
func (b *Bot) process(c models.Candle) {
	sig := b.engine.Ingest(c)
	fast, slow, _ := b.engine.Latest()

	b.mu.Lock()
	b.status.CandleBufferDepth = b.engine.Depth()
	b.status.EMAFast = fast
	b.status.EMASlow = slow
	// the memo only moves for a crossover that is acted on
	acted := sig != signal.None && sig != b.status.LastSignal && b.ctx.Err() == nil
	if acted {
		b.status.LastSignal = sig
	}
	b.mu.Unlock()

	// Orders already in flight finish even if Stop arrives; the position manager
	// checks for a stop before each new order.
	tradeCtx := context.WithoutCancel(b.ctx)

	if acted {
		b.logger.Info("Crossover detected",
			zap.String("signal", string(sig)),
			zap.Float64("price", c.Price),
			zap.Float64("ema_fast", fast),
			zap.Float64("ema_slow", slow),
		)
		b.tradeMu.Lock()
		err := b.positions.OnSignal(tradeCtx, sig.Side())
		b.tradeMu.Unlock()
		if err != nil {
			b.logger.Error("Failed to act on signal", zap.String("signal", string(sig)), zap.Error(err))
		}
		b.mu.Lock()
		b.status.CurrentPosition = b.positions.Position()
		b.mu.Unlock()
	}

	snap := models.MarketSnapshot{
		UserID:       b.userID,
		Symbol:       b.settings.Symbol,
		CurrentPrice: c.Price,
		Volume:       c.Volume,
		EMAFast:      fast,
		EMASlow:      slow,
	}
	if pos := b.positions.Position(); pos != nil {
		snap.PositionSide = string(pos.Side)
		snap.PositionQty = pos.Quantity
		snap.PositionEntry = pos.EntryPrice
	}
	if err := b.sink.UpdateMarketSnapshot(tradeCtx, snap); err != nil {
		b.logger.Error("Failed to update market snapshot", zap.Error(err))
	}
}

// Stop requests shutdown and returns without waiting for the run loop. With
// cancelOrders set, open orders on the symbol are cancelled as well.
func (b *Bot) Stop(ctx context.Context, cancelOrders bool) {
	b.stopOnce.Do(func() {
		b.cancel()

		b.mu.Lock()
		b.status.IsRunning = false
		exchange := b.exchange
		started := b.status.StartedAt != nil
		b.mu.Unlock()

		if !started {
			// never reached the run loop
			b.finish()
		}

		if cancelOrders && exchange != nil {
			// An order placed by an in-flight action would outlive a cancel sent now,
			// so the cancel runs after that action instead.
			if b.tradeMu.TryLock() {
				b.cancelOrders(ctx, exchange)
			} else {
				b.logger.Info("Trading action in flight, cancelling orders once it completes")
				go func() {
					b.tradeMu.Lock()
					b.cancelOrders(ctx, exchange)
				}()
			}
		}
		b.logger.Info("Bot stopped")
	})
}

// cancelOrders cancels every open order on the symbol; the caller holds tradeMu.
func (b *Bot) cancelOrders(ctx context.Context, exchange Exchange) {
	defer b.tradeMu.Unlock()
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopOrderTimeout)
	defer cancel()
	if err := exchange.CancelAllOrders(cctx, b.settings.Symbol); err != nil {
		err = wrapError(ErrExecution, "cancel open orders on stop", err)
		b.logger.Error("Failed to cancel open orders", zap.Error(err))
		b.activity(models.ActivityError, "Failed to cancel orders", err.Error())
	}
}

// Done is closed once the run loop has exited.
func (b *Bot) Done() <-chan struct{} {
	return b.done
}

// Status returns a snapshot safe to hand to other goroutines.
func (b *Bot) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.status
	if s.CurrentPosition != nil {
		p := *s.CurrentPosition
		s.CurrentPosition = &p
	}
	return s
}

func (b *Bot) finish() {
	b.doneOnce.Do(func() {
		b.mu.Lock()
		b.status.State = StateStopped
		b.status.IsRunning = false
		b.mu.Unlock()
		close(b.done)
	})
}

func (b *Bot) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil && s != StateStopped {
		return
	}
	b.status.State = s
}

func (b *Bot) activity(level models.ActivityLevel, title, message string) {
	if err := b.sink.AppendActivity(context.WithoutCancel(b.ctx), b.userID, level, title, message); err != nil {
		b.logger.Error("Failed to log activity", zap.String("title", title), zap.Error(err))
	}
}

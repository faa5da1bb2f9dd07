package trader

import (
	"context"
	"errors"
	"slices"
	"sync"

	"futures-ema-bot/internal/models"
	"go.uber.org/zap"
)

// Result is the outcome of a supervisor command as reported to callers.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func failure(msg string, err error) Result {
	return Result{Success: false, Message: msg, Err: err}
}

// Supervisor owns at most one bot per user.
type Supervisor struct {
	vault   CredentialResolver
	factory ExchangeFactory
	sink    Sink
	opts    Options
	logger  *zap.Logger

	mu   sync.Mutex
	bots map[string]*Bot
}

// NewSupervisor creates a supervisor with no bots.
func NewSupervisor(vault CredentialResolver, factory ExchangeFactory, sink Sink, opts Options, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		vault:   vault,
		factory: factory,
		sink:    sink,
		opts:    opts,
		logger:  logger,
		bots:    make(map[string]*Bot),
	}
}

// Start creates, initializes and launches a bot for userID. The slot is claimed
// before initialization so concurrent starts for one user cannot both succeed.
func (s *Supervisor) Start(ctx context.Context, userID string, settings Settings) Result {
	if userID == "" {
		return failure("User ID is required", newError(ErrConfiguration, "user id is required"))
	}
	settings = settings.Normalize()
	if err := settings.Validate(); err != nil {
		return failure(err.Error(), err)
	}

	bot := newBot(userID, settings, s.opts, s.vault, s.factory, s.sink, s.logger)

	s.mu.Lock()
	if _, ok := s.bots[userID]; ok {
		s.mu.Unlock()
		bot.cancel()
		return failure("Bot already running", newError(ErrState, "bot already running for user %s", userID))
	}
	s.bots[userID] = bot
	s.mu.Unlock()

	l := s.logger.With(zap.String("user_id", userID), zap.String("symbol", settings.Symbol))

	if err := bot.initialize(ctx); err != nil {
		s.remove(userID, bot)
		bot.Stop(ctx, false)
		l.Error("Failed to initialize bot", zap.Error(err))
		s.activity(ctx, userID, models.ActivityError, "Bot initialization failed", err.Error())
		return failure("Failed to initialize bot: "+err.Error(), err)
	}
	if err := bot.start(); err != nil {
		s.remove(userID, bot)
		return failure(err.Error(), err)
	}

	s.activity(ctx, userID, models.ActivityInfo, "Bot started",
		"Trading "+settings.Symbol+" on the "+settings.Timeframe+" timeframe")
	return Result{Success: true, Message: "Bot started successfully"}
}

// Stop halts the user's bot and forgets it. The bot goroutine winds down on its own.
func (s *Supervisor) Stop(ctx context.Context, userID string) Result {
	bot, ok := s.take(userID)
	if !ok {
		return failure("Bot not running", newError(ErrState, "no bot running for user %s", userID))
	}
	bot.Stop(ctx, s.opts.CancelOrdersOnStop)
	s.activity(ctx, userID, models.ActivityInfo, "Bot stopped", "Bot stopped by user")
	return Result{Success: true, Message: "Bot stopped successfully"}
}

// EmergencyStop halts the bot and always cancels its open orders. A position that
// is still open stays on the exchange.
func (s *Supervisor) EmergencyStop(ctx context.Context, userID string) Result {
	bot, ok := s.take(userID)
	if !ok {
		return failure("Bot not running", newError(ErrState, "no bot running for user %s", userID))
	}
	bot.Stop(ctx, true)
	s.logger.Warn("Emergency stop", zap.String("user_id", userID))
	s.activity(ctx, userID, models.ActivityWarning, "Emergency stop",
		"Bot halted and open orders cancelled")
	return Result{Success: true, Message: "Emergency stop executed"}
}

// Status reports the user's bot, or a stopped status if there is none.
func (s *Supervisor) Status(userID string) Status {
	s.mu.Lock()
	bot, ok := s.bots[userID]
	s.mu.Unlock()
	if !ok {
		return Status{IsRunning: false, State: StateStopped}
	}
	return bot.Status()
}

// ActiveUsers lists users with a bot, sorted.
func (s *Supervisor) ActiveUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.bots))
	for id := range s.bots {
		users = append(users, id)
	}
	slices.Sort(users)
	return users
}

// StopAll stops every bot, used on shutdown.
func (s *Supervisor) StopAll(ctx context.Context) {
	for _, userID := range s.ActiveUsers() {
		if res := s.Stop(ctx, userID); !res.Success && !errors.Is(res.Err, ErrState) {
			s.logger.Error("Failed to stop bot", zap.String("user_id", userID), zap.Error(res.Err))
		}
	}
}

func (s *Supervisor) take(userID string) (*Bot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bot, ok := s.bots[userID]
	if ok {
		delete(s.bots, userID)
	}
	return bot, ok
}

// remove drops userID only while it still maps to bot.
func (s *Supervisor) remove(userID string, bot *Bot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bots[userID] == bot {
		delete(s.bots, userID)
	}
}

func (s *Supervisor) activity(ctx context.Context, userID string, level models.ActivityLevel, title, message string) {
	if err := s.sink.AppendActivity(context.WithoutCancel(ctx), userID, level, title, message); err != nil {
		s.logger.Error("Failed to log activity", zap.String("title", title), zap.Error(err))
	}
}

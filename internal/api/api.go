// Package api exposes the bot supervisor and the per-user telemetry over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"futures-ema-bot/internal/models"
	"futures-ema-bot/internal/trader"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	requestTimeout      = 30 * time.Second
	requestIDHeaderKey  = "X-Request-ID"
	requestIDContextKey = "request_id"
)

// BotController is the part of the supervisor the API drives.
type BotController interface {
	Start(ctx context.Context, userID string, settings trader.Settings) trader.Result
	Stop(ctx context.Context, userID string) trader.Result
	EmergencyStop(ctx context.Context, userID string) trader.Result
	Status(userID string) trader.Status
	ActiveUsers() []string
}

// CredentialStore saves encrypted exchange keys.
type CredentialStore interface {
	Store(ctx context.Context, userID, apiKey, apiSecret string) error
	IsConfigured(ctx context.Context, userID string) (bool, error)
}

// TelemetryReader serves the history a bot has written.
type TelemetryReader interface {
	RecentTrades(ctx context.Context, userID string, limit int) ([]models.Trade, error)
	RecentActivities(ctx context.Context, userID string, limit int) ([]models.Activity, error)
	Stats(ctx context.Context, userID string) (models.Stats, error)
	MarketSnapshot(ctx context.Context, userID string) (*models.MarketSnapshot, error)
}

// Server is the HTTP control surface.
type Server struct {
	server      *http.Server
	bots        BotController
	credentials CredentialStore
	telemetry   TelemetryReader
	logger      *zap.Logger
}

// NewServer creates a server listening on port once Start is called.
func NewServer(port int, bots BotController, credentials CredentialStore, telemetry TelemetryReader, logger *zap.Logger) *Server {
	s := &Server{
		bots:        bots,
		credentials: credentials,
		telemetry:   telemetry,
		logger:      logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the gin router.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(s.logger))
	router.Use(gin.Recovery())

	router.GET("/health", s.health)

	bots := router.Group("/api/bots")
	bots.GET("", s.listBots)
	bots.POST("/:userID/start", s.startBot)
	bots.POST("/:userID/stop", s.stopBot)
	bots.POST("/:userID/emergency-stop", s.emergencyStop)
	bots.GET("/:userID/status", s.botStatus)

	users := router.Group("/api/users/:userID")
	users.PUT("/api-keys", s.saveAPIKeys)
	users.GET("/api-keys", s.apiKeysConfigured)
	users.GET("/trades", s.trades)
	users.GET("/activities", s.activities)
	users.GET("/stats", s.stats)
	users.GET("/market", s.market)

	return router
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// statusCode maps an engine error kind onto an HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, trader.ErrState):
		return http.StatusConflict
	case errors.Is(err, trader.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, trader.ErrDecryption):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trader.ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"futures-ema-bot/internal/trader"
	"futures-ema-bot/internal/vault"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type apiKeysRequest struct {
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"active_bots": len(s.bots.ActiveUsers()),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listBots(c *gin.Context) {
	users := s.bots.ActiveUsers()
	bots := make([]gin.H, 0, len(users))
	for _, userID := range users {
		bots = append(bots, gin.H{"user_id": userID, "status": s.bots.Status(userID)})
	}
	c.JSON(http.StatusOK, bots)
}

func (s *Server) startBot(c *gin.Context) {
	var settings trader.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, trader.Result{Message: "Invalid settings: " + err.Error()})
		return
	}
	// Start outlives the request; only initialization is bounded by it.
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	s.respond(c, s.bots.Start(ctx, c.Param("userID"), settings))
}

func (s *Server) stopBot(c *gin.Context) {
	s.respond(c, s.bots.Stop(c.Request.Context(), c.Param("userID")))
}

func (s *Server) emergencyStop(c *gin.Context) {
	s.respond(c, s.bots.EmergencyStop(c.Request.Context(), c.Param("userID")))
}

func (s *Server) botStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.bots.Status(c.Param("userID")))
}

func (s *Server) saveAPIKeys(c *gin.Context) {
	var req apiKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key and api_secret are required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	err := s.credentials.Store(ctx, c.Param("userID"), strings.TrimSpace(req.APIKey), strings.TrimSpace(req.APISecret))
	if errors.Is(err, vault.ErrNotConfigured) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key and api_secret are required"})
		return
	}
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Failed to save API keys")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "API keys saved"})
}

func (s *Server) apiKeysConfigured(c *gin.Context) {
	configured, err := s.credentials.IsConfigured(c.Request.Context(), c.Param("userID"))
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Failed to check API keys")
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": configured})
}

func (s *Server) trades(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	trades, err := s.telemetry.RecentTrades(ctx, c.Param("userID"), queryLimit(c))
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Failed to get trades")
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) activities(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	activities, err := s.telemetry.RecentActivities(ctx, c.Param("userID"), queryLimit(c))
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Failed to get activities")
		return
	}
	c.JSON(http.StatusOK, activities)
}

func (s *Server) stats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	stats, err := s.telemetry.Stats(ctx, c.Param("userID"))
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) market(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	snap, err := s.telemetry.MarketSnapshot(ctx, c.Param("userID"))
	if err != nil {
		s.handleError(c, err, http.StatusInternalServerError, "Failed to get market data")
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no market data yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// respond writes a supervisor result, failing results with the status of their error kind.
func (s *Server) respond(c *gin.Context, res trader.Result) {
	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}
	code := statusCode(res.Err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Bot command failed",
			zap.String("user_id", c.Param("userID")),
			zap.String("path", c.FullPath()),
			zap.Error(res.Err))
	}
	c.JSON(code, res)
}

func (s *Server) handleError(c *gin.Context, err error, code int, message string) {
	s.logger.Error("API error",
		zap.String("request_id", c.GetString(requestIDContextKey)),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(code, gin.H{"error": message, "request_id": c.GetString(requestIDContextKey)})
}

// queryLimit reads ?limit=, leaving zero (the store default) when absent or invalid.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return min(limit, 500)
}

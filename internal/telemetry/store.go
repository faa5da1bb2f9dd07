// Package telemetry persists what bots do: trades, cumulative stats, activity entries
// and the latest market snapshot per user.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"futures-ema-bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultTradeLimit    = 50
	DefaultActivityLimit = 10
)

// Store is the gorm-backed telemetry sink.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// AppendTrade records a filled order.
func (s *Store) AppendTrade(ctx context.Context, trade models.Trade) error {
	if trade.Timestamp == 0 {
		trade.Timestamp = s.now().UnixMilli()
	}
	if err := s.db.WithContext(ctx).Create(&trade).Error; err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// UpdateStats folds one closed position's pnl into the user's cumulative stats.
func (s *Store) UpdateStats(ctx context.Context, userID string, pnl float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats := models.Stats{UserID: userID}
		if err := tx.Where("user_id = ?", userID).FirstOrInit(&stats).Error; err != nil {
			return fmt.Errorf("load stats: %w", err)
		}

		stats = ApplyPnL(stats, pnl, s.now())
		if err := tx.Save(&stats).Error; err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
		return nil
	})
}

// ApplyPnL returns stats after one more closed trade. A pnl of exactly zero counts as a loss.
func ApplyPnL(stats models.Stats, pnl float64, at time.Time) models.Stats {
	stats.TotalTrades++
	stats.TotalProfit += pnl
	if pnl > 0 {
		stats.WinningTrades++
	} else {
		stats.LosingTrades++
	}
	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	stats.LastTradeAt = &at
	return stats
}

// AppendActivity records a user-visible log entry.
func (s *Store) AppendActivity(ctx context.Context, userID string, level models.ActivityLevel, title, message string) error {
	activity := models.Activity{
		UserID:    userID,
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&activity).Error; err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// UpdateMarketSnapshot overwrites the user's latest market view.
func (s *Store) UpdateMarketSnapshot(ctx context.Context, snap models.MarketSnapshot) error {
	snap.UpdatedAt = s.now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("update market snapshot: %w", err)
	}
	return nil
}

// RecentTrades returns the newest trades of a user, newest first.
func (s *Store) RecentTrades(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	return trades, nil
}

// RecentActivities returns the newest activity entries of a user, newest first.
func (s *Store) RecentActivities(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	var activities []models.Activity
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&activities).Error
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	return activities, nil
}

// Stats returns the cumulative stats of a user; a user without trades gets zero stats.
func (s *Store) Stats(ctx context.Context, userID string) (models.Stats, error) {
	stats := models.Stats{UserID: userID}
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Stats{UserID: userID}, nil
	}
	if err != nil {
		return models.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

// MarketSnapshot returns the latest market view of a user, or nil if none was written.
func (s *Store) MarketSnapshot(ctx context.Context, userID string) (*models.MarketSnapshot, error) {
	var snap models.MarketSnapshot
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query market snapshot: %w", err)
	}
	return &snap, nil
}

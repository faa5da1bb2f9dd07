package database

import (
	"path/filepath"
	"testing"

	"futures-ema-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_MigrateKeepsRows(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "bot.db")

	db, err := NewDatabase(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.Trade{UserID: "user-1", Symbol: "BTCUSDT", Side: "LONG"}).Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	db, err = NewDatabase(dsn)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&models.Trade{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	for _, table := range []any{&models.Stats{}, &models.Activity{}, &models.Credential{}, &models.MarketSnapshot{}} {
		assert.True(t, db.Migrator().HasTable(table))
	}
}

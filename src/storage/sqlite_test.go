package storage

import (
	"path/filepath"
	"testing"
	"time"

	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *AsyncSQLiteDB {
	t.Helper()
	cfg := &models.MConfig{Storage: models.MStorageConfig{
		Enabled:       true,
		DBType:        "sqlite",
		DBPath:        filepath.Join(t.TempDir(), "test.db"),
		RetentionDays: 30,
	}}

	db, err := NewDatabase(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.(*AsyncSQLiteDB)
}

func TestSQLiteBarsUpsertAndLoad(t *testing.T) {
	db := newTestSQLite(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Minute)

	bars := []models.MBar{
		{Symbol: "AAPL", Interval: "1m", Timestamp: base.Add(2 * time.Minute).UnixMilli(), Close: 3},
		{Symbol: "AAPL", Interval: "1m", Timestamp: base.UnixMilli(), Close: 1},
		{Symbol: "AAPL", Interval: "5m", Timestamp: base.UnixMilli(), Close: 50},
	}
	require.NoError(t, db.SaveBars(bars))

	// same key, new close
	require.NoError(t, db.SaveBars([]models.MBar{{Symbol: "AAPL", Interval: "1m", Timestamp: base.UnixMilli(), Close: 1.5}}))

	loaded, err := db.LoadBars("AAPL", models.M1, base.Add(-time.Minute), base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 1.5, loaded[0].Close)
	assert.Equal(t, 3.0, loaded[1].Close)
	assert.Less(t, loaded[0].Timestamp, loaded[1].Timestamp)

	empty, err := db.LoadBars("MSFT", models.M1, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSQLiteQuotesAndSymbols(t *testing.T) {
	db := newTestSQLite(t)

	require.NoError(t, db.SaveQuotes([]models.MQuote{
		{CapturedAt: time.Now(), Symbol: "SPY", BidPrice: 1, AskPrice: 1.1, Spread: 0.1},
		{CapturedAt: time.Now(), Symbol: "QQQ", BidPrice: 2, AskPrice: 2.1, Spread: 0.1},
	}))
	require.NoError(t, db.SaveBars([]models.MBar{{Symbol: "AAPL", Interval: "1d", Timestamp: time.Now().UnixMilli(), Close: 1}}))

	var count int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM quotes`).Scan(&count))
	assert.Equal(t, 2, count)

	symbols, err := db.ListSymbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "QQQ", "SPY"}, symbols)
}

func TestSQLiteCleanupOldData(t *testing.T) {
	db := newTestSQLite(t)

	old := time.Now().AddDate(0, 0, -60)
	require.NoError(t, db.SaveBars([]models.MBar{
		{Symbol: "AAPL", Interval: "1d", Timestamp: old.UnixMilli(), Close: 1},
		{Symbol: "AAPL", Interval: "1d", Timestamp: time.Now().UnixMilli(), Close: 2},
	}))
	require.NoError(t, db.SaveQuotes([]models.MQuote{{CapturedAt: old, Symbol: "AAPL", BidPrice: 1, AskPrice: 2}}))

	require.NoError(t, db.CleanupOldData())

	loaded, err := db.LoadBars("AAPL", models.D1, old.Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 2.0, loaded[0].Close)

	var count int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM quotes`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestNewDatabaseRejectsUnknownType(t *testing.T) {
	_, err := NewDatabase(&models.MConfig{Storage: models.MStorageConfig{DBType: "mongo"}}, logger.NewNopLogger())
	assert.Error(t, err)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"pancake-trade-bot-go/internal/database"
	"pancake-trade-bot-go/internal/ledger"
	"pancake-trade-bot-go/internal/ledger/ledgertest"
	"pancake-trade-bot-go/internal/models"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, *database.Store, http.Handler) {
	t.Helper()
	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := database.NewStore(db, true)
	h := NewAPIHandler(zap.NewNop(), db, store)
	h.now = func() time.Time { return now }
	return db, store, newMux(h)
}

func seedTrade(t *testing.T, db *gorm.DB, profit string, exit time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.Trade{
		TradeID:  uuid.NewString(),
		Token:    "0xAAA",
		Strategy: "CopyTrading",
		ExitTime: exit,
		Profit:   decimal.RequireFromString(profit),
	}).Error)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatisticsHandler(t *testing.T) {
	// Arrange
	db, _, h := setup(t)
	seedTrade(t, db, "10", now.Add(-time.Hour))
	seedTrade(t, db, "-4", now.Add(-2*time.Hour))
	seedTrade(t, db, "6", now.Add(-48*time.Hour))

	// Act
	rec := get(t, h, "/api/statistics")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatisticsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	assert.Equal(t, int64(3), resp.AllTime.TotalTrades)
	assert.Equal(t, int64(2), resp.AllTime.ProfitableTrades)
	assert.InDelta(t, 2.0/3.0, resp.AllTime.WinRate, 1e-9)
	assert.True(t, resp.AllTime.TotalProfit.Equal(decimal.NewFromInt(12)))

	assert.Equal(t, int64(2), resp.Since24h.TotalTrades)
	assert.InDelta(t, 0.5, resp.Since24h.WinRate, 1e-9)
	assert.True(t, resp.Since24h.TotalProfit.Equal(decimal.NewFromInt(6)))
}

func TestTradesHandler(t *testing.T) {
	db, _, h := setup(t)
	seedTrade(t, db, "1", now.Add(-3*time.Hour))
	seedTrade(t, db, "2", now.Add(-time.Hour))
	seedTrade(t, db, "3", now.Add(-2*time.Hour))

	t.Run("Newest first with limit", func(t *testing.T) {
		rec := get(t, h, "/api/trades?limit=2")

		require.Equal(t, http.StatusOK, rec.Code)
		var trades []models.Trade
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&trades))
		require.Len(t, trades, 2)
		assert.True(t, trades[0].Profit.Equal(decimal.NewFromInt(2)))
		assert.True(t, trades[1].Profit.Equal(decimal.NewFromInt(3)))
	})

	t.Run("Bad limit", func(t *testing.T) {
		rec := get(t, h, "/api/trades?limit=-1")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPortfolioHandler(t *testing.T) {
	t.Run("Nothing saved", func(t *testing.T) {
		_, _, h := setup(t)

		rec := get(t, h, "/api/portfolio")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Saved state", func(t *testing.T) {
		// Arrange
		_, store, h := setup(t)
		l := ledger.New(decimal.NewFromInt(500), ledgertest.Fees)
		_, err := l.OpenPosition("CopyTrading", "0xBBB", decimal.NewFromInt(50))
		require.NoError(t, err)
		require.NoError(t, store.Save(context.Background(), l.State()))

		// Act
		rec := get(t, h, "/api/portfolio")

		// Assert
		require.Equal(t, http.StatusOK, rec.Code)
		var st ledger.State
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
		require.Len(t, st.Positions, 1)
		assert.Equal(t, "0xBBB", st.Positions[0].Token)
		assert.True(t, st.CashBalance.Equal(decimal.RequireFromString("449.5")))
	})
}

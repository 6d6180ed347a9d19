package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"pancake-trade-bot-go/internal/ledger"
	"pancake-trade-bot-go/internal/ledger/ledgertest"
	"pancake-trade-bot-go/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func decEqual(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func TestStore_LoadEmpty(t *testing.T) {
	// Arrange
	store := NewStore(newTestDB(t), true)

	// Act
	_, err := store.Load(context.Background())

	// Assert
	assert.ErrorIs(t, err, ledger.ErrNoState)
}

func TestStore_SaveAndLoad(t *testing.T) {
	// Arrange
	db := newTestDB(t)
	store := NewStore(db, true)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := ledger.New(decimal.NewFromInt(1000), ledgertest.Fees, ledger.WithClock(func() time.Time { return start }))
	_, err := l.OpenPosition("CopyTrading", "0xAAA", decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = l.OpenPosition("CopyTrading", "0xBBB", decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = l.ClosePosition("0xAAA", decimal.NewFromInt(120))
	require.NoError(t, err)
	l.RecordAtomicTrade("BNB loop", decimal.RequireFromString("1.25"), "0xtx")
	l.TakeSnapshot()

	// Act
	require.NoError(t, store.Save(ctx, l.State()))
	got, err := store.Load(ctx)

	// Assert
	require.NoError(t, err)
	want := l.State()
	decEqual(t, want.CashBalance, got.CashBalance)
	decEqual(t, want.InvestedBalance, got.InvestedBalance)
	decEqual(t, want.RealizedPnL, got.RealizedPnL)
	decEqual(t, want.TotalFeesPaid, got.TotalFeesPaid)
	assert.True(t, want.StartTime.Equal(got.StartTime))

	require.Len(t, got.Positions, 1)
	assert.Equal(t, "0xBBB", got.Positions[0].Token)
	assert.Equal(t, ledger.StatusOpen, got.Positions[0].Status)

	require.Len(t, got.History, 2)
	assert.Equal(t, "BNB loop", got.History[0].Token, "history must stay newest first")
	assert.Equal(t, "0xAAA", got.History[1].Token)
	decEqual(t, decimal.RequireFromString("19.2"), got.History[1].PnL)
	assert.Equal(t, ledger.OutcomeWin, got.History[1].Outcome)

	require.Len(t, got.Snapshots, len(want.Snapshots))
}

func TestStore_SaveReplacesPositionsAndKeepsTrades(t *testing.T) {
	// Arrange
	db := newTestDB(t)
	store := NewStore(db, false)
	ctx := context.Background()
	l := ledger.New(decimal.NewFromInt(1000), ledgertest.Fees)

	_, err := l.OpenPosition("CopyTrading", "0xAAA", decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, l.State()))

	// Act
	_, err = l.ClosePosition("0xaaa", decimal.NewFromInt(9))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, l.State()))
	require.NoError(t, store.Save(ctx, l.State()))

	// Assert
	var positions int64
	require.NoError(t, db.Model(&models.Position{}).Count(&positions).Error)
	assert.Zero(t, positions)

	var trades []models.Trade
	require.NoError(t, db.Find(&trades).Error)
	require.Len(t, trades, 1, "saving twice must not duplicate trades")
	assert.False(t, trades[0].IsSimulation)
	assert.Equal(t, "LOSS", trades[0].Outcome)

	restored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, restored.Positions)
	decEqual(t, l.Cash(), restored.CashBalance)
}

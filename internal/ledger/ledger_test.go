package ledger

import (
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFees = Fees{GasFeeUSD: d("0.50"), SwapFeeRate: d("0.0025")}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{fmt.Sprintf("want %s, got %s", want, got)}, msgAndArgs...)...)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(dur time.Duration) { c.t = c.t.Add(dur) }

func newTestLedger(cash string) (*Ledger, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(d(cash), testFees, WithClock(clock.now)), clock
}

func TestLedger_OpenAndClose_Scenarios(t *testing.T) {
	l, _ := newTestLedger("1000")

	t.Run("Open position", func(t *testing.T) {
		// Act
		res, err := l.OpenPosition("CopyTrading", "0xTokenX", d("100"), WithTokenAmount(big.NewInt(12345)))

		// Assert
		require.NoError(t, err)
		st := l.State()
		assertDec(t, "899.5", st.CashBalance)
		assertDec(t, "100", st.InvestedBalance)
		assertDec(t, "99.75", res.Position.AmountUSD)
		assertDec(t, "100", res.Position.InitialInvestment)
		assertDec(t, "12345", res.Position.TokenAmount)
		assertDec(t, "0.25", st.TotalFeesPaid)
		assertDec(t, "0.5", st.TotalGasPaid)
		assert.Equal(t, StatusOpen, res.Position.Status)
	})

	t.Run("Close position case-insensitively", func(t *testing.T) {
		// Act
		res, err := l.ClosePosition("0xtokenx", d("120"))

		// Assert
		require.NoError(t, err)
		assertDec(t, "119.2", res.NetProceeds)
		assertDec(t, "19.2", res.Record.PnL)
		assertDec(t, "19.2", res.Record.PnLPercent)
		assert.Equal(t, OutcomeWin, res.Record.Outcome)

		st := l.State()
		assertDec(t, "1018.7", st.CashBalance)
		assertDec(t, "0", st.InvestedBalance)
		assertDec(t, "19.2", st.RealizedPnL)
		assert.Empty(t, st.Positions)
		require.Len(t, st.History, 1)
		assert.Equal(t, "0xTokenX", st.History[0].Token)
	})
}

func TestLedger_Failures_LeaveStateUnchanged(t *testing.T) {
	t.Run("Close unknown token", func(t *testing.T) {
		l, _ := newTestLedger("1000")
		before := l.State()

		_, err := l.ClosePosition("0xnothing", d("10"))

		assert.ErrorIs(t, err, ErrPositionNotFound)
		assert.Equal(t, before, l.State())
	})

	t.Run("Open beyond cash plus gas", func(t *testing.T) {
		l, _ := newTestLedger("100")
		before := l.State()

		_, err := l.OpenPosition("CopyTrading", "0xA", d("99.6"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.ErrorIs(t, l.CanAfford(d("99.6")), ErrInsufficientFunds)

		_, err = l.OpenPosition("CopyTrading", "0xA", d("99.6"))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, before, l.State())
	})

	t.Run("Second entry in held token", func(t *testing.T) {
		l, _ := newTestLedger("1000")
		_, err := l.OpenPosition("CopyTrading", "0xA", d("10"))
		require.NoError(t, err)
		before := l.State()

		_, err = l.OpenPosition("CopyTrading", "0xa", d("10"))

		assert.ErrorIs(t, err, ErrPositionExists)
		assert.Equal(t, before, l.State())
	})

	t.Run("Non-positive amount", func(t *testing.T) {
		l, _ := newTestLedger("1000")
		_, err := l.OpenPosition("CopyTrading", "0xA", decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestLedger_CashReconciles(t *testing.T) {
	// cash + invested == startEquity + realized P&L - gas paid on entries
	rng := rand.New(rand.NewSource(7))
	l, _ := newTestLedger("5000")
	opens := 0

	for i := 0; i < 500; i++ {
		token := fmt.Sprintf("0x%02d", rng.Intn(8))
		if _, held := l.Position(token); held {
			exit := decimal.NewFromInt(int64(rng.Intn(20000))).Div(decimal.NewFromInt(100))
			_, err := l.ClosePosition(token, exit)
			require.NoError(t, err)
		} else {
			amount := decimal.NewFromInt(int64(1 + rng.Intn(15000))).Div(decimal.NewFromInt(100))
			if l.CanAfford(amount) != nil {
				continue
			}
			_, err := l.OpenPosition("CopyTrading", token, amount)
			require.NoError(t, err)
			opens++
		}

		st := l.State()
		entryGas := testFees.GasFeeUSD.Mul(decimal.NewFromInt(int64(opens)))
		want := st.StartEquity.Add(st.RealizedPnL).Sub(entryGas)
		require.True(t, want.Equal(st.CashBalance.Add(st.InvestedBalance)),
			"step %d: cash+invested %s != %s", i, st.CashBalance.Add(st.InvestedBalance), want)
	}
}

func TestLedger_Bounds(t *testing.T) {
	l, _ := newTestLedger("1000000")

	for i := 0; i < 120; i++ {
		token := fmt.Sprintf("0x%d", i)
		_, err := l.OpenPosition("CopyTrading", token, d("10"))
		require.NoError(t, err)
		_, err = l.ClosePosition(token, d("11"))
		require.NoError(t, err)
		l.RecordAtomicTrade("BNB/USDT", d("0.01"), "0xtx")
	}
	for i := 0; i < 1200; i++ {
		l.TakeSnapshot()
	}

	st := l.State()
	assert.Len(t, st.History, MaxHistory)
	assert.Len(t, st.Snapshots, MaxSnapshots)
	assert.Equal(t, "BNB/USDT", st.History[0].Token)
	assert.Equal(t, "0xtx", st.History[0].TxRef)
}

func TestLedger_RecordAtomicTrade(t *testing.T) {
	l, _ := newTestLedger("1000")

	rec := l.RecordAtomicTrade("BNB loop", d("-1.5"), "0xabc")

	assert.Equal(t, OutcomeLoss, rec.Outcome)
	st := l.State()
	assertDec(t, "998.5", st.CashBalance)
	assertDec(t, "-1.5", st.RealizedPnL)
}

func TestLedger_SetCashBalanceAndPortfolio(t *testing.T) {
	l, clock := newTestLedger("1000")
	_, err := l.OpenPosition("CopyTrading", "0xA", d("100"))
	require.NoError(t, err)

	clock.advance(time.Hour)
	l.SetCashBalance(d("400"))

	st := l.State()
	assertDec(t, "500", st.StartEquity)
	assert.Equal(t, clock.t, st.StartTime)
	require.Len(t, st.Snapshots, 2)
	assertDec(t, "500", st.Snapshots[1].Equity)

	t.Run("Days floor right after resync", func(t *testing.T) {
		p := l.Portfolio()
		assert.Equal(t, 0.001, p.Metrics.DaysActive)
		assert.Equal(t, 0.0, p.Metrics.TotalReturnPercent)
		assertDec(t, "500", p.TotalValue)
	})

	t.Run("Returns after two days", func(t *testing.T) {
		_, err := l.ClosePosition("0xA", d("150.5"))
		require.NoError(t, err)
		clock.advance(48 * time.Hour)

		p := l.Portfolio()

		// 400 + (150.5 - 0.37625 - 0.5) = 549.62375 -> +9.92475%
		assertDec(t, "549.62375", p.TotalValue)
		assert.InDelta(t, 9.92475, p.Metrics.TotalReturnPercent, 1e-9)
		assert.InDelta(t, 2.0, p.Metrics.DaysActive, 1e-9)
		assert.InDelta(t, 9.92475/2, p.Metrics.AverageDailyReturnPercent, 1e-9)
	})
}

func TestLedger_RestoreAndCopies(t *testing.T) {
	l, _ := newTestLedger("1000")
	_, err := l.OpenPosition("CopyTrading", "0xA", d("50"))
	require.NoError(t, err)

	saved := l.State()
	saved.Positions[0].Token = "mutated"
	p, ok := l.Position("0xa")
	require.True(t, ok)
	assert.Equal(t, "0xA", p.Token, "callers must not alias ledger state")

	restored := Restore(l.State(), testFees)
	assert.Equal(t, l.State(), restored.State())
	assert.Contains(t, restored.Holdings(), "0xa")
	assertDec(t, "949.5", restored.Cash())
}

func TestLedger_ConcurrentAccess(t *testing.T) {
	l, _ := newTestLedger("100000")
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		token := fmt.Sprintf("0x%d", i)
		go func() {
			defer wg.Done()
			if _, err := l.OpenPosition("CopyTrading", token, d("10")); err == nil {
				_, _ = l.ClosePosition(token, d("10"))
			}
		}()
		go func() {
			defer wg.Done()
			_ = l.Portfolio()
			_ = l.Holdings()
		}()
	}
	wg.Wait()

	st := l.State()
	assert.Empty(t, st.Positions)
	assertDec(t, "0", st.InvestedBalance)
	// Each round trip loses 1 USD gas and 0.025 exit fee.
	assertDec(t, "99948.75", st.CashBalance)
}

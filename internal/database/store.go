package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"pancake-trade-bot-go/internal/ledger"
	"pancake-trade-bot-go/internal/models"
)

// Store persists ledger state in the database. It implements ledger.Store.
type Store struct {
	db        *gorm.DB
	simulated bool
}

var _ ledger.Store = (*Store)(nil)

// NewStore creates a Store. simulated marks the trades it writes as paper trades.
func NewStore(db *gorm.DB, simulated bool) *Store {
	return &Store{db: db, simulated: simulated}
}

// Load reads the saved state. It returns ledger.ErrNoState when nothing was saved yet.
func (s *Store) Load(ctx context.Context) (ledger.State, error) {
	db := s.db.WithContext(ctx)

	var row models.PortfolioState
	if err := db.First(&row, models.PortfolioStateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.State{}, ledger.ErrNoState
		}
		return ledger.State{}, fmt.Errorf("failed to load portfolio state: %w", err)
	}

	var positions []models.Position
	if err := db.Order("seq asc").Find(&positions).Error; err != nil {
		return ledger.State{}, fmt.Errorf("failed to load positions: %w", err)
	}
	var trades []models.Trade
	if err := db.Order("id desc").Limit(ledger.MaxHistory).Find(&trades).Error; err != nil {
		return ledger.State{}, fmt.Errorf("failed to load trades: %w", err)
	}
	var snapshots []models.Snapshot
	if err := db.Order("seq asc").Find(&snapshots).Error; err != nil {
		return ledger.State{}, fmt.Errorf("failed to load snapshots: %w", err)
	}

	st := ledger.State{
		CashBalance:     row.CashBalance,
		InvestedBalance: row.InvestedBalance,
		TotalGasPaid:    row.TotalGasPaid,
		TotalFeesPaid:   row.TotalFeesPaid,
		RealizedPnL:     row.RealizedPnL,
		StartEquity:     row.StartEquity,
		StartTime:       row.StartTime,
	}
	for _, p := range positions {
		st.Positions = append(st.Positions, ledger.Position{
			Strategy:          p.Strategy,
			Token:             p.Token,
			AmountUSD:         p.AmountUSD,
			InitialInvestment: p.InitialInvestment,
			TokenAmount:       p.TokenAmount,
			OpenedAt:          p.OpenedAt,
			Status:            ledger.PositionStatus(p.Status),
		})
	}
	for _, t := range trades {
		st.History = append(st.History, ledger.TradeRecord{
			ID:         t.TradeID,
			Token:      t.Token,
			Strategy:   t.Strategy,
			EntryTime:  t.EntryTime,
			ExitTime:   t.ExitTime,
			Investment: t.Investment,
			ExitValue:  t.ExitValue,
			PnL:        t.Profit,
			PnLPercent: t.ProfitPct,
			Outcome:    ledger.Outcome(t.Outcome),
			TxRef:      t.TxRef,
		})
	}
	for _, sn := range snapshots {
		st.Snapshots = append(st.Snapshots, ledger.Snapshot{Time: sn.Time, Equity: sn.Equity, PnL: sn.PnL})
	}
	return st, nil
}

// Save replaces the saved balances, positions and snapshots with st in one
// transaction. Trades are appended; ones already stored are left untouched.
func (s *Store) Save(ctx context.Context, st ledger.State) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.PortfolioState{
			ID:              models.PortfolioStateID,
			CashBalance:     st.CashBalance,
			InvestedBalance: st.InvestedBalance,
			TotalGasPaid:    st.TotalGasPaid,
			TotalFeesPaid:   st.TotalFeesPaid,
			RealizedPnL:     st.RealizedPnL,
			StartEquity:     st.StartEquity,
			StartTime:       st.StartTime,
		}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save portfolio state: %w", err)
		}

		if err := tx.Where("1 = 1").Delete(&models.Position{}).Error; err != nil {
			return fmt.Errorf("failed to clear positions: %w", err)
		}
		if len(st.Positions) > 0 {
			rows := make([]models.Position, 0, len(st.Positions))
			for i, p := range st.Positions {
				rows = append(rows, models.Position{
					Seq:               i,
					Strategy:          p.Strategy,
					Token:             p.Token,
					AmountUSD:         p.AmountUSD,
					InitialInvestment: p.InitialInvestment,
					TokenAmount:       p.TokenAmount,
					OpenedAt:          p.OpenedAt,
					Status:            string(p.Status),
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to save positions: %w", err)
			}
		}

		if err := tx.Where("1 = 1").Delete(&models.Snapshot{}).Error; err != nil {
			return fmt.Errorf("failed to clear snapshots: %w", err)
		}
		if len(st.Snapshots) > 0 {
			rows := make([]models.Snapshot, 0, len(st.Snapshots))
			for i, sn := range st.Snapshots {
				rows = append(rows, models.Snapshot{Seq: i, Time: sn.Time, Equity: sn.Equity, PnL: sn.PnL})
			}
			if err := tx.CreateInBatches(&rows, 200).Error; err != nil {
				return fmt.Errorf("failed to save snapshots: %w", err)
			}
		}

		// History is newest first; insert oldest first so ids follow trade order.
		for i := len(st.History) - 1; i >= 0; i-- {
			t := st.History[i]
			trade := models.Trade{
				TradeID:      t.ID,
				Token:        t.Token,
				Strategy:     t.Strategy,
				EntryTime:    t.EntryTime,
				ExitTime:     t.ExitTime,
				Investment:   t.Investment,
				ExitValue:    t.ExitValue,
				Profit:       t.PnL,
				ProfitPct:    t.PnLPercent,
				Outcome:      string(t.Outcome),
				TxRef:        t.TxRef,
				IsSimulation: s.simulated,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "trade_id"}},
				DoNothing: true,
			}).Create(&trade).Error
			if err != nil {
				return fmt.Errorf("failed to save trade %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

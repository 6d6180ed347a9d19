package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"pancake-trade-bot-go/internal/ledger"
	"pancake-trade-bot-go/internal/models"
)

const defaultTradeLimit = 100

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	db    *gorm.DB
	store ledger.Store
	now   func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB, store ledger.Store) *APIHandler {
	return &APIHandler{log: log, db: db, store: store, now: time.Now}
}

// TradesHandler returns closed trades, most recent first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = v
	}

	var trades []models.Trade
	if err := h.db.WithContext(r.Context()).Order("exit_time desc").Limit(limit).Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, trades)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64           `json:"total_trades"`
	ProfitableTrades int64           `json:"profitable_trades"`
	WinRate          float64         `json:"win_rate"`
	TotalProfit      decimal.Decimal `json:"total_profit"`
}

func (s *StatsDetail) add(t models.Trade) {
	s.TotalTrades++
	if t.Profit.IsPositive() {
		s.ProfitableTrades++
	}
	s.TotalProfit = s.TotalProfit.Add(t.Profit)
}

func (s *StatsDetail) finish() {
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.ProfitableTrades) / float64(s.TotalTrades)
	}
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates and returns trading statistics.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	var allTrades []models.Trade
	if err := h.db.WithContext(r.Context()).Find(&allTrades).Error; err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	since24h := h.now().Add(-24 * time.Hour)
	var resp StatisticsResponse
	for _, trade := range allTrades {
		resp.AllTime.add(trade)
		if trade.ExitTime.After(since24h) {
			resp.Since24h.add(trade)
		}
	}
	resp.AllTime.finish()
	resp.Since24h.finish()

	h.writeJSON(w, resp)
}

// PortfolioHandler returns the last saved portfolio state.
func (h *APIHandler) PortfolioHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Load(r.Context())
	if errors.Is(err, ledger.ErrNoState) {
		http.Error(w, "No portfolio saved yet", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to load portfolio", zap.Error(err))
		http.Error(w, "Failed to load portfolio", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, st)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}

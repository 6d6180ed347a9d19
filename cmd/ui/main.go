package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/config"
	"pancake-trade-bot-go/internal/database"
	"pancake-trade-bot-go/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// Connect to the database the bot writes to
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	apiHandler := NewAPIHandler(log, db, database.NewStore(db, cfg.Trading.DryRun))

	addr := fmt.Sprintf(":%d", cfg.Server.UIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMux(apiHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("Starting web server", zap.String("address", addr))

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}

func newMux(h *APIHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/trades", h.TradesHandler)
	mux.HandleFunc("GET /api/statistics", h.StatisticsHandler)
	mux.HandleFunc("GET /api/portfolio", h.PortfolioHandler)
	return mux
}

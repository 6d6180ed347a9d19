package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/ledger"
	"pancake-trade-bot-go/internal/logger"
)

const (
	defaultLogLines = 50
	maxLogLines     = 500

	writeWait  = 10 * time.Second
	pingPeriod = 50 * time.Second
	tailBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Controller is what the API needs from the engine.
type Controller interface {
	Start() (bool, error)
	Status() Status
	Portfolio() ledger.Portfolio
}

// APIServer provides an HTTP interface for the trading engine.
type APIServer struct {
	server *http.Server
	ctrl   Controller
	tail   *logger.Tail
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer listening on addr.
func NewAPIServer(addr string, ctrl Controller, tail *logger.Tail, logger *zap.Logger) *APIServer {
	s := &APIServer{
		ctrl:   ctrl,
		tail:   tail,
		logger: logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *APIServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("GET /api/portfolio", s.portfolioHandler)
	mux.HandleFunc("GET /api/logs", s.logsHandler)
	mux.HandleFunc("POST /api/start", s.startHandler)
	mux.HandleFunc("GET /ws/logs", s.logStreamHandler)
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

type statusResponse struct {
	Status
	Opportunities      []logger.Entry `json:"opportunities"`
	OpportunitiesTotal uint64         `json:"opportunities_total"`
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.ctrl.Status()}
	if s.tail != nil {
		resp.Opportunities, resp.OpportunitiesTotal = s.tail.Opportunities()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Portfolio())
}

func (s *APIServer) logsHandler(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLines
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = min(v, maxLogLines)
	}

	entries := []logger.Entry{}
	if s.tail != nil {
		entries = s.tail.Last(n)
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *APIServer) startHandler(w http.ResponseWriter, r *http.Request) {
	started, err := s.ctrl.Start()
	if err != nil {
		s.logger.Error("Failed to start bot", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	msg := "Bot already running"
	if started {
		msg = "Bot started"
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"started": started, "message": msg})
}

func (s *APIServer) logStreamHandler(w http.ResponseWriter, r *http.Request) {
	if s.tail == nil {
		http.Error(w, "log stream unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	entries, unsubscribe := s.tail.Subscribe(tailBuffer)
	defer unsubscribe()

	// The client never sends anything meaningful; reading detects disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

package trader

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"pancake-trade-bot-go/internal/ledger"
	"pancake-trade-bot-go/internal/ledger/ledgertest"
	"pancake-trade-bot-go/internal/logger"
)

type fakeController struct {
	mu      sync.Mutex
	running bool
	err     error
	ledger  *ledger.Ledger
}

func (f *fakeController) Start() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.running {
		return false, nil
	}
	f.running = true
	return true, nil
}

func (f *fakeController) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{UUID: "test-uuid", Mode: "SIMULATION", Running: f.running, Strategies: []string{"arbitrage"}}
}

func (f *fakeController) Portfolio() ledger.Portfolio {
	return f.ledger.Portfolio()
}

func newTestAPI(t *testing.T, ctrl Controller) (*httptest.Server, *zap.Logger) {
	t.Helper()
	tail := logger.NewTail(20)
	log := zap.New(tail.Core(zapcore.DebugLevel))
	s := NewAPIServer(":0", ctrl, tail, zap.NewNop())
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return srv, log
}

func TestAPIServer_Status(t *testing.T) {
	// Arrange
	srv, log := newTestAPI(t, &fakeController{ledger: ledger.New(decimal.NewFromInt(100), ledgertest.Fees)})
	log.Info("Opportunity found", logger.Success())
	log.Info("Scanning")

	// Act
	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "test-uuid", body.UUID)
	assert.Equal(t, "SIMULATION", body.Mode)
	assert.Equal(t, uint64(1), body.OpportunitiesTotal)
	require.Len(t, body.Opportunities, 1)
	assert.Equal(t, "Opportunity found", body.Opportunities[0].Message)
}

func TestAPIServer_Health(t *testing.T) {
	srv, _ := newTestAPI(t, &fakeController{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIServer_Portfolio(t *testing.T) {
	// Arrange
	l := ledger.New(decimal.NewFromInt(1000), ledgertest.Fees)
	_, err := l.OpenPosition(StrategyCopyTrading, tokenA.Hex(), decimal.NewFromInt(100))
	require.NoError(t, err)
	srv, _ := newTestAPI(t, &fakeController{ledger: l})

	// Act
	resp, err := http.Get(srv.URL + "/api/portfolio")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body ledger.Portfolio
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Positions, 1)
	assert.Equal(t, tokenA.Hex(), body.Positions[0].Token)
	assert.True(t, body.CashBalance.Equal(decimal.RequireFromString("899.5")))
}

func TestAPIServer_Logs(t *testing.T) {
	srv, log := newTestAPI(t, &fakeController{})
	for i := 0; i < 5; i++ {
		log.Info("line")
	}

	t.Run("Limit", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/logs?n=3")
		require.NoError(t, err)
		defer resp.Body.Close()

		var entries []logger.Entry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
		assert.Len(t, entries, 3)
	})

	t.Run("Default", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/logs")
		require.NoError(t, err)
		defer resp.Body.Close()

		var entries []logger.Entry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
		assert.Len(t, entries, 5)
	})

	t.Run("Bad n", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/logs?n=abc")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPIServer_Start(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		// Arrange
		srv, _ := newTestAPI(t, &fakeController{})

		// Act
		first, err := http.Post(srv.URL+"/api/start", "application/json", nil)
		require.NoError(t, err)
		defer first.Body.Close()
		second, err := http.Post(srv.URL+"/api/start", "application/json", nil)
		require.NoError(t, err)
		defer second.Body.Close()

		// Assert
		var a, b map[string]interface{}
		require.NoError(t, json.NewDecoder(first.Body).Decode(&a))
		require.NoError(t, json.NewDecoder(second.Body).Decode(&b))
		assert.Equal(t, true, a["started"])
		assert.Equal(t, false, b["started"])
		assert.Equal(t, "Bot already running", b["message"])
	})

	t.Run("Not ready", func(t *testing.T) {
		srv, _ := newTestAPI(t, &fakeController{err: ErrNotReady})

		resp, err := http.Post(srv.URL+"/api/start", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("GET is not allowed", func(t *testing.T) {
		srv, _ := newTestAPI(t, &fakeController{})

		resp, err := http.Get(srv.URL + "/api/start")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestAPIServer_LogStream(t *testing.T) {
	// Arrange
	srv, log := newTestAPI(t, &fakeController{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/logs"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The server subscribes just after the handshake, so keep logging until a line arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				log.Info("Arbitrage confirmed", logger.Success())
			}
		}
	}()

	// Act
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var e logger.Entry
	err = conn.ReadJSON(&e)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Arbitrage confirmed", e.Message)
	assert.Equal(t, logger.KindSuccess, e.Kind)
}

func TestAPIServer_LogStreamWithoutTail(t *testing.T) {
	s := NewAPIServer(":0", &fakeController{}, nil, zap.NewNop())
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/logs")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

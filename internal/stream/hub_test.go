package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalping-backtest-lab/internal/backtest"
	"scalping-backtest-lab/internal/domain"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(16, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	defer a.Close()
	defer b.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.OnTrade("run-1", domain.TradeLog{TradeID: "t1", Symbol: "BTCUSDT", Side: domain.SideBuy, PnL: decimal.RequireFromString("12.5")})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, TypeTrade, msg["type"])
		assert.Equal(t, "run-1", msg["run_id"])
		assert.Equal(t, "BTCUSDT", msg["symbol"])
		data := msg["data"].(map[string]any)
		assert.Equal(t, "t1", data["trade_id"])
		assert.Equal(t, "12.5", data["pnl"])
	}

	hub.OnEvent(backtest.Event{RunID: "run-1", Symbol: "BTCUSDT", Kind: backtest.EventKillSwitch})
	hub.OnEquity("run-1", "BTCUSDT", domain.EquitySample{TimestampMs: 1, Equity: decimal.NewFromInt(9000)})

	msg := readMessage(t, a)
	assert.Equal(t, TypeEvent, msg["type"])
	assert.Equal(t, "kill_switch", msg["data"].(map[string]any)["kind"])
	msg = readMessage(t, a)
	assert.Equal(t, TypeEquity, msg["type"])
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(16, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub(16, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(1, zerolog.Nop()) // Run not started, queue fills at once
	hub.OnEvent(backtest.Event{Kind: backtest.EventEntry})
	hub.OnEvent(backtest.Event{Kind: backtest.EventEntry})
	hub.OnEvent(backtest.Event{Kind: backtest.EventEntry})
	assert.Equal(t, int64(2), hub.Dropped())
}

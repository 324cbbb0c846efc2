package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/pricefeed"
)

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/trades"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return e.hub.Count() >= 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readTrade(t *testing.T, conn *websocket.Conn) domain.Trade {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)

	var trade domain.Trade
	require.NoError(t, json.Unmarshal(data, &trade))
	return trade
}

func TestWS_ReceivesBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	first := env.dial(t)
	second := env.dial(t)
	require.Eventually(t, func() bool { return env.hub.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	trade := &domain.Trade{
		ID:          "sig1",
		Timestamp:   time.Now().UTC(),
		BaseSymbol:  "SOL",
		QuoteSymbol: "USDC",
		Price:       142.5,
		Amount:      2,
		Side:        domain.SideSell,
		TotalValue:  285,
	}
	n, err := env.hub.BroadcastTrade(trade)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, conn := range []*websocket.Conn{first, second} {
		got := readTrade(t, conn)
		assert.Equal(t, "sig1", got.ID)
		assert.Equal(t, domain.SideSell, got.Side)
		assert.Equal(t, 142.5, got.Price)
	}
}

func TestWS_SelectPair(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	send(t, conn, `{"type":"select_pair","pair":"JUP/USDC"}`)

	assert.Eventually(t, func() bool {
		return env.hub.SelectedPair() == "JUP/USDC"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWS_IgnoresInvalidFrames(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	for _, frame := range []string{
		`not json`,
		`{"pair":"JUP/USDC"}`,
		`{"type":"select_pair"}`,
		`{"type":"select_pair","pair":"JUPUSDC"}`,
		`{"type":"subscribe","pair":"JUP/USDC"}`,
	} {
		send(t, conn, frame)
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`{"type":"select_pair","pair":"JUP/USDC"}`)))

	// The connection survives and later commands still apply.
	send(t, conn, `{"type":"select_pair","pair":"BONK/USDC"}`)
	require.Eventually(t, func() bool {
		return env.hub.SelectedPair() == "BONK/USDC"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, env.hub.Count())

	_, err := env.hub.BroadcastTrade(&domain.Trade{ID: "after", BaseSymbol: "SOL", QuoteSymbol: "USDC", Price: 1, Side: domain.SidePrice})
	require.NoError(t, err)
	assert.Equal(t, "after", readTrade(t, conn).ID)
}

func TestWS_UnregistersOnClose(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return env.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_PingsIdleClients(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.PingInterval = 20 * time.Millisecond })
	conn := env.dial(t)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(data string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

type recordingSource struct {
	mu    sync.Mutex
	pairs [][2]string
}

func (s *recordingSource) Price(_ context.Context, baseMint, quoteMint string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append(s.pairs, [2]string{baseMint, quoteMint})
	return 1.25, nil
}

func (s *recordingSource) last() [2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairs[len(s.pairs)-1]
}

func TestWS_SelectPairDrivesNextPriceTick(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	source := &recordingSource{}
	ticker := pricefeed.NewTicker(pricefeed.TickerOptions{
		Selector:    env.hub,
		Source:      source,
		Broadcaster: env.hub,
		Logger:      log.New(io.Discard, "", 0),
	})

	_, err := ticker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [2]string{domain.MintSOL, domain.MintUSDC}, source.last())
	assert.Equal(t, "SOL", readTrade(t, conn).BaseSymbol)

	send(t, conn, `{"type":"select_pair","pair":"JUP/USDC"}`)
	require.Eventually(t, func() bool {
		return env.hub.SelectedPair() == "JUP/USDC"
	}, 2*time.Second, 10*time.Millisecond)

	update, err := ticker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [2]string{domain.MintJUP, domain.MintUSDC}, source.last())
	assert.Equal(t, "JUP", update.BaseSymbol)

	got := readTrade(t, conn)
	assert.Equal(t, domain.SidePrice, got.Side)
	assert.Equal(t, "JUP", got.BaseSymbol)
	assert.Equal(t, 1.25, got.Price)
}

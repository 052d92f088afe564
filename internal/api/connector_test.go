package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crypton-sync/internal/clock"
	"crypton-sync/internal/model"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"go.uber.org/zap/zaptest"
)

// recordingSink 记录 Connector 投递的事件和连接状态
type recordingSink struct {
	mu        sync.Mutex
	events    []model.Event
	connected []bool
}

func (s *recordingSink) Submit(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) SetFeedConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = append(s.connected, connected)
}

func (s *recordingSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// waitFor 轮询直到 cond 成立或超时
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func f64(v float64) *float64 { return &v }

func TestParseTickerEvent(t *testing.T) {
	// Lower-case "p", "b" and "a" carry unrelated values in a 24hr ticker and must not leak in.
	msg := `{"e":"24hrTicker","E":123,"s":"BTCUSDT","p":"-10.0","P":"1.25","c":"42000.5","b":"41999","a":"42001","h":"43000","l":"41000"}`

	ev, ok := ParseEvent([]byte(msg))
	assert.True(t, ok)
	assert.Equal(t, model.EventTicker, ev.Kind)
	assert.Equal(t, "BTC/USDT", ev.Symbol)

	want := model.TickerPatch{
		Last:             f64(42000.5),
		PercentChange24h: f64(1.25),
		High24h:          f64(43000),
		Low24h:           f64(41000),
	}
	if !cmp.Equal(want, ev.Ticker) {
		t.Fatalf("unexpected patch: %s", cmp.Diff(want, ev.Ticker))
	}
}

func TestParsePartialTickerEvent(t *testing.T) {
	ev, ok := ParseEvent([]byte(`{"e":"24hrTicker","s":"ETHUSDT","c":2200}`))
	assert.True(t, ok)
	assert.Equal(t, "ETH/USDT", ev.Symbol)
	assert.Equal(t, 2200.0, *ev.Ticker.Last)
	assert.True(t, ev.Ticker.High24h == nil)
	assert.True(t, ev.Ticker.PercentChange24h == nil)
}

func TestParseDepthEvent(t *testing.T) {
	ev, ok := ParseEvent([]byte(`{"e":"depthUpdate","s":"BTCUSDT","b":[["42000","1.5"],[41999.5,2]],"a":[["42001","0.25"]]}`))
	assert.True(t, ok)
	assert.Equal(t, model.EventDepth, ev.Kind)

	want := &model.OrderBook{
		Symbol: "BTC/USDT",
		Bids:   []model.Level{{Price: 42000, Size: 1.5}, {Price: 41999.5, Size: 2}},
		Asks:   []model.Level{{Price: 42001, Size: 0.25}},
	}
	if !cmp.Equal(want, ev.Book) {
		t.Fatalf("unexpected book: %s", cmp.Diff(want, ev.Book))
	}
}

func TestParseEventDropsMalformed(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{name: "not json", msg: `hello`},
		{name: "truncated", msg: `{"e":"24hrTicker","s":"BTCUSDT","c":"1"`},
		{name: "array root", msg: `[1,2,3]`},
		{name: "unknown tag", msg: `{"e":"aggTrade","s":"BTCUSDT","p":"1"}`},
		{name: "missing symbol", msg: `{"e":"24hrTicker","c":"1"}`},
		{name: "ticker without fields", msg: `{"e":"24hrTicker","s":"BTCUSDT"}`},
		{name: "bad number", msg: `{"e":"24hrTicker","s":"BTCUSDT","c":"abc"}`},
		{name: "depth without asks", msg: `{"e":"depthUpdate","s":"BTCUSDT","b":[]}`},
		{name: "depth short level", msg: `{"e":"depthUpdate","s":"BTCUSDT","b":[["1"]],"a":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseEvent([]byte(tt.msg))
			assert.False(t, ok)
		})
	}
}

func TestConnectorReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}

	var (
		mu       sync.Mutex
		sessions int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		sessions++
		mu.Unlock()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"24hrTicker","s":"BTCUSDT","c":"42000"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"depthUpdate","s":"ETHUSDT","b":[],"a":[]}`))

		// Drop the connection without a close frame to simulate an abnormal closure.
		time.Sleep(20 * time.Millisecond)
		conn.UnderlyingConn().Close()
	}))
	defer server.Close()

	sink := &recordingSink{}
	clk := clock.NewManual(time.Unix(0, 0))
	cfg := ConnectorConfig{
		URL:            "ws" + strings.TrimPrefix(server.URL, "http"),
		ReconnectDelay: 3 * time.Second,
	}
	c := NewConnector(cfg, sink, clk, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Ensure valid frames are forwarded and garbage is dropped.
	waitFor(t, "first session events", func() bool { return sink.eventCount() == 2 })

	// Ensure the connector waits for the fixed backoff before retrying.
	waitFor(t, "reconnect wait", func() bool { return clk.Waiters() == 1 })
	assert.Equal(t, int64(1), c.Connects())

	clk.Advance(2 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), c.Connects())

	clk.Advance(time.Second)
	waitFor(t, "second session", func() bool { return c.Connects() == 2 })
	waitFor(t, "second session events", func() bool { return sink.eventCount() == 4 })

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connector did not stop after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.True(t, len(sink.connected) >= 4)
	assert.True(t, sink.connected[0])
	assert.False(t, sink.connected[len(sink.connected)-1])

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sessions >= 2)
}

func TestConnectorRetriesFailedDial(t *testing.T) {
	sink := &recordingSink{}
	clk := clock.NewManual(time.Unix(0, 0))
	cfg := ConnectorConfig{URL: "ws://127.0.0.1:1/ws", ReconnectDelay: time.Second}
	c := NewConnector(cfg, sink, clk, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// Ensure dial failures never terminate the loop.
	for i := 0; i < 3; i++ {
		waitFor(t, "retry wait", func() bool { return clk.Waiters() == 1 })
		clk.Advance(time.Second)
	}
	assert.Equal(t, int64(0), c.Connects())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connector did not stop after cancel")
	}
}

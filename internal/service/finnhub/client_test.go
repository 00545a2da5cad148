package finnhub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStreamTrades(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"s":"AAPL","p":187.5,"v":10,"t":1704067200000}]}`))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Config{APIKey: "key", URL: wsURL, Symbols: []string{" aapl ", ""}, ReconnectDelay: 10 * time.Millisecond, PingInterval: time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if got := <-subscribed; got != "AAPL" {
		t.Fatalf("expected AAPL subscription, got %q", got)
	}

	trades, errs := c.Read(ctx)
	select {
	case tr := <-trades:
		if tr == nil || tr.Symbol != "AAPL" || tr.Price != 187.5 || tr.Timestamp != 1704067200 {
			t.Fatalf("unexpected trade %+v", tr)
		}
	case err := <-errs:
		t.Fatalf("unexpected error %v", err)
	case <-ctx.Done():
		t.Fatalf("timed out waiting for trade")
	}

	// server closes after the frames; the read session must end with an error
	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected read error after close")
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for close")
	}
	if !c.IsConnected() {
		t.Fatalf("connected flag is only cleared by Close")
	}
	_ = c.Close()
	if c.IsConnected() {
		t.Fatalf("expected disconnected after Close")
	}
}

func TestSubscribeRequiresConnection(t *testing.T) {
	c := New(Config{APIKey: "k", URL: "ws://127.0.0.1:1"}, nil)
	if err := c.Subscribe(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	_, errs := c.Read(context.Background())
	if err := <-errs; !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected for nil connection, got %v", err)
	}
}

func TestDecodeTrades(t *testing.T) {
	got := decodeTrades([]byte(`{"type":"trade","data":[{"s":"AAPL","p":187.5,"v":10,"t":1704067200999},{"s":"","p":1},{"s":"MSFT","p":0}]}`))
	if len(got) != 1 || got[0].Symbol != "AAPL" || got[0].Timestamp != 1704067200 {
		t.Fatalf("unexpected trades %+v", got)
	}
	for _, raw := range []string{`{"type":"ping"}`, `not json`, `{"type":"trade"}`} {
		if trades := decodeTrades([]byte(raw)); len(trades) != 0 {
			t.Fatalf("%s: expected no trades, got %+v", raw, trades)
		}
	}
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	c := New(Config{ReconnectDelay: time.Second, MaxReconnectDelay: 5 * time.Second}, nil)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := c.backoff(); got != w {
			t.Fatalf("attempt %d: got %v want %v", i, got, w)
		}
	}
}

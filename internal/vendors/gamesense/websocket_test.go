package gamesense

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gg"
	"github.com/gorilla/websocket"
)

// relay is a websocket server that forwards received envelopes to a channel.
type relay struct {
	srv       *httptest.Server
	envelopes chan Envelope
	conns     chan *websocket.Conn
	accepted  atomic.Int32
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	r := &relay{
		envelopes: make(chan Envelope, 64),
		conns:     make(chan *websocket.Conn, 8),
	}
	upgrader := websocket.Upgrader{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		r.accepted.Add(1)
		r.conns <- conn
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) == nil {
				r.envelopes <- env
			}
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *relay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *relay) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case env := <-r.envelopes:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWebSocketTransport_SendsEnvelopes(t *testing.T) {
	r := newRelay(t)
	tr := NewWebSocketTransport(WebSocketConfig{URL: r.url()})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer tr.Close()

	if !tr.IsActive() {
		t.Fatal("IsActive() = false after Connect")
	}
	if err := tr.Register([]byte(`{"game":"G"}`)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := tr.SendEvent([]byte(`{"event":"KEYBOARD"}`)); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}

	reg := r.next(t)
	if reg.Type != MessageRegister || string(reg.Body) != `{"game":"G"}` {
		t.Errorf("first envelope = %s %s", reg.Type, reg.Body)
	}
	ev := r.next(t)
	if ev.Type != MessageEvent || string(ev.Body) != `{"event":"KEYBOARD"}` {
		t.Errorf("second envelope = %s %s", ev.Type, ev.Body)
	}
}

func TestWebSocketTransport_ConnectUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	tr := NewWebSocketTransport(WebSocketConfig{URL: url, DialTimeout: 200 * time.Millisecond})
	if err := tr.Connect(context.Background()); err == nil {
		tr.Close()
		t.Fatal("Connect() to closed server succeeded")
	}
	if tr.IsActive() {
		t.Error("IsActive() = true after failed Connect")
	}
	if err := tr.SendEvent([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendEvent() error = %v, want ErrNotConnected", err)
	}
}

func TestWebSocketTransport_ReconnectsAfterServerClose(t *testing.T) {
	r := newRelay(t)
	tr := NewWebSocketTransport(WebSocketConfig{URL: r.url(), ReconnectInterval: 20 * time.Millisecond})

	var activations, deactivations atomic.Int32
	tr.SetOnActive(func() { activations.Add(1) })
	tr.SetOnInactive(func() { deactivations.Add(1) })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	first := <-r.conns
	first.Close()

	waitFor(t, "deactivation", func() bool { return deactivations.Load() >= 1 })
	waitFor(t, "reconnection", func() bool { return tr.ReconnectsTotal() >= 1 && tr.IsActive() })

	if activations.Load() < 2 {
		t.Errorf("activations = %d, want initial connect and reconnect", activations.Load())
	}
	if r.accepted.Load() < 2 {
		t.Errorf("server accepted %d connections, want 2", r.accepted.Load())
	}
	if err := tr.SendEvent([]byte(`{"event":"AFTER"}`)); err != nil {
		t.Fatalf("SendEvent() after reconnect error = %v", err)
	}
	if env := r.next(t); string(env.Body) != `{"event":"AFTER"}` {
		t.Errorf("envelope after reconnect = %s", env.Body)
	}
}

func TestWebSocketTransport_CloseStopsAndAllowsReconnect(t *testing.T) {
	r := newRelay(t)
	tr := NewWebSocketTransport(WebSocketConfig{URL: r.url()})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if tr.IsActive() {
		t.Error("IsActive() = true after Close")
	}
	if err := tr.Register([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Register() after Close error = %v, want ErrNotConnected", err)
	}

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() after Close error = %v", err)
	}
	defer tr.Close()
	if !tr.IsActive() {
		t.Error("IsActive() = false after second Connect")
	}
}

func TestWebSocketTransport_DrivesBackend(t *testing.T) {
	r := newRelay(t)
	b := NewBackend(Config{
		Transport: NewWebSocketTransport(WebSocketConfig{URL: r.url()}),
		Game:      "WS_GAME",
		Devices:   staggerSpecs(0),
	})
	devices, err := b.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	defer b.Uninitialize()

	reg := r.next(t)
	var doc Registration
	if reg.Type != MessageRegister || json.Unmarshal(reg.Body, &doc) != nil || doc.Game != "WS_GAME" {
		t.Fatalf("registration envelope = %s %s", reg.Type, reg.Body)
	}

	fill(t, devices[0], gg.Red)
	if err := b.OnceProcessed(); err != nil {
		t.Fatal(err)
	}
	ev := r.next(t)
	var event Event
	if ev.Type != MessageEvent || json.Unmarshal(ev.Body, &event) != nil {
		t.Fatalf("event envelope = %s %s", ev.Type, ev.Body)
	}
	if event.Data.Frame["Escape"] != (RGB{Red: 255}) {
		t.Errorf("Escape = %+v", event.Data.Frame["Escape"])
	}
}

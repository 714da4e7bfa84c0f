package gamesense

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

const (
	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 30 * time.Second

	defaultDialTimeout  = 3 * time.Second
	defaultWriteTimeout = time.Second
)

// Message types of the websocket envelope.
const (
	MessageRegister = "register"
	MessageEvent    = "event"
)

// Envelope wraps every document sent over the websocket so the receiving
// relay can tell registrations from frames.
type Envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	// URL of the relay, e.g. ws://127.0.0.1:51248/gamesense.
	URL string

	// DialTimeout bounds each connection attempt. Zero means 3s.
	DialTimeout time.Duration

	// WriteTimeout bounds each write. Zero means 1s.
	WriteTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Zero means 1s. Backoff grows by 1.5x up to 30s.
	ReconnectInterval time.Duration

	// Logger receives connection diagnostics. Nil disables logging.
	Logger device.Logger
}

// WebSocketTransport implements Transport over a websocket connection.
//
// Auto-Reconnection:
//   - When the connection is lost the transport turns inactive and reconnects
//     in the background with exponential backoff.
//   - On success it turns active again; the backend re-registers on that edge.
//   - Reconnection stops only when Close is called.
//
// Thread Safety: all methods are safe for concurrent use.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer
	logger device.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	state activity

	reconnectsTotal atomic.Uint64

	lifeMu sync.Mutex
	done   *closeOnce
	wg     sync.WaitGroup
}

// Ensure WebSocketTransport implements Transport.
var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport creates a transport. No connection is made until Connect.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &WebSocketTransport{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		logger: logger,
	}
}

// Connect dials the relay and starts the receive loop.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()

	if t.done != nil && !t.done.IsClosed() {
		return nil
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	t.done = newCloseOnce()
	t.wg.Add(1)
	go t.receiveLoop(t.done)

	t.state.set(true)
	return nil
}

// Register sends a registration document.
func (t *WebSocketTransport) Register(payload []byte) error {
	return t.write(MessageRegister, payload)
}

// SendEvent sends a frame event.
func (t *WebSocketTransport) SendEvent(payload []byte) error {
	return t.write(MessageEvent, payload)
}

// Close stops reconnection and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.lifeMu.Lock()
	done := t.done
	t.lifeMu.Unlock()
	if done == nil {
		return nil
	}

	done.Close()
	t.closeConn(true)
	t.wg.Wait()
	t.state.set(false)
	return nil
}

// SetOnActive sets the callback fired when the transport becomes active.
func (t *WebSocketTransport) SetOnActive(fn func()) { t.state.setOnActive(fn) }

// SetOnInactive sets the callback fired when the transport becomes inactive.
func (t *WebSocketTransport) SetOnInactive(fn func()) { t.state.setOnInactive(fn) }

// IsActive reports whether the connection is up.
func (t *WebSocketTransport) IsActive() bool { return t.state.get() }

// ReconnectsTotal returns the number of successful reconnections.
func (t *WebSocketTransport) ReconnectsTotal() uint64 { return t.reconnectsTotal.Load() }

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}
	return conn, nil
}

func (t *WebSocketTransport) write(kind string, payload []byte) error {
	if !t.state.get() {
		return ErrNotConnected
	}
	msg, err := json.Marshal(Envelope{Type: kind, Body: payload})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		// Closing the connection wakes the receive loop, which reconnects.
		t.closeConn(false)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// receiveLoop drains messages from the relay. On connection loss it
// reconnects with exponential backoff.
func (t *WebSocketTransport) receiveLoop(done *closeOnce) {
	defer t.wg.Done()

	for {
		if done.IsClosed() {
			return
		}

		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()

		if conn != nil {
			_, _, err := conn.ReadMessage()
			if err == nil {
				continue
			}
			if !done.IsClosed() {
				t.logger.Warn("gamesense connection lost", "url", t.cfg.URL, "error", err)
			}
		}

		if done.IsClosed() {
			return
		}
		t.state.set(false)
		if !t.reconnect(done) {
			return
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
// Returns true if reconnection succeeded, false if shutdown was signalled.
func (t *WebSocketTransport) reconnect(done *closeOnce) bool {
	t.closeConn(false)

	backoff := t.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		if done.IsClosed() {
			return false
		}

		conn, err := t.dial(context.Background())
		if err != nil {
			backoff = t.handleReconnectFailure(done, attempt, err, backoff)
			if backoff == 0 {
				return false
			}
			continue
		}

		t.connMu.Lock()
		if done.IsClosed() {
			t.connMu.Unlock()
			conn.Close()
			return false
		}
		t.conn = conn
		t.connMu.Unlock()

		t.reconnectsTotal.Add(1)
		t.logger.Info("gamesense reconnected", "url", t.cfg.URL, "attempts", attempt)
		t.state.set(true)
		return true
	}
}

// handleReconnectFailure waits out the backoff.
// Returns the new backoff duration, or 0 if shutdown was signalled.
func (t *WebSocketTransport) handleReconnectFailure(done *closeOnce, attempt int, err error, backoff time.Duration) time.Duration {
	t.logger.Debug("gamesense reconnect failed", "attempt", attempt, "backoff", backoff.String(), "error", err)

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-done.Done():
		return 0
	case <-timer.C:
	}

	next := time.Duration(float64(backoff) * 1.5)
	if next > maxReconnectInterval {
		next = maxReconnectInterval
	}
	return next
}

func (t *WebSocketTransport) closeConn(graceful bool) {
	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()
	if conn == nil {
		return
	}

	if graceful {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(t.cfg.WriteTimeout))
		t.writeMu.Unlock()
	}
	conn.Close()
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

func (c *closeOnce) IsClosed() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

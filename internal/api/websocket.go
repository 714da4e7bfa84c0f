package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/engine"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/logging"
)

// Feed names a stream of daemon events a WebSocket client can follow.
type Feed string

// Feeds.
const (
	// FeedGroups carries device group lifecycle transitions. Following it
	// replays the latest transition of every group first.
	FeedGroups Feed = "groups"

	// FeedFailures carries render failures.
	FeedFailures Feed = "failures"
)

// Client request operations.
const (
	OpFollow   = "follow"
	OpUnfollow = "unfollow"
	OpPing     = "ping"
)

// Server message kinds.
const (
	KindAck   = "ack"
	KindEvent = "event"
	KindPong  = "pong"
	KindError = "error"
)

const (
	wsQueueSize      = 64
	wsMaxRequestSize = 4096
	wsPingInterval   = 30 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

// ClientRequest is a message from a WebSocket client.
//
//	{"op": "follow", "id": "1", "feeds": ["groups", "failures"]}
type ClientRequest struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Feeds []Feed `json:"feeds,omitempty"`
}

// ServerMessage is a message to a WebSocket client.
type ServerMessage struct {
	Kind   string `json:"kind"`
	ID     string `json:"id,omitempty"`
	Feed   Feed   `json:"feed,omitempty"`
	Feeds  []Feed `json:"feeds,omitempty"`
	At     string `json:"at,omitempty"`
	Replay bool   `json:"replay,omitempty"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// GroupEventPayload is the data of a FeedGroups event.
type GroupEventPayload struct {
	Group   string `json:"group"`
	Kind    string `json:"kind"`
	Devices int    `json:"devices"`
	Error   string `json:"error,omitempty"`
}

// RenderFailurePayload is the data of a FeedFailures event.
type RenderFailurePayload struct {
	Error string `json:"error"`
	Panic bool   `json:"panic"`
}

// Hub fans engine events out to WebSocket clients. A client that cannot keep
// up loses events rather than slowing the render loop.
type Hub struct {
	logger *logging.Logger

	// mu orders delivery: events and replays are queued while it is held.
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	latest  map[string]ServerMessage

	dropped atomic.Uint64
}

// Ensure Hub implements engine.FailureRecorder.
var _ engine.FailureRecorder = (*Hub)(nil)

// NewHub creates a hub with no clients.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		latest:  make(map[string]ServerMessage),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		c.conn.Close()
		delete(h.clients, c)
	}
}

// PublishGroupEvent broadcasts a lifecycle transition on FeedGroups and keeps
// it for replay. Its signature matches device.LifecycleOptions.OnEvent.
func (h *Hub) PublishGroupEvent(ev device.Event) {
	p := GroupEventPayload{Group: ev.Group, Kind: string(ev.Kind), Devices: ev.Devices}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	msg := eventMessage(FeedGroups, p, ev.Time)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[ev.Group] = msg
	h.broadcastLocked(msg)
}

// RecordFailure broadcasts a render failure on FeedFailures.
func (h *Hub) RecordFailure(err error) {
	if err == nil {
		return
	}
	msg := eventMessage(FeedFailures, RenderFailurePayload{Error: err.Error(), Panic: engine.IsPanic(err)}, time.Time{})

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.broadcastLocked(msg)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for full client queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func eventMessage(feed Feed, data any, at time.Time) ServerMessage {
	if at.IsZero() {
		at = time.Now()
	}
	return ServerMessage{Kind: KindEvent, Feed: feed, At: at.UTC().Format(time.RFC3339Nano), Data: data}
}

// broadcastLocked queues msg for every follower of its feed.
func (h *Hub) broadcastLocked(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("websocket event not encodable", "feed", msg.Feed, "error", err)
		return
	}
	for c := range h.clients {
		if c.follows(msg.Feed) && !c.queue(data) {
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// follow subscribes c to feeds and replays retained group transitions in
// group order, before any later live event.
func (h *Hub) follow(c *wsClient, req ClientRequest) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c.setFollowing(req.Feeds, true)
	c.reply(ServerMessage{Kind: KindAck, ID: req.ID, Feeds: req.Feeds})
	if !slices.Contains(req.Feeds, FeedGroups) {
		return
	}
	names := make([]string, 0, len(h.latest))
	for name := range h.latest {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		msg := h.latest[name]
		msg.Replay = true
		c.reply(msg)
	}
}

// wsClient is one connection. Its queue is closed exactly once.
type wsClient struct {
	conn *websocket.Conn
	out  chan []byte

	mu     sync.Mutex
	feeds  map[Feed]bool
	closed bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, out: make(chan []byte, wsQueueSize), feeds: make(map[Feed]bool)}
}

// queue enqueues data without blocking. It reports false when the client is
// closed or its queue is full.
func (c *wsClient) queue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) reply(msg ServerMessage) {
	if data, err := json.Marshal(msg); err == nil {
		c.queue(data)
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

func (c *wsClient) follows(f Feed) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feeds[f]
}

func (c *wsClient) setFollowing(feeds []Feed, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range feeds {
		if on {
			c.feeds[f] = true
		} else {
			delete(c.feeds, f)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Diagnostics bind to localhost by default.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and starts its reader and writer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := newWSClient(conn)
	s.hub.add(c)
	go s.hub.write(c)
	go s.hub.read(c)
}

// read handles requests until the connection fails.
func (h *Hub) read(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	deadline := func() error { return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsWriteTimeout)) }
	c.conn.SetReadLimit(wsMaxRequestSize)
	deadline() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return deadline() })

	for {
		var req ClientRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.reply(ServerMessage{Kind: KindError, Error: "malformed request"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		deadline() //nolint:errcheck // a failed deadline surfaces as a read error
		h.handleRequest(c, req)
	}
}

func (h *Hub) handleRequest(c *wsClient, req ClientRequest) {
	switch req.Op {
	case OpFollow, OpUnfollow:
		if err := validFeeds(req.Feeds); err != nil {
			c.reply(ServerMessage{Kind: KindError, ID: req.ID, Error: err.Error()})
			return
		}
		if req.Op == OpFollow {
			h.follow(c, req)
			return
		}
		c.setFollowing(req.Feeds, false)
		c.reply(ServerMessage{Kind: KindAck, ID: req.ID, Feeds: req.Feeds})
	case OpPing:
		c.reply(ServerMessage{Kind: KindPong, ID: req.ID})
	default:
		c.reply(ServerMessage{Kind: KindError, ID: req.ID, Error: fmt.Sprintf("unknown op %q", req.Op)})
	}
}

func validFeeds(feeds []Feed) error {
	if len(feeds) == 0 {
		return errors.New("no feeds given")
	}
	for _, f := range feeds {
		if f != FeedGroups && f != FeedFailures {
			return fmt.Errorf("unknown feed %q", f)
		}
	}
	return nil
}

// write drains the queue and keeps the connection alive with pings.
func (h *Hub) write(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case data, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck // write error follows
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			err = c.conn.WriteMessage(websocket.TextMessage, data)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck // write error follows
			err = c.conn.WriteMessage(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

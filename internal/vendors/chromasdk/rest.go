package chromasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Defaults for the local REST endpoint.
const (
	DefaultRESTURL = "http://localhost:54235/razer/chromasdk"

	defaultRequestTimeout    = 2 * time.Second
	defaultHeartbeatInterval = time.Second
)

// AppInfo identifies the application to the vendor runtime.
type AppInfo struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Author      Author   `json:"author"`
	Devices     []string `json:"device_supported"`
	Category    string   `json:"category"`
}

// Author is the AppInfo author block.
type Author struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// RESTConfig configures a RESTSDK.
type RESTConfig struct {
	// URL of the vendor's local REST endpoint. Empty means DefaultRESTURL.
	URL string

	// App is sent when opening a session.
	App AppInfo

	// Heartbeat keeps the session alive. Zero means one second.
	Heartbeat time.Duration

	// Timeout bounds each request. Zero means two seconds.
	Timeout time.Duration

	// Logger receives heartbeat failures. Nil disables logging.
	Logger interface {
		Warn(msg string, args ...any)
	}
}

// RESTSDK implements SDK against the vendor's local REST endpoint.
//
// Init opens a session and starts a heartbeat goroutine; the vendor runtime
// drops sessions that miss heartbeats. UnInit stops the heartbeat and closes
// the session.
//
// Thread Safety: all methods are safe for concurrent use.
type RESTSDK struct {
	cfg        RESTConfig
	httpClient *http.Client

	mu      sync.RWMutex
	session string

	done *closeOnce
	wg   sync.WaitGroup
}

// Ensure RESTSDK implements SDK.
var _ SDK = (*RESTSDK)(nil)

// NewRESTSDK creates a RESTSDK. No request is made until Probe or Init.
func NewRESTSDK(cfg RESTConfig) *RESTSDK {
	if cfg.URL == "" {
		cfg.URL = DefaultRESTURL
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.App.Category == "" {
		cfg.App.Category = "application"
	}
	if len(cfg.App.Devices) == 0 {
		for _, k := range AllKinds {
			cfg.App.Devices = append(cfg.App.Devices, string(k))
		}
	}
	return &RESTSDK{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Probe checks that the vendor runtime answers on its REST endpoint.
func (r *RESTSDK) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("chromasdk probe: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chromasdk probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chromasdk probe: status %d", resp.StatusCode)
	}
	return nil
}

// Init opens a session and starts the heartbeat.
func (r *RESTSDK) Init(ctx context.Context) error {
	var out struct {
		SessionID int    `json:"sessionid"`
		URI       string `json:"uri"`
		Result    int    `json:"result"`
	}
	if err := r.do(ctx, http.MethodPost, r.cfg.URL, r.cfg.App, &out); err != nil {
		return err
	}
	if out.URI == "" {
		return &ResultError{Op: "init", Code: out.Result}
	}

	r.mu.Lock()
	r.session = strings.TrimRight(out.URI, "/")
	r.done = newCloseOnce()
	done := r.done
	r.mu.Unlock()

	r.wg.Add(1)
	go r.heartbeatLoop(done)
	return nil
}

// UnInit stops the heartbeat and closes the session.
func (r *RESTSDK) UnInit() error {
	r.mu.Lock()
	session := r.session
	done := r.done
	r.session = ""
	r.done = nil
	r.mu.Unlock()

	if done != nil {
		done.Close()
		r.wg.Wait()
	}
	if session == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	return r.call(ctx, "uninit", http.MethodDelete, session, nil)
}

// CreateEffect creates a custom effect for kind without applying it.
func (r *RESTSDK) CreateEffect(kind DeviceKind, effect EffectKind, colors []uint32) (EffectID, error) {
	session, err := r.sessionURI()
	if err != nil {
		return "", err
	}
	if len(colors) != kind.Size() {
		return "", fmt.Errorf("%w: %s wants %d colours, got %d", ErrRequestFailed, kind, kind.Size(), len(colors))
	}

	body := map[string]any{"effect": effect}
	if effect != EffectNone {
		if kind == KindMouse && effect == EffectCustom {
			body["effect"] = "CHROMA_CUSTOM2"
		}
		body["param"] = shapeParam(kind, colors)
	}

	var out struct {
		ID     string `json:"id"`
		Result int    `json:"result"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	if err := r.do(ctx, http.MethodPost, session+"/"+string(kind), body, &out); err != nil {
		return "", err
	}
	if out.Result != 0 || out.ID == "" {
		return "", &ResultError{Op: "create " + string(kind), Code: out.Result}
	}
	return EffectID(out.ID), nil
}

// SetEffect applies a created effect.
func (r *RESTSDK) SetEffect(id EffectID) error {
	return r.effectCall("set effect", http.MethodPut, id)
}

// DeleteEffect frees a created effect.
func (r *RESTSDK) DeleteEffect(id EffectID) error {
	return r.effectCall("delete effect", http.MethodDelete, id)
}

func (r *RESTSDK) effectCall(op, method string, id EffectID) error {
	session, err := r.sessionURI()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	return r.call(ctx, op, method, session+"/effect", map[string]string{"id": string(id)})
}

// heartbeatLoop keeps the session alive until done is closed.
func (r *RESTSDK) heartbeatLoop(done *closeOnce) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done.Done():
			return
		case <-ticker.C:
			session, err := r.sessionURI()
			if err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
			err = r.do(ctx, http.MethodPut, session+"/heartbeat", nil, nil)
			cancel()
			if err != nil && r.cfg.Logger != nil {
				r.cfg.Logger.Warn("chromasdk heartbeat failed", "error", err)
			}
		}
	}
}

func (r *RESTSDK) sessionURI() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.session == "" {
		return "", ErrNoSession
	}
	return r.session, nil
}

// call performs a request whose response carries a result code.
func (r *RESTSDK) call(ctx context.Context, op, method, url string, in any) error {
	var out struct {
		Result int `json:"result"`
	}
	if err := r.do(ctx, method, url, in, &out); err != nil {
		return err
	}
	if out.Result != 0 {
		return &ResultError{Op: op, Code: out.Result}
	}
	return nil
}

// do sends in as JSON and decodes the response into out when both are set.
func (r *RESTSDK) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode: %w", ErrRequestFailed, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s %s: status %d", ErrRequestFailed, method, url, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrRequestFailed, err)
	}
	return nil
}

// shapeParam lays colours out as the endpoint expects: rows for grids and a
// flat array for strips.
func shapeParam(kind DeviceKind, colors []uint32) any {
	cols, rows := kind.Grid()
	if rows <= 1 {
		return colors
	}
	grid := make([][]uint32, rows)
	for y := range grid {
		grid[y] = colors[y*cols : (y+1)*cols]
	}
	return grid
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

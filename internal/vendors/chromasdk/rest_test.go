package chromasdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRuntime emulates the vendor REST endpoint.
type fakeRuntime struct {
	srv        *httptest.Server
	heartbeats atomic.Int32

	mu      sync.Mutex
	bodies  map[string][]json.RawMessage
	closed  bool
	app     AppInfo
	nextID  int
	failNew bool
}

func newFakeRuntime(t *testing.T) *fakeRuntime {
	t.Helper()
	f := &fakeRuntime{bodies: make(map[string][]json.RawMessage)}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /razer/chromasdk", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"core":"3.1","device":"3.1","version":"3.1"}`))
	})
	mux.HandleFunc("POST /razer/chromasdk", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&f.app)
		if f.failNew {
			_, _ = w.Write([]byte(`{"result":1167}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sessionid": 7, "uri": f.srv.URL + "/session/"})
	})
	mux.HandleFunc("PUT /session/heartbeat", func(w http.ResponseWriter, _ *http.Request) {
		f.heartbeats.Add(1)
		_, _ = w.Write([]byte(`{"tick":1}`))
	})
	mux.HandleFunc("POST /session/{kind}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var raw json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)
		f.bodies[r.PathValue("kind")] = append(f.bodies[r.PathValue("kind")], raw)
		f.nextID++
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "effect-" + string(rune('0'+f.nextID)), "result": 0})
	})
	mux.HandleFunc("PUT /session/effect", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":0}`))
	})
	mux.HandleFunc("DELETE /session/effect", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":0}`))
	})
	mux.HandleFunc("DELETE /session", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"result":0}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func TestRESTSDK_SessionLifecycle(t *testing.T) {
	rt := newFakeRuntime(t)
	sdk := NewRESTSDK(RESTConfig{
		URL:       rt.srv.URL + "/razer/chromasdk",
		App:       AppInfo{Title: "Gray Logic Chroma"},
		Heartbeat: 10 * time.Millisecond,
	})
	ctx := context.Background()

	if err := sdk.Probe(ctx); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if _, err := sdk.CreateEffect(KindHeadset, EffectCustom, make([]uint32, 5)); !errors.Is(err, ErrNoSession) {
		t.Errorf("CreateEffect() before Init error = %v", err)
	}
	if err := sdk.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	rt.mu.Lock()
	app := rt.app
	rt.mu.Unlock()
	if app.Title != "Gray Logic Chroma" || len(app.Devices) != len(AllKinds) || app.Category != "application" {
		t.Errorf("app info = %+v", app)
	}

	colors := make([]uint32, KindKeypad.Size())
	colors[0] = 0xFF
	id, err := sdk.CreateEffect(KindKeypad, EffectCustom, colors)
	if err != nil || id == "" {
		t.Fatalf("CreateEffect() = %q, %v", id, err)
	}
	if err := sdk.SetEffect(id); err != nil {
		t.Errorf("SetEffect() error = %v", err)
	}
	if err := sdk.DeleteEffect(id); err != nil {
		t.Errorf("DeleteEffect() error = %v", err)
	}
	if _, err := sdk.CreateEffect(KindMouse, EffectCustom, make([]uint32, 63)); err != nil {
		t.Errorf("CreateEffect(mouse) error = %v", err)
	}
	if _, err := sdk.CreateEffect(KindMouse, EffectCustom, make([]uint32, 3)); !errors.Is(err, ErrRequestFailed) {
		t.Errorf("CreateEffect(wrong size) error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rt.heartbeats.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rt.heartbeats.Load() < 2 {
		t.Errorf("heartbeats = %d, want >= 2", rt.heartbeats.Load())
	}

	if err := sdk.UnInit(); err != nil {
		t.Fatalf("UnInit() error = %v", err)
	}
	rt.mu.Lock()
	closed := rt.closed
	keypad := string(rt.bodies["keypad"][0])
	mouse := string(rt.bodies["mouse"][0])
	rt.mu.Unlock()

	if !closed {
		t.Error("session not deleted on UnInit")
	}
	if !strings.Contains(keypad, `"effect":"CHROMA_CUSTOM"`) || !strings.Contains(keypad, `"param":[[255,0,0,0,0],`) {
		t.Errorf("keypad body = %s", keypad)
	}
	if !strings.Contains(mouse, `"CHROMA_CUSTOM2"`) {
		t.Errorf("mouse body = %s", mouse)
	}

	beats := rt.heartbeats.Load()
	time.Sleep(40 * time.Millisecond)
	if rt.heartbeats.Load() != beats {
		t.Error("heartbeat continued after UnInit")
	}
	if err := sdk.UnInit(); err != nil {
		t.Errorf("second UnInit() error = %v", err)
	}
}

func TestRESTSDK_InitResultCode(t *testing.T) {
	rt := newFakeRuntime(t)
	rt.mu.Lock()
	rt.failNew = true
	rt.mu.Unlock()
	sdk := NewRESTSDK(RESTConfig{URL: rt.srv.URL + "/razer/chromasdk"})

	err := sdk.Init(context.Background())
	var rerr *ResultError
	if !errors.As(err, &rerr) || rerr.Code != 1167 {
		t.Errorf("Init() error = %v, want result 1167", err)
	}
}

func TestRESTSDK_ProbeUnreachable(t *testing.T) {
	sdk := NewRESTSDK(RESTConfig{URL: "http://127.0.0.1:1/razer/chromasdk", Timeout: 200 * time.Millisecond})
	if err := sdk.Probe(context.Background()); err == nil {
		t.Error("Probe() error = nil for unreachable runtime")
	}
}

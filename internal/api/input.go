package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/hotkey"
	"github.com/nerrad567/gray-logic-chroma/internal/statebus"
)

// HotkeyStatus describes one bound hotkey.
type HotkeyStatus struct {
	Name    string       `json:"name"`
	Keys    []device.Key `json:"keys"`
	Pressed bool         `json:"pressed"`
	HeldFor float64      `json:"held_for"`
}

// FlagRequest is the body of PUT /state/{name}. A bare "on", "off", true or
// false body is accepted too.
type FlagRequest struct {
	Value *bool `json:"value"`
}

// handleListHotkeys returns every bound hotkey and its state at the last tick.
func (s *Server) handleListHotkeys(w http.ResponseWriter, _ *http.Request) {
	hotkeys := s.engine.Hotkeys()
	out := make([]HotkeyStatus, 0)
	for _, name := range hotkeys.Names() {
		hk, ok := hotkeys.Get(name)
		if !ok {
			continue
		}
		out = append(out, HotkeyStatus{
			Name:    name,
			Keys:    hk.Keys(),
			Pressed: hk.IsPressed(),
			HeldFor: hk.HeldFor(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hotkeys": out})
}

// handleKeyPress marks a physical key as down until released.
func (s *Server) handleKeyPress(w http.ResponseWriter, r *http.Request) {
	s.injectKey(w, r, true)
}

// handleKeyRelease marks a physical key as up.
func (s *Server) handleKeyRelease(w http.ResponseWriter, r *http.Request) {
	s.injectKey(w, r, false)
}

func (s *Server) injectKey(w http.ResponseWriter, r *http.Request, down bool) {
	keys, ok := s.engine.Keys().(KeyInjector)
	if !ok {
		writeConflict(w, "key source does not accept injected keys")
		return
	}
	key := device.Key(chi.URLParam(r, "key"))
	if key == "" {
		writeBadRequest(w, "key is required")
		return
	}
	if down {
		keys.Press(key)
	} else {
		keys.Release(key)
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "down": down})
}

// handleListFlags returns every application state flag.
func (s *Server) handleListFlags(w http.ResponseWriter, _ *http.Request) {
	if s.flags == nil {
		writeUnavailable(w, "state flags not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flags": s.flags.Values()})
}

// handleSetFlag sets one application state flag.
func (s *Server) handleSetFlag(w http.ResponseWriter, r *http.Request) {
	if s.flags == nil {
		writeUnavailable(w, "state flags not configured")
		return
	}
	name := chi.URLParam(r, "name")

	value, err := decodeFlagValue(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.flags.Set(name, value)
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": value})
}

func decodeFlagValue(r *http.Request) (bool, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return false, errors.New("invalid JSON body")
	}
	var req FlagRequest
	if err := json.Unmarshal(raw, &req); err == nil && req.Value != nil {
		return *req.Value, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return statebus.ParseValue([]byte(str))
	}
	return false, errors.New(`body must be {"value": bool}, a boolean or "on"/"off"`)
}

// Ensure the default key source accepts injected keys.
var _ KeyInjector = (*hotkey.State)(nil)

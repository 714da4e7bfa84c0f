package hotkey

import (
	"sync"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// State is a KeySource fed by external events (HTTP, MQTT, an input hook).
//
// Thread Safety: all methods are safe for concurrent use.
type State struct {
	mu   sync.RWMutex
	down map[device.Key]bool
}

// NewState creates a State with every key up.
func NewState() *State {
	return &State{down: make(map[device.Key]bool)}
}

// Press marks key as down.
func (s *State) Press(key device.Key) {
	s.mu.Lock()
	s.down[key] = true
	s.mu.Unlock()
}

// Release marks key as up.
func (s *State) Release(key device.Key) {
	s.mu.Lock()
	delete(s.down, key)
	s.mu.Unlock()
}

// IsKeyDown reports whether key is down.
func (s *State) IsKeyDown(key device.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.down[key]
}

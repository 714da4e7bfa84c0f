// Package hotkey maps physical key bindings to named triggers.
//
// A Collection polls a KeySource once per engine tick and tracks, for every
// bound name, whether it is pressed, was just pressed or just released this
// tick, and how long it has been held. Hotkeys feed shader conditions and
// per-key effects.
package hotkey

import (
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-chroma/internal/condition"
	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// KeySource reports the physical state of keys.
type KeySource interface {
	IsKeyDown(key device.Key) bool
}

// Hotkey is one named binding. It is pressed while any of its keys is down.
type Hotkey struct {
	name string
	keys []device.Key

	pressed      bool
	justPressed  bool
	justReleased bool
	held         float64
	toggled      bool
}

// Name returns the binding name.
func (h *Hotkey) Name() string { return h.name }

// Keys returns the bound keys.
func (h *Hotkey) Keys() []device.Key { return append([]device.Key(nil), h.keys...) }

// IsPressed reports whether any bound key is down.
func (h *Hotkey) IsPressed() bool { return h.pressed }

// JustPressed reports whether the hotkey went down on the last update.
func (h *Hotkey) JustPressed() bool { return h.justPressed }

// JustReleased reports whether the hotkey went up on the last update.
func (h *Hotkey) JustReleased() bool { return h.justReleased }

// HeldFor returns how long, in seconds, the hotkey has been held.
func (h *Hotkey) HeldFor() float64 { return h.held }

// Toggled reports whether the hotkey has been pressed an odd number of
// times since it was bound.
func (h *Hotkey) Toggled() bool { return h.toggled }

func (h *Hotkey) update(src KeySource, dt float64) {
	down := false
	for _, k := range h.keys {
		if src.IsKeyDown(k) {
			down = true
			break
		}
	}
	h.justPressed = down && !h.pressed
	h.justReleased = !down && h.pressed
	if h.justPressed {
		h.toggled = !h.toggled
	}
	switch {
	case down && h.pressed:
		h.held += dt
	default:
		h.held = 0
	}
	h.pressed = down
}

// Collection holds the named hotkeys.
//
// Thread Safety: all methods are safe for concurrent use.
type Collection struct {
	mu      sync.RWMutex
	source  KeySource
	hotkeys map[string]*Hotkey
}

// NewCollection creates an empty collection polling src. A nil src never
// reports keys down.
func NewCollection(src KeySource) *Collection {
	if src == nil {
		src = NewState()
	}
	return &Collection{source: src, hotkeys: make(map[string]*Hotkey)}
}

// Bind creates or replaces the hotkey name. Binding with no keys removes it.
func (c *Collection) Bind(name string, keys ...device.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(keys) == 0 {
		delete(c.hotkeys, name)
		return
	}
	c.hotkeys[name] = &Hotkey{name: name, keys: append([]device.Key(nil), keys...)}
}

// Unbind removes the hotkey name.
func (c *Collection) Unbind(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hotkeys, name)
}

// Update polls the key source and advances every hotkey by dt seconds.
func (c *Collection) Update(dt float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.hotkeys {
		h.update(c.source, dt)
	}
}

// Get returns a snapshot of the hotkey name.
func (c *Collection) Get(name string) (Hotkey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.hotkeys[name]
	if !ok {
		return Hotkey{}, false
	}
	return *h, true
}

// Names returns the bound names in sorted order.
func (c *Collection) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.hotkeys))
	for name := range c.hotkeys {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PressedKeys returns the keys of every pressed hotkey, deduplicated.
func (c *Collection) PressedKeys() []device.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[device.Key]struct{})
	var out []device.Key
	for _, h := range c.hotkeys {
		if !h.pressed {
			continue
		}
		for _, k := range h.keys {
			if _, ok := seen[k]; ok {
				continue
			}
			if c.source.IsKeyDown(k) {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}

// Pressed returns a condition that is active while name is pressed. The
// binding is looked up on every evaluation, so rebinding takes effect at once.
func (c *Collection) Pressed(name string) condition.Condition {
	return condition.Func(func() bool {
		h, ok := c.Get(name)
		return ok && h.pressed
	})
}

// HeldLonger returns a condition that is active once name has been held for
// at least seconds.
func (c *Collection) HeldLonger(name string, seconds float64) condition.Condition {
	return condition.Func(func() bool {
		h, ok := c.Get(name)
		return ok && h.pressed && h.held >= seconds
	})
}

// Toggle returns a condition that flips every time name is pressed. The
// state lives in the hotkey and advances in Update, so any number of
// evaluations per tick agree. Rebinding name resets it.
func (c *Collection) Toggle(name string) condition.Condition {
	return condition.Func(func() bool {
		h, ok := c.Get(name)
		return ok && h.toggled
	})
}

// Package condition provides the boolean predicates that gate lighting effects.
//
// A shader is registered with a Condition; while the condition is active the
// shader fades in, otherwise it fades out. Conditions are evaluated on the
// engine's tick goroutine once per accepted tick.
//
// # Key Types
//
//   - Condition: anything with IsActive() bool
//   - Func: adapts a closure
//   - Flag: settable condition safe for use from other goroutines
//   - All, Any, Not: composites
package condition

import "sync/atomic"

// Condition reports whether an effect should currently be shown.
type Condition interface {
	IsActive() bool
}

// Func adapts an ordinary function to Condition.
type Func func() bool

// IsActive calls f. A nil Func is inactive.
func (f Func) IsActive() bool {
	if f == nil {
		return false
	}
	return f()
}

type constant bool

func (c constant) IsActive() bool { return bool(c) }

// Always returns a condition that is always active.
func Always() Condition { return constant(true) }

// Never returns a condition that is never active.
func Never() Condition { return constant(false) }

type all []Condition

func (a all) IsActive() bool {
	for _, c := range a {
		if c == nil || !c.IsActive() {
			return false
		}
	}
	return true
}

// All is active when every condition is active. An empty All is active.
func All(conds ...Condition) Condition {
	return all(append([]Condition(nil), conds...))
}

type anyOf []Condition

func (a anyOf) IsActive() bool {
	for _, c := range a {
		if c != nil && c.IsActive() {
			return true
		}
	}
	return false
}

// Any is active when at least one condition is active. An empty Any is inactive.
func Any(conds ...Condition) Condition {
	return anyOf(append([]Condition(nil), conds...))
}

type not struct{ c Condition }

func (n not) IsActive() bool { return n.c == nil || !n.c.IsActive() }

// Not inverts c. Not(nil) is active.
func Not(c Condition) Condition { return not{c: c} }

// Flag is a settable condition. Set and IsActive may be called from any goroutine.
type Flag struct {
	name  string
	value atomic.Bool
}

// NewFlag creates a named flag with an initial value.
func NewFlag(name string, initial bool) *Flag {
	f := &Flag{name: name}
	f.value.Store(initial)
	return f
}

// Name returns the flag name.
func (f *Flag) Name() string { return f.name }

// Set changes the flag value.
func (f *Flag) Set(v bool) { f.value.Store(v) }

// Toggle flips the flag and returns the new value.
func (f *Flag) Toggle() bool {
	for {
		old := f.value.Load()
		if f.value.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// IsActive reports the current value.
func (f *Flag) IsActive() bool { return f.value.Load() }

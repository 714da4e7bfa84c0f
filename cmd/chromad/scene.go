package main

import (
	"github.com/gogpu/gg"

	"github.com/nerrad567/gray-logic-chroma/internal/condition"
	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/engine"
	"github.com/nerrad567/gray-logic-chroma/internal/shader"
	"github.com/nerrad567/gray-logic-chroma/internal/statebus"
)

// Scene layers, bottom to top.
const (
	layerAmbient = iota
	layerAlert
	layerKeys
)

// State flags the default scene reacts to.
const (
	flagAlert = "alert"
	flagIdle  = "idle"
)

// movementKeys are highlighted while held.
var movementKeys = []device.Key{"W", "A", "S", "D"}

// alertKey toggles the alert pulse by hand.
const alertKey device.Key = "F12"

// registerScene installs the daemon's default shader stack: a rainbow wave,
// a calm gradient while idle, a red pulse while the alert flag is on and a
// highlight on held movement keys. Without a state bus both flags stay off,
// but the alert can still be toggled from the keyboard.
func registerScene(eng *engine.Engine, bus *statebus.Bus) {
	alert := condition.Condition(condition.NewFlag(flagAlert, false))
	idle := condition.Condition(condition.NewFlag(flagIdle, false))
	if bus != nil {
		alert = bus.Flag(flagAlert)
		idle = bus.Flag(flagIdle)
	}

	eng.BindKey("movement", movementKeys...)
	eng.BindKey(flagAlert, alertKey)
	alert = condition.Any(alert, eng.Hotkeys().Toggle(flagAlert))

	must(eng.RegisterShader(shader.NewWave(0.25, 0.04), condition.Not(idle), layerAmbient))
	must(eng.RegisterShader(shader.NewGradient(gg.Hex("#0b1e3f"), gg.Hex("#3a0b3f")), idle, layerAmbient))
	must(eng.RegisterShader(shader.NewPulse(gg.Red, 1.2), alert, layerAlert))
	must(eng.RegisterShader(shader.NewKeyHighlight(gg.White, eng.Hotkeys().PressedKeys), condition.Always(), layerKeys))
}

// must panics on registration errors. The scene is fixed, so one is a bug.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

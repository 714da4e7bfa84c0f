// Package engine provides the lighting orchestrator for Gray Logic Chroma.
//
// The Engine owns the device groups, the shader selector and the hotkeys. The
// host calls Update(totalSeconds) every frame; the engine accepts at most one
// tick per FrameTime, advances hotkeys and shaders under its lock, and then
// renders in a background goroutine.
//
// Architecture:
//
//	Update(t) ── throttle ── TryLock ─┬─ OnUpdate observers
//	                                  ├─ hotkeys.Update(dt)
//	                                  ├─ selector.Update(dt)
//	                                  └─ go Draw()
//	                                           │
//	Draw() ── Lock ── for Low, High: ─────────┤
//	                  pipeline.Process(devices at level, ops)
//	                  groups: OnceProcessed()
//
// # Failure containment
//
// A panic or error anywhere in the tick or render disables every device
// group. Lighting stays off until the caller enables the groups again.
//
// # Usage
//
//	eng := engine.New(engine.Options{Logger: log})
//	eng.AddDeviceGroup("virtual", group)
//	eng.EnableAllDeviceGroups()
//	_ = eng.RegisterShader(shader.NewSolid(gg.Blue), condition.Always(), 0)
//
//	for now := range ticker.C {
//	   eng.Update(now.Sub(start).Seconds())
//	}
package engine

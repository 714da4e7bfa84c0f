package engine

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-chroma/internal/condition"
	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/hotkey"
	"github.com/nerrad567/gray-logic-chroma/internal/pipeline"
	"github.com/nerrad567/gray-logic-chroma/internal/shader"
)

// DefaultFrameTime is the minimum time between accepted ticks (45 fps).
const DefaultFrameTime = time.Second / 45

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// FailureRecorder receives render failures after every group was disabled.
type FailureRecorder interface {
	RecordFailure(err error)
}

// StatsSink receives one FrameStats per render pass.
type StatsSink interface {
	WriteFrameStats(fs FrameStats)
}

// Options configures an Engine.
type Options struct {
	// FrameTime is the minimum engine time between accepted ticks.
	// Zero means DefaultFrameTime.
	FrameTime time.Duration

	// Pipeline composites and presents. Nil uses a pipeline.Compositor.
	Pipeline pipeline.Pipeline

	// Keys is polled by the hotkey collection. Nil uses a hotkey.State
	// reachable through Engine.Keys.
	Keys hotkey.KeySource

	// Logger receives engine diagnostics. Nil disables logging.
	Logger Logger

	// Failures, if set, is told about every render failure.
	Failures FailureRecorder

	// Stats, if set, receives per-render statistics.
	Stats StatsSink
}

// Engine drives the lighting update/draw cycle.
//
// One mutex guards the group registry, the shader selector, the hotkeys and
// both halves of the cycle. Update never blocks on it: a tick that finds the
// lock held, or a render still in flight, is dropped. Any panic or error in
// the cycle disables every group until the caller re-enables them.
//
// Thread Safety: all methods are safe for concurrent use. Update is meant to
// be driven from a single goroutine.
type Engine struct {
	frameTime float64
	pipeline  pipeline.Pipeline
	keys      hotkey.KeySource
	logger    Logger
	failures  FailureRecorder
	stats     StatsSink

	mu         sync.Mutex
	groups     map[string]device.Group
	selector   *shader.Selector
	hotkeys    *hotkey.Collection
	observers  []func(totalTime float64)
	renderTime float64

	groupCount atomic.Int32
	lastTime   atomic.Uint64
	rendering  atomic.Bool
	renderWG   sync.WaitGroup

	accepted   atomic.Uint64
	skipped    atomic.Uint64
	renders    atomic.Uint64
	failCount  atomic.Uint64
	lastRender atomic.Int64

	errMu   sync.Mutex
	lastErr error
}

// New creates an Engine with no groups and no shaders.
//
// Parameters:
//   - opts: engine options
//
// Returns:
//   - *Engine: ready to accept groups and shaders
func New(opts Options) *Engine {
	if opts.FrameTime <= 0 {
		opts.FrameTime = DefaultFrameTime
	}
	if opts.Pipeline == nil {
		opts.Pipeline = pipeline.NewCompositor(pipeline.Options{})
	}
	if opts.Keys == nil {
		opts.Keys = hotkey.NewState()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Engine{
		frameTime: opts.FrameTime.Seconds(),
		pipeline:  opts.Pipeline,
		keys:      opts.Keys,
		logger:    opts.Logger,
		failures:  opts.Failures,
		stats:     opts.Stats,
		groups:    make(map[string]device.Group),
		selector:  shader.NewSelector(),
		hotkeys:   hotkey.NewCollection(opts.Keys),
	}
}

// Keys returns the key source polled by the hotkeys.
func (e *Engine) Keys() hotkey.KeySource { return e.keys }

// FrameTime returns the minimum time between accepted ticks.
func (e *Engine) FrameTime() time.Duration {
	return time.Duration(e.frameTime * float64(time.Second))
}

// AddDeviceGroup registers g under name. An existing group with the same
// name is disabled and replaced. The new group is not enabled.
func (e *Engine) AddDeviceGroup(name string, g device.Group) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.groups[name]; ok && old != g && old.IsEnabled() {
		old.Disable()
	}
	e.groups[name] = g
	e.groupCount.Store(int32(len(e.groups)))
	e.logger.Debug("device group added", "group", name)
}

// RemoveDeviceGroup disables and removes the group name. It reports whether
// the group existed.
func (e *Engine) RemoveDeviceGroup(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[name]
	if !ok {
		return false
	}
	if g.IsEnabled() {
		g.Disable()
	}
	delete(e.groups, name)
	e.groupCount.Store(int32(len(e.groups)))
	e.logger.Debug("device group removed", "group", name)
	return true
}

// EnableDeviceGroup enables the group name.
//
// Returns:
//   - error: ErrGroupNotFound if no group has that name
func (e *Engine) EnableDeviceGroup(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	g.Enable()
	return nil
}

// DisableDeviceGroup disables the group name.
//
// Returns:
//   - error: ErrGroupNotFound if no group has that name
func (e *Engine) DisableDeviceGroup(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
	}
	g.Disable()
	return nil
}

// EnableAllDeviceGroups enables every registered group.
func (e *Engine) EnableAllDeviceGroups() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, name := range e.namesLocked() {
		e.groups[name].Enable()
	}
}

// DisableAllDeviceGroups disables every registered group.
func (e *Engine) DisableAllDeviceGroups() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disableAllLocked()
}

func (e *Engine) disableAllLocked() {
	for _, name := range e.namesLocked() {
		e.groups[name].Disable()
	}
}

// IsDeviceGroupEnabled reports whether the group name exists and is enabled.
func (e *Engine) IsDeviceGroupEnabled(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.groups[name]
	return ok && g.IsEnabled()
}

// DeviceGroupNames returns the registered group names in sorted order.
func (e *Engine) DeviceGroupNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.namesLocked()
}

func (e *Engine) namesLocked() []string {
	names := make([]string, 0, len(e.groups))
	for name := range e.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterShader adds s to layer, gated by cond. Re-registering a shader
// moves it and resets its fade.
func (e *Engine) RegisterShader(s shader.Shader, cond condition.Condition, layer int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selector.Register(s, cond, layer)
}

// UnregisterShader removes s. It reports whether s was registered.
func (e *Engine) UnregisterShader(s shader.Shader) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selector.Unregister(s)
}

// BindKey binds the hotkey name to keys, replacing any earlier binding.
func (e *Engine) BindKey(name string, keys ...device.Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hotkeys.Bind(name, keys...)
}

// UnbindKey removes the hotkey name.
func (e *Engine) UnbindKey(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hotkeys.Unbind(name)
}

// Hotkeys returns the hotkey collection, for building conditions.
func (e *Engine) Hotkeys() *hotkey.Collection { return e.hotkeys }

// LoadSpecialRules hands rules to every enabled group that accepts them.
// Each group decides whether it understands the payload.
func (e *Engine) LoadSpecialRules(rules any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, name := range e.namesLocked() {
		g := e.groups[name]
		if !g.IsEnabled() {
			continue
		}
		if loader, ok := g.(device.SpecialRulesLoader); ok {
			loader.LoadSpecialRules(rules)
		}
	}
}

// OnUpdate registers fn to run at the start of every accepted tick, under
// the engine lock. fn must not call back into the engine.
func (e *Engine) OnUpdate(fn func(totalTime float64)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Update is the per-frame entry point. totalTime is the caller's clock in
// seconds.
//
// A tick is accepted only when at least FrameTime has passed since the last
// accepted tick, no render is in flight and the engine lock is free. An
// accepted tick advances hotkeys and shaders and starts a render in the
// background. A clock that moves backwards resets the baseline; NaN and
// infinite times are dropped.
func (e *Engine) Update(totalTime float64) {
	if math.IsNaN(totalTime) || math.IsInf(totalTime, 0) {
		e.skipped.Add(1)
		e.logger.Warn("ignoring non-finite clock", "now", totalTime)
		return
	}
	last := math.Float64frombits(e.lastTime.Load())
	if totalTime < last {
		e.lastTime.Store(math.Float64bits(totalTime))
		e.logger.Debug("clock regressed, resynchronised", "last", last, "now", totalTime)
		return
	}
	if e.groupCount.Load() == 0 {
		return
	}

	delta := totalTime - last
	if delta < e.frameTime || e.rendering.Load() || !e.mu.TryLock() {
		e.skipped.Add(1)
		return
	}
	defer e.mu.Unlock()

	if err := e.tickLocked(totalTime, delta); err != nil {
		e.failLocked(fmt.Errorf("%w: %w", ErrUpdateFailed, err))
		return
	}
	e.accepted.Add(1)

	e.rendering.Store(true)
	e.renderWG.Add(1)
	go func() {
		defer func() {
			e.rendering.Store(false)
			e.renderWG.Done()
		}()
		_ = e.Draw()
	}()
}

func (e *Engine) tickLocked(totalTime, delta float64) (err error) {
	defer recoverInto(&err)

	for _, fn := range e.observers {
		fn(totalTime)
	}
	e.hotkeys.Update(delta)
	e.selector.Update(delta)
	e.lastTime.Store(math.Float64bits(totalTime))
	e.renderTime = totalTime
	return nil
}

// Draw composites and presents every enabled device, low detail first, then
// flushes groups that batch their output. It blocks on the engine lock.
// Any failure disables every group and is returned.
func (e *Engine) Draw() error {
	fs, err := e.draw()

	e.renders.Add(1)
	e.lastRender.Store(int64(fs.Duration))
	if e.stats != nil {
		if serr := safely(func() { e.stats.WriteFrameStats(fs) }); serr != nil {
			e.logger.Error("stats sink panicked", "error", serr)
		}
	}
	return err
}

func (e *Engine) draw() (FrameStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	fs, err := e.renderLocked()
	fs.Duration = time.Since(start)
	fs.Time = start
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrRenderFailed, err)
		fs.Failed = true
		e.failLocked(err)
	}
	return fs, err
}

func (e *Engine) renderLocked() (fs FrameStats, err error) {
	defer recoverInto(&err)

	names := e.namesLocked()
	groups := make([]device.Group, 0, len(names))
	for _, name := range names {
		groups = append(groups, e.groups[name])
	}

	for _, level := range device.DetailLevels {
		var devices []device.Device
		for _, g := range groups {
			for _, d := range g.Devices() {
				if d.PreferredDetailLevel() == level {
					devices = append(devices, d)
				}
			}
		}
		ops := e.selector.Operations(level)
		fs.Devices += len(devices)
		fs.Operations[level] = len(ops)
		if len(devices) == 0 {
			continue
		}
		if err := e.pipeline.Process(level, devices, ops, e.renderTime); err != nil {
			return fs, err
		}
	}

	for i, g := range groups {
		flusher, ok := g.(device.BatchFlusher)
		if !ok || !g.IsEnabled() {
			continue
		}
		if err := flusher.OnceProcessed(); err != nil {
			return fs, fmt.Errorf("group %s: %w", names[i], err)
		}
	}
	return fs, nil
}

// failLocked disables every group and records err.
func (e *Engine) failLocked(err error) {
	e.failCount.Add(1)
	e.errMu.Lock()
	e.lastErr = err
	e.errMu.Unlock()

	e.logger.Error("lighting failure, disabling all device groups", "error", err)
	for _, name := range e.namesLocked() {
		if perr := safely(e.groups[name].Disable); perr != nil {
			e.logger.Error("device group disable panicked", "group", name, "error", perr)
		}
	}
	if e.failures != nil {
		if perr := safely(func() { e.failures.RecordFailure(err) }); perr != nil {
			e.logger.Error("failure recorder panicked", "error", perr)
		}
	}
}

// safely runs fn and returns a recovered panic as an error.
func safely(fn func()) (err error) {
	defer recoverInto(&err)
	fn()
	return nil
}

// WaitForRender blocks until the background render started by the last
// accepted tick has finished. Call it from the goroutine that drives Update.
func (e *Engine) WaitForRender() {
	e.renderWG.Wait()
}

// Close waits for the in-flight render and disables every group.
func (e *Engine) Close() {
	e.WaitForRender()
	e.DisableAllDeviceGroups()
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	e.errMu.Lock()
	lastErr := ""
	if e.lastErr != nil {
		lastErr = e.lastErr.Error()
	}
	e.errMu.Unlock()

	return Stats{
		Accepted:   e.accepted.Load(),
		Skipped:    e.skipped.Load(),
		Renders:    e.renders.Load(),
		Failures:   e.failCount.Load(),
		LastRender: time.Duration(e.lastRender.Load()),
		LastError:  lastErr,
	}
}

// recoverInto turns a panic into an error stored in *err.
func recoverInto(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if rerr, ok := r.(error); ok {
		*err = fmt.Errorf("%w: %w\n%s", ErrPanic, rerr, debug.Stack())
		return
	}
	*err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
}

// IsPanic reports whether err came from a recovered panic.
func IsPanic(err error) bool { return errors.Is(err, ErrPanic) }

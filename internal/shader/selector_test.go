package shader

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-chroma/internal/condition"
	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// mockShader is a test implementation of Shader.
type mockShader struct {
	name        string
	transparent [2]bool
	updates     int
	lastDT      float64
}

func opaque(name string) *mockShader { return &mockShader{name: name} }

func transparent(name string) *mockShader {
	return &mockShader{name: name, transparent: [2]bool{true, true}}
}

// opaqueAt returns a shader opaque only at level.
func opaqueAt(name string, level device.DetailLevel) *mockShader {
	m := transparent(name)
	m.transparent[level] = false
	return m
}

func (m *mockShader) Name() string { return m.name }
func (m *mockShader) Update(dt float64) {
	m.updates++
	m.lastDT = dt
}
func (m *mockShader) IsTransparent(l device.DetailLevel) bool { return m.transparent[l] }
func (m *mockShader) Process(*Frame)                          {}

// valueShader is not comparable because it holds a slice.
type valueShader struct{ data []int }

func (valueShader) Update(float64)                        {}
func (valueShader) IsTransparent(device.DetailLevel) bool { return false }
func (valueShader) Process(*Frame)                        {}

func tick(sel *Selector, n int, dt float64) {
	for i := 0; i < n; i++ {
		sel.Update(dt)
	}
}

func names(ops []Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = NameOf(op.Shader) + ":" + op.Blend.String()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSelector_RegisterErrors(t *testing.T) {
	sel := NewSelector()

	tests := []struct {
		name  string
		s     Shader
		layer int
		want  error
	}{
		{"nil shader", nil, 0, ErrNilShader},
		{"negative layer", opaque("a"), -1, ErrInvalidLayer},
		{"layer too high", opaque("a"), LayerCount, ErrInvalidLayer},
		{"not comparable", valueShader{}, 0, ErrNotComparable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := sel.Register(tt.s, condition.Always(), tt.layer); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}
	if sel.Len() != 0 {
		t.Errorf("Len() = %d after failed registrations", sel.Len())
	}
}

func TestSelector_ReRegisterReplaces(t *testing.T) {
	sel := NewSelector()
	s := opaque("s")
	if err := sel.Register(s, condition.Always(), 1); err != nil {
		t.Fatal(err)
	}
	if err := sel.Register(s, condition.Always(), 9); err != nil {
		t.Fatal(err)
	}
	layers := sel.Layers()
	if sel.Len() != 1 || len(layers) != 1 || layers[0].Index != 9 {
		t.Errorf("Layers() = %+v, want single shader in layer 9", layers)
	}
}

func TestSelector_FadeMonotonicity(t *testing.T) {
	flag := condition.NewFlag("f", true)
	sel := NewSelector()
	s := opaque("s")
	if err := sel.Register(s, flag, 0); err != nil {
		t.Fatal(err)
	}

	prev := 0.0
	for i := 0; i < 15; i++ {
		sel.Update(0.1)
		op := sel.Layers()[0].Shaders[0].Opacity
		if op < prev {
			t.Fatalf("fade in: opacity decreased %v -> %v", prev, op)
		}
		prev = op
	}
	if prev != 1.0 {
		t.Fatalf("opacity after 1.5s active = %v, want exactly 1", prev)
	}

	flag.Set(false)
	for i := 0; i < 15; i++ {
		sel.Update(0.1)
		op := sel.Layers()[0].Shaders[0].Opacity
		if op > prev {
			t.Fatalf("fade out: opacity increased %v -> %v", prev, op)
		}
		prev = op
	}
	info := sel.Layers()[0].Shaders[0]
	if info.Opacity != 0 || info.Visible {
		t.Errorf("after 1.5s inactive: opacity=%v visible=%v, want 0/false", info.Opacity, info.Visible)
	}
	if sel.Len() != 1 {
		t.Error("fully faded shader was dropped")
	}
	if ops := sel.Operations(device.DetailHigh); len(ops) != 0 {
		t.Errorf("invisible shader produced operations: %v", names(ops))
	}
}

func TestSelector_OcclusionAtLevel(t *testing.T) {
	sel := NewSelector()
	top := opaqueAt("top", device.DetailHigh)
	below := opaque("below")
	_ = sel.Register(top, condition.Always(), 7)
	_ = sel.Register(below, condition.Always(), 3)

	tick(sel, 12, 0.1)

	high := names(sel.Operations(device.DetailHigh))
	if want := []string{"top:none"}; !equal(high, want) {
		t.Errorf("High ops = %v, want %v", high, want)
	}

	low := names(sel.Operations(device.DetailLow))
	if want := []string{"below:none", "top:per_pixel_opacity"}; !equal(low, want) {
		t.Errorf("Low ops = %v, want %v", low, want)
	}
}

func TestSelector_PartialFadeDoesNotOccludeOperations(t *testing.T) {
	sel := NewSelector()
	base := opaque("base")
	over := opaque("over")
	_ = sel.Register(base, condition.Always(), 0)
	tick(sel, 12, 0.1)

	_ = sel.Register(over, condition.Always(), 10)
	sel.Update(0.5)

	ops := sel.Operations(device.DetailHigh)
	if got, want := names(ops), []string{"base:none", "over:global_opacity"}; !equal(got, want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	if ops[1].Opacity != 0.5 {
		t.Errorf("over opacity = %v, want 0.5", ops[1].Opacity)
	}
}

func TestSelector_UpdatePassStopsAtOpaqueRegardlessOfFade(t *testing.T) {
	sel := NewSelector()
	bottom := opaque("bottom")
	top := opaqueAt("top", device.DetailHigh)
	_ = sel.Register(bottom, condition.Always(), 2)
	_ = sel.Register(top, condition.Always(), 8)

	sel.Update(0.25)

	if top.updates != 1 {
		t.Errorf("top updates = %d, want 1", top.updates)
	}
	if bottom.updates != 0 {
		t.Errorf("bottom updates = %d, want 0 while top is opaque and visible", bottom.updates)
	}
	// The operation list still includes the partially faded top over bottom.
	if got, want := names(sel.Operations(device.DetailHigh)), []string{"bottom:none", "top:global_opacity"}; !equal(got, want) {
		t.Errorf("High ops = %v, want %v", got, want)
	}
}

func TestSelector_TransparentShadersDoNotStopUpdates(t *testing.T) {
	sel := NewSelector()
	bottom := opaque("bottom")
	glow := transparent("glow")
	_ = sel.Register(bottom, condition.Always(), 0)
	_ = sel.Register(glow, condition.Always(), 10)

	sel.Update(0.1)

	if bottom.updates != 1 || glow.updates != 1 {
		t.Errorf("updates bottom=%d glow=%d, want 1/1", bottom.updates, glow.updates)
	}
	if bottom.lastDT != 0.1 {
		t.Errorf("Update dt = %v, want 0.1", bottom.lastDT)
	}
}

func TestSelector_ActivationPromotion(t *testing.T) {
	sel := NewSelector()
	a := opaque("a")
	b := opaque("b")
	bOn := condition.NewFlag("b", false)
	_ = sel.Register(a, condition.Always(), 4)
	_ = sel.Register(b, bOn, 4)

	sel.Update(0.1)
	order := sel.Layers()[0].Shaders
	if order[0].Name != "a" || order[1].Name != "b" {
		t.Fatalf("initial order = %v", order)
	}

	bOn.Set(true)
	sel.Update(0.1)
	order = sel.Layers()[0].Shaders
	if order[0].Name != "b" || order[1].Name != "a" {
		t.Errorf("order after activating b = %v, want b first", order)
	}

	// Once both are fully in, the newest activation wins the layer.
	tick(sel, 12, 0.1)
	if got, want := names(sel.Operations(device.DetailHigh)), []string{"b:none"}; !equal(got, want) {
		t.Errorf("High ops = %v, want %v", got, want)
	}
}

func TestSelector_LayeredScenario(t *testing.T) {
	sel := NewSelector()
	s1 := opaqueAt("s1", device.DetailHigh)
	s2 := transparent("s2")
	_ = sel.Register(s1, condition.Always(), 5)
	_ = sel.Register(s2, condition.Always(), 2)

	tick(sel, 12, 0.1)

	// s1 is opaque at High and fully in, so nothing beneath it is drawn.
	if got, want := names(sel.Operations(device.DetailHigh)), []string{"s1:none"}; !equal(got, want) {
		t.Errorf("High ops = %v, want %v", got, want)
	}
	// At Low s1 is transparent, so s2 forms the base with s1 on top.
	if got, want := names(sel.Operations(device.DetailLow)), []string{"s2:none", "s1:per_pixel_opacity"}; !equal(got, want) {
		t.Errorf("Low ops = %v, want %v", got, want)
	}
}

func TestSelector_UnregisterDropsCachedOperations(t *testing.T) {
	sel := NewSelector()
	base := opaque("base")
	glow := transparent("glow")
	_ = sel.Register(base, condition.Always(), 0)
	_ = sel.Register(glow, condition.Always(), 1)
	tick(sel, 12, 0.1)

	if !sel.Unregister(base) {
		t.Fatal("Unregister() = false")
	}
	if sel.Unregister(base) {
		t.Error("second Unregister() = true")
	}
	if got, want := names(sel.Operations(device.DetailHigh)), []string{"glow:none"}; !equal(got, want) {
		t.Errorf("ops after unregister = %v, want %v", got, want)
	}
}

func TestSelector_OperationsCopy(t *testing.T) {
	sel := NewSelector()
	_ = sel.Register(opaque("s"), condition.Always(), 0)
	sel.Update(1)

	ops := sel.Operations(device.DetailHigh)
	ops[0].Blend = BlendPerPixelOpacity
	if sel.Operations(device.DetailHigh)[0].Blend != BlendNone {
		t.Error("Operations() returned shared storage")
	}
	if sel.Operations(device.DetailLevel(7)) != nil {
		t.Error("Operations(unknown level) != nil")
	}
}

package serialstrip

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/gg"
	"go.bug.st/serial/enumerator"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/rules"
)

type fakePort struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closed   bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePort) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.writes) == 0 {
		return nil
	}
	return p.writes[len(p.writes)-1]
}

func opener(p *fakePort, opened *string) Opener {
	return func(name string, _ int) (Port, error) {
		*opened = name
		return p, nil
	}
}

func TestFrame(t *testing.T) {
	colors := []gg.RGBA{gg.Red, gg.Green, gg.Blue}

	got := Frame(colors, 0, false)
	want := []byte{'A', 'd', 'a', 0x00, 0x02, 0x00 ^ 0x02 ^ 0x55,
		255, 0, 0,
		0, 255, 0,
		0, 0, 255,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Frame() = %v, want %v", got, want)
	}

	reversed := Frame(colors, 1, true)
	if !bytes.Equal(reversed[6:], []byte{0, 0, 255, 0, 255, 0, 255, 0, 0}) {
		t.Errorf("reversed payload = %v", reversed[6:])
	}

	dimmed := Frame([]gg.RGBA{gg.White}, 0.5, false)
	if !bytes.Equal(dimmed[6:], []byte{128, 128, 128}) {
		t.Errorf("dimmed payload = %v", dimmed[6:])
	}
}

func TestFrame_LargeCountHeader(t *testing.T) {
	got := Frame(make([]gg.RGBA, 300), 1, false)
	// 299 = 0x012B
	if got[3] != 0x01 || got[4] != 0x2B || got[5] != 0x01^0x2B^0x55 {
		t.Errorf("header = % x", got[:6])
	}
	if len(got) != 6+300*3 {
		t.Errorf("len = %d", len(got))
	}
}

func TestBackend_ExplicitPort(t *testing.T) {
	port := &fakePort{}
	var opened string
	b := NewBackend(Config{
		Port: "/dev/ttyUSB7",
		LEDs: 4,
		Open: opener(port, &opened),
		List: func() ([]*enumerator.PortDetails, error) {
			t.Fatal("List called with an explicit port")
			return nil, nil
		},
	})

	devices, err := b.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if opened != "/dev/ttyUSB7" || b.PortName() != "/dev/ttyUSB7" {
		t.Errorf("opened %q", opened)
	}
	if len(devices) != 1 || devices[0].LEDCount() != 4 || devices[0].Vendor() != device.VendorAdalight {
		t.Fatalf("devices = %v", devices)
	}

	strip := devices[0]
	for i := range strip.Buffer() {
		strip.Buffer()[i] = gg.Red
	}
	if err := strip.Present(); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	frame := port.last()
	if len(frame) != 6+4*3 || string(frame[:3]) != "Ada" || frame[6] != 255 || frame[7] != 0 {
		t.Errorf("frame = %v", frame)
	}

	if err := b.Uninitialize(); err != nil {
		t.Fatal(err)
	}
	if !port.closed {
		t.Error("port not closed")
	}
	if blank := port.last(); !bytes.Equal(blank[6:], make([]byte, 12)) {
		t.Errorf("strip not blanked: %v", blank)
	}
	if err := b.Uninitialize(); err != nil {
		t.Errorf("second Uninitialize() = %v", err)
	}
}

func TestBackend_FindsPortByVIDPID(t *testing.T) {
	port := &fakePort{}
	var opened string
	b := NewBackend(Config{
		VID:  "1a86",
		PID:  "7523",
		LEDs: 2,
		Open: opener(port, &opened),
		List: func() ([]*enumerator.PortDetails, error) {
			return []*enumerator.PortDetails{
				{Name: "/dev/ttyS0"},
				{Name: "/dev/ttyACM0", IsUSB: true, VID: "239A", PID: "80F0"},
				{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1A86", PID: "7523"},
			}, nil
		},
	})

	if _, err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if opened != "/dev/ttyUSB0" {
		t.Errorf("opened %q, want /dev/ttyUSB0", opened)
	}
}

func TestBackend_PortNotFoundLeavesGroupDisabled(t *testing.T) {
	g := device.NewLifecycle(device.LifecycleOptions{
		Name: "serial",
		Backend: NewBackend(Config{
			VID:  "1a86",
			PID:  "7523",
			LEDs: 2,
			List: func() ([]*enumerator.PortDetails, error) { return nil, nil },
		}),
	})

	g.Enable()

	if g.IsEnabled() || len(g.Devices()) != 0 {
		t.Fatal("group enabled without a port")
	}
	if !errors.Is(g.LastError(), ErrPortNotFound) || !errors.Is(g.LastError(), ErrUnavailable) {
		t.Errorf("LastError() = %v", g.LastError())
	}
}

func TestBackend_OpenFailure(t *testing.T) {
	b := NewBackend(Config{
		Port: "/dev/ttyUSB0",
		LEDs: 2,
		Open: func(string, int) (Port, error) { return nil, errors.New("permission denied") },
	})
	if _, err := b.Initialize(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Initialize() error = %v, want ErrUnavailable", err)
	}
}

func TestBackend_WriteFailureIsRenderError(t *testing.T) {
	port := &fakePort{}
	var opened string
	b := NewBackend(Config{Port: "/dev/ttyUSB0", LEDs: 1, Open: opener(port, &opened)})
	devices, err := b.Initialize(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	port.writeErr = errors.New("device disconnected")
	err = devices[0].Present()
	if !errors.Is(err, ErrWriteFailed) || !errors.Is(err, device.ErrPresentFailed) {
		t.Errorf("Present() error = %v", err)
	}
}

func TestBackend_LoadSpecialRules(t *testing.T) {
	port := &fakePort{}
	var opened string
	b := NewBackend(Config{Port: "/dev/ttyUSB0", LEDs: 2, Open: opener(port, &opened)})
	devices, err := b.Initialize(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	b.LoadSpecialRules("ignored")
	b.LoadSpecialRules(&rules.Set{Serial: rules.SerialRules{Brightness: 0.5, Reverse: true}})

	strip := devices[0]
	strip.Buffer()[0] = gg.White
	strip.Buffer()[1] = gg.Black
	if err := strip.Present(); err != nil {
		t.Fatal(err)
	}
	if got := port.last()[6:]; !bytes.Equal(got, []byte{0, 0, 0, 128, 128, 128}) {
		t.Errorf("payload = %v, want reversed and dimmed", got)
	}
}

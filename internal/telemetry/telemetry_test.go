package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/engine"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	at          time.Time
}

type fakeWriter struct {
	mu     sync.Mutex
	points []point
}

func (f *fakeWriter) WritePointAt(m string, tags map[string]string, fields map[string]any, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point{m, tags, fields, at})
}

func (f *fakeWriter) snapshot() []point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]point(nil), f.points...)
}

func TestSink_WriteFrameStats(t *testing.T) {
	w := &fakeWriter{}
	s := NewSink(w, 1)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.WriteFrameStats(engine.FrameStats{
		Time:       at,
		Duration:   1500 * time.Microsecond,
		Devices:    3,
		Operations: [len(device.DetailLevels)]int{2, 1},
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.measurement != MeasurementFrame || p.tags["failed"] != "false" || !p.at.Equal(at) {
		t.Errorf("point = %+v", p)
	}
	if p.fields["duration_us"] != int64(1500) || p.fields["devices"] != 3 {
		t.Errorf("fields = %v", p.fields)
	}
	if p.fields["ops_low"] != 2 || p.fields["ops_high"] != 1 {
		t.Errorf("op fields = %v", p.fields)
	}
}

func TestSink_SamplesSuccessfulFrames(t *testing.T) {
	w := &fakeWriter{}
	s := NewSink(w, 5)

	for range 10 {
		s.WriteFrameStats(engine.FrameStats{Devices: 1})
	}
	if len(w.points) != 2 {
		t.Errorf("sampled points = %d, want 2", len(w.points))
	}

	s.WriteFrameStats(engine.FrameStats{Failed: true})
	if len(w.points) != 3 || w.points[2].tags["failed"] != "true" {
		t.Errorf("failed frame not written: %+v", w.points)
	}
}

func TestSink_RecordEvent(t *testing.T) {
	w := &fakeWriter{}
	s := NewSink(w, 0)

	s.RecordEvent(device.Event{Group: "serial", Kind: device.EventInitFailed, Err: errors.New("port not found")})
	s.RecordEvent(device.Event{Group: "serial", Kind: device.EventEnabled, Devices: 1})

	if len(w.points) != 2 {
		t.Fatalf("points = %d", len(w.points))
	}
	first := w.points[0]
	if first.measurement != MeasurementGroupEvent || first.tags["group"] != "serial" || first.tags["kind"] != "init_failed" {
		t.Errorf("first = %+v", first)
	}
	if first.fields["error"] != "port not found" || first.at.IsZero() {
		t.Errorf("first fields = %v at %v", first.fields, first.at)
	}
	if _, ok := w.points[1].fields["error"]; ok {
		t.Error("enabled event carries an error field")
	}
}

func TestSink_Report(t *testing.T) {
	w := &fakeWriter{}
	s := NewSink(w, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		s.Report(ctx, 5*time.Millisecond, func() engine.Stats { return engine.Stats{Renders: 7} })
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(w.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	points := w.snapshot()
	if len(points) < 2 {
		t.Fatalf("reported %d points", len(points))
	}
	if points[0].measurement != MeasurementEngine || points[0].fields["renders"] != int64(7) {
		t.Errorf("point = %+v", points[0])
	}
}

func TestMultiEvent(t *testing.T) {
	var got []string
	fn := MultiEvent(
		func(ev device.Event) { got = append(got, "a:"+ev.Group) },
		nil,
		func(ev device.Event) { got = append(got, "b:"+ev.Group) },
	)
	fn(device.Event{Group: "g"})
	if len(got) != 2 || got[0] != "a:g" || got[1] != "b:g" {
		t.Errorf("observers saw %v", got)
	}
}

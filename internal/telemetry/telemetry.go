// Package telemetry exports engine frame statistics and group lifecycle
// events as time-series points.
package telemetry

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/engine"
)

// Measurement names.
const (
	MeasurementFrame      = "chroma_frame"
	MeasurementGroupEvent = "chroma_group_event"
	MeasurementEngine     = "chroma_engine"
)

// PointWriter queues points without blocking. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePointAt(measurement string, tags map[string]string, fields map[string]any, at time.Time)
}

// Sink turns engine output into points.
//
// Successful frames are sampled: one in SampleEvery is written. Failed
// frames are always written.
//
// Thread Safety: all methods are safe for concurrent use.
type Sink struct {
	w           PointWriter
	sampleEvery uint64
	frames      atomic.Uint64
}

// Ensure Sink implements engine.StatsSink.
var _ engine.StatsSink = (*Sink)(nil)

// NewSink creates a Sink. sampleEvery below 1 writes every frame.
func NewSink(w PointWriter, sampleEvery int) *Sink {
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &Sink{w: w, sampleEvery: uint64(sampleEvery)} // #nosec G115 -- checked positive
}

// WriteFrameStats writes one render pass.
func (s *Sink) WriteFrameStats(fs engine.FrameStats) {
	n := s.frames.Add(1)
	if !fs.Failed && (n-1)%s.sampleEvery != 0 {
		return
	}

	fields := map[string]any{
		"duration_us": fs.Duration.Microseconds(),
		"devices":     fs.Devices,
	}
	for i, level := range device.DetailLevels {
		fields["ops_"+level.String()] = fs.Operations[i]
	}
	at := fs.Time
	if at.IsZero() {
		at = time.Now()
	}
	s.w.WritePointAt(MeasurementFrame,
		map[string]string{"failed": strconv.FormatBool(fs.Failed)},
		fields, at)
}

// RecordEvent writes a lifecycle transition. Its signature matches
// device.LifecycleOptions.OnEvent.
func (s *Sink) RecordEvent(ev device.Event) {
	fields := map[string]any{"devices": ev.Devices}
	if ev.Err != nil {
		fields["error"] = ev.Err.Error()
	}
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	s.w.WritePointAt(MeasurementGroupEvent,
		map[string]string{"group": ev.Group, "kind": string(ev.Kind)},
		fields, at)
}

// WriteEngineStats writes the engine's cumulative counters.
func (s *Sink) WriteEngineStats(st engine.Stats, at time.Time) {
	// #nosec G115 -- counters stay far below MaxInt64
	s.w.WritePointAt(MeasurementEngine, nil, map[string]any{
		"accepted": int64(st.Accepted),
		"skipped":  int64(st.Skipped),
		"renders":  int64(st.Renders),
		"failures": int64(st.Failures),
	}, at)
}

// Report writes engine counters from stats every interval until ctx is
// cancelled.
func (s *Sink) Report(ctx context.Context, interval time.Duration, stats func() engine.Stats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.WriteEngineStats(stats(), now)
		}
	}
}

// MultiEvent fans one lifecycle event out to several observers.
func MultiEvent(observers ...func(device.Event)) func(device.Event) {
	return func(ev device.Event) {
		for _, o := range observers {
			if o != nil {
				o(ev)
			}
		}
	}
}

package engine

import (
	"time"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// Stats holds the engine counters since construction.
type Stats struct {
	// Accepted ticks that started a render.
	Accepted uint64 `json:"accepted"`

	// Skipped ticks: throttled, render in flight or lock busy.
	Skipped uint64 `json:"skipped"`

	// Renders completed, failed or not.
	Renders uint64 `json:"renders"`

	// Failures that disabled every group.
	Failures uint64 `json:"failures"`

	// LastRender is the duration of the most recent render.
	LastRender time.Duration `json:"last_render_ns"`

	// LastError is the most recent failure, empty if none.
	LastError string `json:"last_error,omitempty"`
}

// FrameStats describes one render pass.
type FrameStats struct {
	Time       time.Time
	Duration   time.Duration
	Devices    int
	Operations [len(device.DetailLevels)]int
	Failed     bool
}

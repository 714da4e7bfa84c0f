// Package pipeline composites shader operations into device buffers and
// presents them.
package pipeline

import (
	"fmt"

	"github.com/gogpu/gg"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/shader"
)

// Pipeline turns an operation list into device colours and presents them.
type Pipeline interface {
	// Process renders ops onto every device in devices at level and then
	// presents them. time is the engine time of the last accepted tick.
	Process(level device.DetailLevel, devices []device.Device, ops []shader.Operation, time float64) error
}

// Options configures a Compositor.
type Options struct {
	// PresentConcurrency bounds concurrent Present calls. Zero or one
	// presents devices sequentially.
	PresentConcurrency int
}

// Compositor is the default Pipeline.
//
// For each device it runs every operation bottom to top into a scratch
// buffer and blends the result over the device buffer:
//
//	BlendNone            dst = src (opaque)
//	BlendGlobalOpacity   dst = lerp(dst, src, opacity)
//	BlendPerPixelOpacity dst = lerp(dst, src, opacity * src.A)
//
// A device with no operations is painted black.
type Compositor struct {
	concurrency int
	scratch     []gg.RGBA
}

// NewCompositor creates a Compositor.
func NewCompositor(opts Options) *Compositor {
	if opts.PresentConcurrency < 1 {
		opts.PresentConcurrency = 1
	}
	return &Compositor{concurrency: opts.PresentConcurrency}
}

// Process implements Pipeline.
func (c *Compositor) Process(level device.DetailLevel, devices []device.Device, ops []shader.Operation, time float64) error {
	for _, d := range devices {
		c.composite(level, d, ops, time)
	}
	return c.present(devices)
}

func (c *Compositor) composite(level device.DetailLevel, d device.Device, ops []shader.Operation, time float64) {
	dst := d.Buffer()
	if len(ops) == 0 {
		for i := range dst {
			dst[i] = gg.Black
		}
		return
	}

	if cap(c.scratch) < len(dst) {
		c.scratch = make([]gg.RGBA, len(dst))
	}
	src := c.scratch[:len(dst)]
	frame := &shader.Frame{
		Device:    d,
		Fragments: d.Fragments(),
		Level:     level,
		Time:      time,
		Colors:    src,
	}

	for _, op := range ops {
		for i := range src {
			src[i] = gg.Transparent
		}
		op.Shader.Process(frame)
		Blend(dst, src, op.Blend, op.Opacity)
	}
}

func (c *Compositor) present(devices []device.Device) error {
	if c.concurrency == 1 {
		for _, d := range devices {
			if err := d.Present(); err != nil {
				return fmt.Errorf("%w: %w", ErrPresent, err)
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, d := range devices {
		g.Go(d.Present)
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", ErrPresent, err)
	}
	return nil
}

// Blend mixes src over dst in place according to mode. Results are opaque.
func Blend(dst, src []gg.RGBA, mode shader.BlendState, opacity float64) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		s := src[i]
		var out gg.RGBA
		switch mode {
		case shader.BlendNone:
			out = s
		case shader.BlendGlobalOpacity:
			out = dst[i].Lerp(s, opacity)
		case shader.BlendPerPixelOpacity:
			out = dst[i].Lerp(s, opacity*s.A)
		default:
			out = dst[i]
		}
		out.A = 1
		dst[i] = out
	}
}

package device

import (
	"fmt"
	"sync"

	"github.com/gogpu/gg"
)

// Device is one light-addressable surface owned by a device group.
//
// The pipeline writes Buffer() for every fragment and then calls Present()
// to push the colours to hardware or to a vendor protocol.
type Device interface {
	// Name returns a human-readable identifier, unique within its group.
	Name() string

	// Vendor returns the SDK or protocol family of the device.
	Vendor() Vendor

	// Type returns the device form factor.
	Type() Type

	// Fragments returns the ordered fragment coordinates the device covers.
	Fragments() []Fragment

	// LEDCount returns the number of fragments.
	LEDCount() int

	// ColorProfile returns the correction applied to colours before they leave the device.
	ColorProfile() ColorProfile

	// PreferredDetailLevel returns the detail level the device is rendered at.
	PreferredDetailLevel() DetailLevel

	// SetPreferredDetailLevel changes the detail level for subsequent renders.
	SetPreferredDetailLevel(level DetailLevel)

	// Buffer returns the mutable colour buffer, one entry per fragment.
	Buffer() []gg.RGBA

	// Present pushes the current buffer to the device.
	Present() error
}

// PresentFunc receives the profile-corrected colours of a Surface on Present.
type PresentFunc func(colors []gg.RGBA) error

// SurfaceConfig describes a Surface at construction time.
type SurfaceConfig struct {
	Name      string
	Vendor    Vendor
	Type      Type
	Fragments []Fragment
	Profile   ColorProfile
	Detail    DetailLevel
	Present   PresentFunc
}

// Surface is the reusable base for vendor devices.
//
// It owns the fragment layout and colour buffer and hands the profile
// corrected colours to a vendor supplied PresentFunc. Vendor adapters embed
// or wrap *Surface instead of reimplementing the bookkeeping.
type Surface struct {
	name      string
	vendor    Vendor
	kind      Type
	fragments []Fragment
	profile   ColorProfile
	present   PresentFunc

	mu     sync.RWMutex
	detail DetailLevel

	buffer    []gg.RGBA
	corrected []gg.RGBA
}

// NewSurface creates a Surface from cfg.
//
// Parameters:
//   - cfg: surface description; Fragments must be non-empty
//
// Returns:
//   - *Surface: surface with a black buffer
//   - error: ErrInvalidLayout if the layout is empty
func NewSurface(cfg SurfaceConfig) (*Surface, error) {
	if len(cfg.Fragments) == 0 {
		return nil, fmt.Errorf("%w: %s has no fragments", ErrInvalidLayout, cfg.Name)
	}

	frags := make([]Fragment, len(cfg.Fragments))
	copy(frags, cfg.Fragments)

	profile := cfg.Profile
	if profile.IsZero() {
		profile = IdentityProfile()
	}

	buf := make([]gg.RGBA, len(frags))
	for i := range buf {
		buf[i] = gg.Black
	}

	return &Surface{
		name:      cfg.Name,
		vendor:    cfg.Vendor,
		kind:      cfg.Type,
		fragments: frags,
		profile:   profile,
		present:   cfg.Present,
		detail:    cfg.Detail,
		buffer:    buf,
		corrected: make([]gg.RGBA, len(frags)),
	}, nil
}

// Name returns the surface name.
func (s *Surface) Name() string { return s.name }

// Vendor returns the surface vendor.
func (s *Surface) Vendor() Vendor { return s.vendor }

// Type returns the surface form factor.
func (s *Surface) Type() Type { return s.kind }

// Fragments returns a copy of the fragment layout.
func (s *Surface) Fragments() []Fragment {
	out := make([]Fragment, len(s.fragments))
	copy(out, s.fragments)
	return out
}

// LEDCount returns the number of fragments.
func (s *Surface) LEDCount() int { return len(s.fragments) }

// ColorProfile returns the colour correction profile.
func (s *Surface) ColorProfile() ColorProfile { return s.profile }

// PreferredDetailLevel returns the current detail level.
func (s *Surface) PreferredDetailLevel() DetailLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detail
}

// SetPreferredDetailLevel changes the detail level.
func (s *Surface) SetPreferredDetailLevel(level DetailLevel) {
	s.mu.Lock()
	s.detail = level
	s.mu.Unlock()
}

// Buffer returns the colour buffer. Callers write it in place.
func (s *Surface) Buffer() []gg.RGBA { return s.buffer }

// Present applies the colour profile and hands the result to the vendor.
// A Surface without a PresentFunc accepts every frame.
func (s *Surface) Present() error {
	if len(s.buffer) != len(s.fragments) {
		return fmt.Errorf("%w: %s has %d colours for %d fragments",
			ErrBufferSize, s.name, len(s.buffer), len(s.fragments))
	}
	if s.present == nil {
		return nil
	}
	for i, c := range s.buffer {
		s.corrected[i] = s.profile.Apply(c)
	}
	if err := s.present(s.corrected); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPresentFailed, s.name, err)
	}
	return nil
}

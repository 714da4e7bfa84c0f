// Package rules loads vendor special-rules documents.
//
// A rules document is a YAML file with one section per vendor adapter. The
// engine passes the parsed *Set to every enabled group through
// LoadSpecialRules; each adapter reads only its own section. A Watcher reloads
// the file when it changes.
//
// Example:
//
//	gamesense:
//	  game: GRAY_LOGIC_CHROMA
//	  critical: [keyboard]
//	  events:
//	    mouse: MOUSE_ZONES
//	chroma:
//	  detail:
//	    headset: low
//	serial:
//	  brightness: 0.6
//	  reverse: true
package rules

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
)

// Set is a parsed special-rules document.
type Set struct {
	GameSense GameSenseRules `yaml:"gamesense"`
	Chroma    ChromaRules    `yaml:"chroma"`
	Serial    SerialRules    `yaml:"serial"`
}

// GameSenseRules configures the protocol-backed adapter.
type GameSenseRules struct {
	// Game overrides the registered game name.
	Game string `yaml:"game"`

	// Critical names devices that are sent every tick instead of staggered.
	Critical []string `yaml:"critical"`

	// Events maps device names to event names.
	Events map[string]string `yaml:"events"`
}

// IsCritical reports whether the named device is listed as critical.
func (g GameSenseRules) IsCritical(name string) bool {
	return slices.Contains(g.Critical, name)
}

// ChromaRules configures the native-SDK-backed adapter.
type ChromaRules struct {
	// Detail maps device names to "low" or "high".
	Detail map[string]string `yaml:"detail"`
}

// DetailFor returns the detail level override for the named device.
func (c ChromaRules) DetailFor(name string) (device.DetailLevel, bool) {
	s, ok := c.Detail[name]
	if !ok {
		return device.DetailHigh, false
	}
	level, err := device.ParseDetailLevel(s)
	if err != nil {
		return device.DetailHigh, false
	}
	return level, true
}

// SerialRules configures the serial strip adapter.
type SerialRules struct {
	// Brightness scales every colour, 0..1. Zero means unchanged.
	Brightness float64 `yaml:"brightness"`

	// Reverse sends the LEDs in reverse order.
	Reverse bool `yaml:"reverse"`
}

// Parse decodes and validates a rules document.
//
// Parameters:
//   - data: YAML document
//
// Returns:
//   - *Set: parsed rules
//   - error: ErrInvalidRules on decode or validation failure
func Parse(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRules, err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Load reads and parses the rules file at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return Parse(data)
}

// Validate checks the document for values adapters cannot use.
func (s *Set) Validate() error {
	var errs []string

	for name, level := range s.Chroma.Detail {
		if _, err := device.ParseDetailLevel(level); err != nil || level == "" {
			errs = append(errs, fmt.Sprintf("chroma.detail.%s: must be low or high", name))
		}
	}
	if s.Serial.Brightness < 0 || s.Serial.Brightness > 1 {
		errs = append(errs, "serial.brightness: must be between 0 and 1")
	}
	for name, event := range s.GameSense.Events {
		if event == "" {
			errs = append(errs, fmt.Sprintf("gamesense.events.%s: empty event name", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRules, strings.Join(errs, "; "))
	}
	return nil
}

// ErrInvalidRules is returned for malformed rules documents.
var ErrInvalidRules = errors.New("rules: invalid document")

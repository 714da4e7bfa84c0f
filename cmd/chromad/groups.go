package main

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-chroma/internal/device"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-chroma/internal/vendors/chromasdk"
	"github.com/nerrad567/gray-logic-chroma/internal/vendors/gamesense"
	"github.com/nerrad567/gray-logic-chroma/internal/vendors/serialstrip"
	"github.com/nerrad567/gray-logic-chroma/internal/vendors/virtual"
)

// Group names as registered with the engine.
const (
	groupChromaSDK = "chromasdk"
	groupGameSense = "gamesense"
	groupSerial    = "serial"
	groupVirtual   = "virtual"
)

type groupDeps struct {
	logger  *logging.Logger
	mqtt    *mqtt.Client
	onEvent func(device.Event)
}

// buildGroups creates one lifecycle per enabled group section. Nothing is
// initialised until the engine enables the groups.
func buildGroups(cfg *config.Config, deps groupDeps) ([]*device.Lifecycle, error) {
	var groups []*device.Lifecycle
	lifecycle := func(name string, b device.Backend) *device.Lifecycle {
		return device.NewLifecycle(device.LifecycleOptions{
			Name:    name,
			Backend: b,
			Logger:  deps.logger.Group(name),
			OnEvent: deps.onEvent,
		})
	}

	if c := cfg.Groups.ChromaSDK; c.Enabled {
		b, err := chromaSDKBackend(c, deps.logger.Group(groupChromaSDK))
		if err != nil {
			return nil, err
		}
		groups = append(groups, lifecycle(groupChromaSDK, b))
	}

	if c := cfg.Groups.GameSense; c.Enabled {
		b, err := gameSenseBackend(c, deps)
		if err != nil {
			return nil, err
		}
		groups = append(groups, lifecycle(groupGameSense, b))
	}

	if c := cfg.Groups.Serial; c.Enabled {
		detail, err := device.ParseDetailLevel(c.Detail)
		if err != nil {
			return nil, fmt.Errorf("groups.serial: %w", err)
		}
		groups = append(groups, lifecycle(groupSerial, serialstrip.NewBackend(serialstrip.Config{
			Name:     c.Name,
			Port:     c.Port,
			VID:      c.VID,
			PID:      c.PID,
			BaudRate: c.BaudRate,
			LEDs:     c.LEDs,
			Origin:   device.Fragment{X: 0, Y: device.KeyboardRows},
			Detail:   detail,
			Profile:  profile(c.Profile),
			Logger:   deps.logger.Group(groupSerial),
		})))
	}

	if c := cfg.Groups.Virtual; c.Enabled {
		vc := virtual.Config{}
		for _, dc := range c.Devices {
			detail, err := device.ParseDetailLevel(dc.Detail)
			if err != nil {
				return nil, fmt.Errorf("groups.virtual.%s: %w", dc.Name, err)
			}
			vc.Devices = append(vc.Devices, virtual.DeviceConfig{
				Name:    dc.Name,
				Type:    device.Type(dc.Type),
				Origin:  device.Fragment{X: dc.X, Y: dc.Y},
				Detail:  detail,
				Profile: profile(dc.Profile),
			})
		}
		groups = append(groups, lifecycle(groupVirtual, virtual.NewBackend(vc)))
	}

	return groups, nil
}

func chromaSDKBackend(c config.ChromaSDKConfig, log *logging.Logger) (*chromasdk.Backend, error) {
	sdk := chromasdk.NewRESTSDK(chromasdk.RESTConfig{
		URL:       c.URL,
		App:       chromasdk.AppInfo{Title: c.Title, Description: "Gray Logic Chroma lighting daemon"},
		Heartbeat: time.Duration(c.HeartbeatMS) * time.Millisecond,
		Logger:    log,
	})

	specs := make([]chromasdk.DeviceSpec, 0, len(c.Devices))
	for _, dc := range c.Devices {
		kind, err := sdkKind(dc.Type)
		if err != nil {
			return nil, fmt.Errorf("groups.chromasdk.%s: %w", dc.Name, err)
		}
		detail, err := device.ParseDetailLevel(dc.Detail)
		if err != nil {
			return nil, fmt.Errorf("groups.chromasdk.%s: %w", dc.Name, err)
		}
		specs = append(specs, chromasdk.DeviceSpec{
			Kind:    kind,
			Name:    dc.Name,
			Origin:  device.Fragment{X: dc.X, Y: dc.Y},
			Detail:  detail,
			Profile: profile(dc.Profile),
		})
	}

	return chromasdk.NewBackend(chromasdk.Config{
		SDK:     sdk,
		Probe:   sdk.Probe,
		Devices: specs,
		Logger:  log,
	}), nil
}

func gameSenseBackend(c config.GameSenseConfig, deps groupDeps) (*gamesense.Backend, error) {
	log := deps.logger.Group(groupGameSense)

	var transport gamesense.Transport
	switch c.Transport {
	case config.TransportMQTT:
		if deps.mqtt == nil {
			return nil, fmt.Errorf("groups.gamesense: mqtt transport without an MQTT connection")
		}
		transport = gamesense.NewMQTTTransport(gamesense.MQTTConfig{
			Broker: deps.mqtt,
			Game:   c.Game,
		})
	default:
		transport = gamesense.NewWebSocketTransport(gamesense.WebSocketConfig{
			URL:    c.URL,
			Logger: log,
		})
	}

	specs := make([]gamesense.DeviceSpec, 0, len(c.Devices))
	for _, dc := range c.Devices {
		detail, err := device.ParseDetailLevel(dc.Detail)
		if err != nil {
			return nil, fmt.Errorf("groups.gamesense.%s: %w", dc.Name, err)
		}
		specs = append(specs, gamesense.DeviceSpec{
			Name:    dc.Name,
			Type:    device.Type(dc.Type),
			Origin:  device.Fragment{X: dc.X, Y: dc.Y},
			Detail:  detail,
			Profile: profile(dc.Profile),
		})
	}

	return gamesense.NewBackend(gamesense.Config{
		Transport:   transport,
		Game:        c.Game,
		DisplayName: c.DisplayName,
		Devices:     specs,
		Logger:      log,
	}), nil
}

// sdkKind maps a configured device type onto the SDK's device categories.
func sdkKind(t string) (chromasdk.DeviceKind, error) {
	switch device.Type(t) {
	case device.TypeKeyboard:
		return chromasdk.KindKeyboard, nil
	case device.TypeMouse:
		return chromasdk.KindMouse, nil
	case device.TypeHeadset:
		return chromasdk.KindHeadset, nil
	case device.TypeMousepad:
		return chromasdk.KindMousepad, nil
	case device.TypeKeypad:
		return chromasdk.KindKeypad, nil
	case device.TypeChromaLink:
		return chromasdk.KindChromaLink, nil
	default:
		return "", fmt.Errorf("device type %q has no SDK equivalent", t)
	}
}

// profile converts a configured correction. Unset gains mean 1.
func profile(p config.ProfileConfig) device.ColorProfile {
	if p == (config.ProfileConfig{}) {
		return device.ColorProfile{}
	}
	out := device.IdentityProfile()
	if p.Red > 0 {
		out.RedGain = p.Red
	}
	if p.Green > 0 {
		out.GreenGain = p.Green
	}
	if p.Blue > 0 {
		out.BlueGain = p.Blue
	}
	if p.Gamma > 0 {
		out.Gamma = p.Gamma
	}
	return out
}

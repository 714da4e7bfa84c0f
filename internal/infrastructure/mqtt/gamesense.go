package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// GameSenseKind selects the GameSense topic a document is published on.
type GameSenseKind uint8

const (
	// GameSenseRegistration is the game and event registration. It is
	// retained at the configured QoS so a relay started later still gets it.
	GameSenseRegistration GameSenseKind = iota + 1

	// GameSenseFrame is one frame event, sent at QoS 0 and not retained.
	GameSenseFrame
)

func (k GameSenseKind) String() string {
	switch k {
	case GameSenseRegistration:
		return "registration"
	case GameSenseFrame:
		return "frame"
	default:
		return fmt.Sprintf("GameSenseKind(%d)", uint8(k))
	}
}

// PublishGameSense sends a GameSense document for game to the relay.
//
// Parameters:
//   - game: GameSense game name, used in the topic
//   - kind: registration or frame
//   - payload: JSON document, at most maxPayloadSize bytes
//
// Returns:
//   - error: ErrNotConnected, ErrPayloadTooLarge or ErrPublishFailed
func (c *Client) PublishGameSense(game string, kind GameSenseKind, payload []byte) error {
	topic, d, err := c.gameSenseRoute(game, kind)
	if err != nil {
		return err
	}
	return c.publish(topic, d, payload)
}

func (c *Client) gameSenseRoute(game string, kind GameSenseKind) (string, delivery, error) {
	if game == "" {
		return "", delivery{}, fmt.Errorf("%w: empty game name", ErrPublishFailed)
	}
	switch kind {
	case GameSenseRegistration:
		return Topics{}.GameSenseRegister(game), delivery{qos: c.regQoS, retain: true}, nil
	case GameSenseFrame:
		return Topics{}.GameSenseEvent(game), frameDelivery, nil
	default:
		return "", delivery{}, fmt.Errorf("%w: unknown document %s", ErrPublishFailed, kind)
	}
}

// WatchRelay calls fn with the relay's presence on every announcement on
// chroma/gamesense/status, including the retained one at subscribe time.
func (c *Client) WatchRelay(fn func(online bool)) error {
	if fn == nil {
		return fmt.Errorf("%w: nil relay callback", ErrSubscribeFailed)
	}
	return c.subscribe(Topics{}.GameSenseStatus(), statusDelivery.qos, c.guard(func(msg pahomqtt.Message) error {
		fn(relayOnline(msg.Payload()))
		return nil
	}))
}

// UnwatchRelay stops relay presence delivery.
func (c *Client) UnwatchRelay() error {
	return c.unsubscribe(Topics{}.GameSenseStatus())
}

package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// FlagUpdate is one message received on chroma/state/<flag>.
type FlagUpdate struct {
	Flag    string
	Payload []byte

	// Replayed marks retained and redelivered messages. They repeat a value
	// already sent, so relative payloads such as "toggle" must not be
	// applied again.
	Replayed bool
}

// FlagHandler applies one flag update. A returned error is logged.
type FlagHandler func(FlagUpdate) error

// SubscribeFlags routes every chroma/state/<flag> message to handler at
// QoS 1. Retained values arrive first, flagged as replayed.
//
// Parameters:
//   - handler: called once per message, in arrival order
//
// Returns:
//   - error: ErrNotConnected, or ErrSubscribeFailed if the broker refuses
func (c *Client) SubscribeFlags(handler FlagHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil flag handler", ErrSubscribeFailed)
	}
	return c.subscribe(Topics{}.AllStateFlags(), stateDelivery.qos, c.guard(flagMessage(handler)))
}

// UnsubscribeFlags stops flag delivery.
func (c *Client) UnsubscribeFlags() error {
	return c.unsubscribe(Topics{}.AllStateFlags())
}

func flagMessage(handler FlagHandler) func(pahomqtt.Message) error {
	return func(msg pahomqtt.Message) error {
		name, ok := FlagName(msg.Topic())
		if !ok || strings.Contains(name, "/") {
			return fmt.Errorf("%w: %s", ErrUnexpectedTopic, msg.Topic())
		}
		return handler(FlagUpdate{
			Flag:     name,
			Payload:  msg.Payload(),
			Replayed: msg.Retained() || msg.Duplicate(),
		})
	}
}

package mqtt

import "fmt"

// Topic prefixes for the Chroma daemon.
//
// All topics use the scheme: chroma/{category}/{name}
const (
	// TopicPrefixState is the base for application-state flags.
	TopicPrefixState = "chroma/state"

	// TopicPrefixGameSense is the base for GameSense events carried over MQTT.
	TopicPrefixGameSense = "chroma/gamesense"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "chroma/system"
)

// Topics provides builders for Chroma MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	flag := topics.StateFlag("in_game")
//	// Returns: "chroma/state/in_game"
type Topics struct{}

// StateFlag returns the topic for a named application-state flag.
// Payloads are "on" or "off".
//
// Example: chroma/state/in_game
func (Topics) StateFlag(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixState, name)
}

// AllStateFlags returns a pattern matching every state flag.
//
// Pattern: chroma/state/+
func (Topics) AllStateFlags() string {
	return TopicPrefixState + "/+"
}

// GameSenseRegister returns the topic carrying event registrations for a game.
//
// Example: chroma/gamesense/GRAY_LOGIC_CHROMA/register
func (Topics) GameSenseRegister(game string) string {
	return fmt.Sprintf("%s/%s/register", TopicPrefixGameSense, game)
}

// GameSenseEvent returns the topic carrying frame events for a game.
//
// Example: chroma/gamesense/GRAY_LOGIC_CHROMA/event
func (Topics) GameSenseEvent(game string) string {
	return fmt.Sprintf("%s/%s/event", TopicPrefixGameSense, game)
}

// GameSenseStatus returns the retained topic a GameSense relay uses to
// announce whether it is attached to the vendor runtime.
//
// Example: chroma/gamesense/status
func (Topics) GameSenseStatus() string {
	return TopicPrefixGameSense + "/status"
}

// SystemStatus returns the topic for daemon online/offline status.
//
// Example: chroma/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// FlagName extracts the flag name from a state flag topic.
// It returns false for topics outside chroma/state/.
func FlagName(topic string) (string, bool) {
	prefix := TopicPrefixState + "/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}

package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/config"
)

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
	keepAlive        = 30 * time.Second

	// quiesceMillis is how long Disconnect lets queued work drain.
	quiesceMillis = 250

	// maxPayloadSize bounds outgoing GameSense documents.
	maxPayloadSize = 256 << 10
)

// delivery is the QoS and retain policy of one topic family.
type delivery struct {
	qos    byte
	retain bool
}

var (
	// Flags are published retained, so subscribing yields the current
	// application state before any live change.
	stateDelivery = delivery{qos: 1, retain: true}

	// Daemon and relay presence.
	statusDelivery = delivery{qos: 1, retain: true}

	// Frame events are superseded by the next frame.
	frameDelivery = delivery{qos: 0, retain: false}
)

// Presence values carried on the status topics.
const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// status is the JSON document on chroma/system/status. GameSense relays
// publish the same shape on chroma/gamesense/status.
type status struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	At       string `json:"timestamp,omitempty"`
}

func newStatus(clientID, state, reason string) []byte {
	b, _ := json.Marshal(status{ //nolint:errcheck // string fields only
		Status:   state,
		ClientID: clientID,
		Reason:   reason,
		At:       time.Now().UTC().Format(time.RFC3339),
	})
	return b
}

// relayOnline decodes a relay presence announcement: either a bare
// "online"/"offline" or a status document. An empty payload is the relay
// clearing its retained status and counts as offline.
func relayOnline(payload []byte) bool {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return false
	}
	if strings.HasPrefix(text, "{") {
		var s status
		if err := json.Unmarshal([]byte(text), &s); err == nil {
			text = s.Status
		}
	}
	return !strings.EqualFold(text, statusOffline)
}

// brokerURL returns the paho address for the configured broker.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// newOptions maps the daemon's MQTT section onto paho options. The will marks
// the daemon offline on chroma/system/status when the connection drops
// without Close.
func newOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(secondsOr(cfg.Reconnect.InitialDelay, time.Second)).
		SetMaxReconnectInterval(secondsOr(cfg.Reconnect.MaxDelay, time.Minute)).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetBinaryWill(Topics{}.SystemStatus(),
			newStatus(cfg.Broker.ClientID, statusOffline, "connection lost"),
			statusDelivery.qos, statusDelivery.retain)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// registrationQoS clamps the configured QoS to what MQTT allows.
func registrationQoS(q int) byte {
	return byte(min(max(q, 0), 2)) // #nosec G115 -- clamped to 0..2
}

// secondsOr converts a whole-second config value, falling back to def when unset.
func secondsOr(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

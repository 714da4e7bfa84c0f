package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker-backed tests need a running broker at 127.0.0.1:1883 and are
// skipped without one.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	client, err := Connect(testConfig(clientID), nil)
	if err != nil {
		t.Skipf("no MQTT broker available: %v", err)
	}
	return client
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectOrSkip(t, "chroma-test-connect")
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t, "chroma-test-close")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.PublishGameSense("G", GameSenseFrame, []byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishGameSense() error = %v, want ErrNotConnected", err)
	}
	if err := client.SubscribeFlags(func(FlagUpdate) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeFlags() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig("chroma-test-refused")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestFlagRoundtrip(t *testing.T) {
	pub := connectOrSkip(t, "chroma-test-pub")
	defer pub.Close()
	sub := connectOrSkip(t, "chroma-test-sub")
	defer sub.Close()

	var mu sync.Mutex
	got := make(map[string]FlagUpdate)
	done := make(chan struct{}, 4)

	err := sub.SubscribeFlags(func(u FlagUpdate) error {
		if len(u.Payload) == 0 {
			return nil
		}
		mu.Lock()
		got[u.Flag] = u
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeFlags() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	for flag, value := range map[string]string{"in_game": "on", "low_health": "off"} {
		pub.paho.Publish(Topics{}.StateFlag(flag), stateDelivery.qos, stateDelivery.retain, value).Wait()
	}
	defer func() {
		for _, flag := range []string{"in_game", "low_health"} {
			pub.paho.Publish(Topics{}.StateFlag(flag), 1, true, "").Wait()
		}
	}()

	for range 2 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for state flags")
		}
	}

	mu.Lock()
	if string(got["in_game"].Payload) != "on" || string(got["low_health"].Payload) != "off" {
		t.Errorf("received = %v", got)
	}
	if got["in_game"].Replayed {
		t.Error("live update marked as replayed")
	}
	mu.Unlock()

	// A late subscriber sees the retained value as a replay.
	late := connectOrSkip(t, "chroma-test-late")
	defer late.Close()
	replayed := make(chan FlagUpdate, 2)
	if err := late.SubscribeFlags(func(u FlagUpdate) error {
		if u.Flag == "in_game" && len(u.Payload) > 0 {
			replayed <- u
		}
		return nil
	}); err != nil {
		t.Fatalf("SubscribeFlags() error = %v", err)
	}
	select {
	case u := <-replayed:
		if !u.Replayed {
			t.Error("retained flag not marked as replayed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for retained flag")
	}

	if err := sub.UnsubscribeFlags(); err != nil {
		t.Errorf("UnsubscribeFlags() error = %v", err)
	}
}

func TestGameSenseRoundtrip(t *testing.T) {
	daemon := connectOrSkip(t, "chroma-test-daemon")
	defer daemon.Close()
	relay := connectOrSkip(t, "chroma-test-relay")
	defer relay.Close()

	events := make(chan string, 1)
	relay.paho.Subscribe(Topics{}.GameSenseEvent("G"), 0, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		events <- string(msg.Payload())
	}).Wait()

	presence := make(chan bool, 4)
	if err := daemon.WatchRelay(func(online bool) { presence <- online }); err != nil {
		t.Fatalf("WatchRelay() error = %v", err)
	}
	defer func() {
		relay.paho.Publish(Topics{}.GameSenseStatus(), 1, true, "").Wait()
	}()
	relay.paho.Publish(Topics{}.GameSenseStatus(), 1, true, `{"status":"offline"}`).Wait()

	deadline := time.After(5 * time.Second)
	for online := true; online; {
		select {
		case online = <-presence:
		case <-deadline:
			t.Fatal("timeout waiting for relay presence")
		}
	}

	if err := daemon.PublishGameSense("G", GameSenseFrame, []byte(`{"event":"FRAME"}`)); err != nil {
		t.Fatalf("PublishGameSense() error = %v", err)
	}
	select {
	case got := <-events:
		if got != `{"event":"FRAME"}` {
			t.Errorf("relay received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for frame event")
	}

	if err := daemon.UnwatchRelay(); err != nil {
		t.Errorf("UnwatchRelay() error = %v", err)
	}
}

// =============================================================================
// Routing Tests
// =============================================================================

func TestGameSenseRoute(t *testing.T) {
	c := &Client{regQoS: 2}

	tests := []struct {
		name      string
		game      string
		kind      GameSenseKind
		wantTopic string
		wantDel   delivery
		wantErr   bool
	}{
		{"registration", "G", GameSenseRegistration, "chroma/gamesense/G/register", delivery{qos: 2, retain: true}, false},
		{"frame", "G", GameSenseFrame, "chroma/gamesense/G/event", delivery{qos: 0, retain: false}, false},
		{"empty game", "", GameSenseFrame, "", delivery{}, true},
		{"unknown kind", "G", GameSenseKind(9), "", delivery{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			topic, d, err := c.gameSenseRoute(tt.game, tt.kind)
			if tt.wantErr {
				if !errors.Is(err, ErrPublishFailed) {
					t.Errorf("error = %v, want ErrPublishFailed", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if topic != tt.wantTopic || d != tt.wantDel {
				t.Errorf("route = %s %+v, want %s %+v", topic, d, tt.wantTopic, tt.wantDel)
			}
		})
	}
}

func TestPublishGameSense_Disconnected(t *testing.T) {
	c := &Client{}

	big := make([]byte, maxPayloadSize+1)
	if err := c.PublishGameSense("G", GameSenseRegistration, big); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized payload error = %v, want ErrPayloadTooLarge", err)
	}
	if err := c.PublishGameSense("G", GameSenseFrame, []byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishGameSense() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptions_Validation(t *testing.T) {
	c := &Client{routes: make(map[string]route)}

	if err := c.SubscribeFlags(nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("SubscribeFlags(nil) error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.WatchRelay(nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("WatchRelay(nil) error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.SubscribeFlags(func(FlagUpdate) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SubscribeFlags() error = %v, want ErrNotConnected", err)
	}
	if len(c.routes) != 0 {
		t.Errorf("routes = %v after failed subscribe", c.routes)
	}

	// Nothing registered, nothing to undo.
	if err := c.UnsubscribeFlags(); err != nil {
		t.Errorf("UnsubscribeFlags() error = %v", err)
	}
	if err := c.UnwatchRelay(); err != nil {
		t.Errorf("UnwatchRelay() error = %v", err)
	}
}

// =============================================================================
// Message Handling Tests
// =============================================================================

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info: " + msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn: " + msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error: " + msg) }

func (l *recordingLogger) add(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	l.mu.Unlock()
}

type fakeMessage struct {
	topic     string
	payload   []byte
	retained  bool
	duplicate bool
}

func (m fakeMessage) Duplicate() bool   { return m.duplicate }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return m.retained }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestFlagMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     fakeMessage
		want    FlagUpdate
		wantErr bool
	}{
		{"live", fakeMessage{topic: "chroma/state/in_game", payload: []byte("on")},
			FlagUpdate{Flag: "in_game", Payload: []byte("on")}, false},
		{"retained", fakeMessage{topic: "chroma/state/in_game", payload: []byte("toggle"), retained: true},
			FlagUpdate{Flag: "in_game", Payload: []byte("toggle"), Replayed: true}, false},
		{"redelivered", fakeMessage{topic: "chroma/state/menu", payload: []byte("off"), duplicate: true},
			FlagUpdate{Flag: "menu", Payload: []byte("off"), Replayed: true}, false},
		{"nested", fakeMessage{topic: "chroma/state/a/b", payload: []byte("on")}, FlagUpdate{}, true},
		{"foreign", fakeMessage{topic: "chroma/system/status", payload: []byte("on")}, FlagUpdate{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlagUpdate
			err := flagMessage(func(u FlagUpdate) error {
				got = u
				return nil
			})(tt.msg)
			if tt.wantErr {
				if !errors.Is(err, ErrUnexpectedTopic) {
					t.Errorf("error = %v, want ErrUnexpectedTopic", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Flag != tt.want.Flag || string(got.Payload) != string(tt.want.Payload) || got.Replayed != tt.want.Replayed {
				t.Errorf("update = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGuard_RecoversAndLogs(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{logger: logger}

	failing := c.guard(func(pahomqtt.Message) error { return errors.New("bad payload") })
	failing(nil, fakeMessage{topic: "chroma/state/x"})

	panicking := c.guard(func(pahomqtt.Message) error { panic("boom") })
	panicking(nil, fakeMessage{topic: "chroma/state/y"})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.lines) != 2 ||
		!strings.HasPrefix(logger.lines[0], "warn:") ||
		!strings.HasPrefix(logger.lines[1], "error:") {
		t.Errorf("log lines = %v", logger.lines)
	}
}

func TestRelayOnline(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{"online", true},
		{"OFFLINE\n", false},
		{`{"status":"online","client_id":"relay"}`, true},
		{`{"status":"offline","reason":"shutdown"}`, false},
		{"", false},
		{"attached", true},
	}
	for _, tt := range tests {
		if got := relayOnline([]byte(tt.payload)); got != tt.want {
			t.Errorf("relayOnline(%q) = %v, want %v", tt.payload, got, tt.want)
		}
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestNewOptions(t *testing.T) {
	cfg := testConfig("chroma-opts")
	cfg.Broker.TLS = true
	cfg.Auth.Username = "chroma"
	cfg.Auth.Password = "secret"

	opts := newOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "chroma-opts" || opts.Username != "chroma" || opts.TLSConfig == nil {
		t.Errorf("ClientID=%q Username=%q TLS=%v", opts.ClientID, opts.Username, opts.TLSConfig != nil)
	}
	if !opts.WillEnabled || opts.WillTopic != "chroma/system/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = %v %q retained=%v qos=%d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}

	var will status
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if will.Status != statusOffline || will.ClientID != "chroma-opts" || will.Reason == "" {
		t.Errorf("will = %+v", will)
	}
}

func TestRegistrationQoS(t *testing.T) {
	for in, want := range map[int]byte{-1: 0, 0: 0, 1: 1, 2: 2, 7: 2} {
		if got := registrationQoS(in); got != want {
			t.Errorf("registrationQoS(%d) = %d, want %d", in, got, want)
		}
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"StateFlag", Topics{}.StateFlag("in_game"), "chroma/state/in_game"},
		{"AllStateFlags", Topics{}.AllStateFlags(), "chroma/state/+"},
		{"GameSenseRegister", Topics{}.GameSenseRegister("G"), "chroma/gamesense/G/register"},
		{"GameSenseEvent", Topics{}.GameSenseEvent("G"), "chroma/gamesense/G/event"},
		{"GameSenseStatus", Topics{}.GameSenseStatus(), "chroma/gamesense/status"},
		{"SystemStatus", Topics{}.SystemStatus(), "chroma/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestFlagName(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"chroma/state/in_game", "in_game", true},
		{"chroma/state/", "", false},
		{"chroma/system/status", "", false},
		{"other/state/x", "", false},
	}
	for _, tt := range tests {
		got, ok := FlagName(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FlagName(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSecondsOr(t *testing.T) {
	if secondsOr(0, time.Minute) != time.Minute {
		t.Error("secondsOr(0) did not fall back")
	}
	if secondsOr(3, time.Minute) != 3*time.Second {
		t.Error("secondsOr(3) != 3s")
	}
}

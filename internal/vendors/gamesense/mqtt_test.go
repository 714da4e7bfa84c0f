package gamesense

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/mqtt"
)

type published struct {
	game    string
	kind    mqtt.GameSenseKind
	payload string
}

type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	published  []published
	relay      func(online bool)
	unwatched  int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true}
}

func (b *fakeBroker) PublishGameSense(game string, kind mqtt.GameSenseKind, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{game, kind, string(payload)})
	return nil
}

func (b *fakeBroker) WatchRelay(fn func(online bool)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = fn
	return nil
}

func (b *fakeBroker) UnwatchRelay() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = nil
	b.unwatched++
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) announce(t *testing.T, online bool) {
	t.Helper()
	b.mu.Lock()
	fn := b.relay
	b.mu.Unlock()
	if fn == nil {
		t.Fatal("relay status not watched")
	}
	fn(online)
}

func TestMQTTTransport_Documents(t *testing.T) {
	broker := newFakeBroker()
	tr := NewMQTTTransport(MQTTConfig{Broker: broker, Game: "MY_GAME"})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !tr.IsActive() {
		t.Fatal("IsActive() = false after Connect")
	}

	if err := tr.Register([]byte(`{"game":"MY_GAME"}`)); err != nil {
		t.Fatal(err)
	}
	if err := tr.SendEvent([]byte(`{"event":"E"}`)); err != nil {
		t.Fatal(err)
	}

	want := []published{
		{"MY_GAME", mqtt.GameSenseRegistration, `{"game":"MY_GAME"}`},
		{"MY_GAME", mqtt.GameSenseFrame, `{"event":"E"}`},
	}
	if len(broker.published) != len(want) {
		t.Fatalf("published = %+v", broker.published)
	}
	for i := range want {
		if broker.published[i] != want[i] {
			t.Errorf("published[%d] = %+v, want %+v", i, broker.published[i], want[i])
		}
	}
}

func TestMQTTTransport_ConnectWithoutBroker(t *testing.T) {
	broker := newFakeBroker()
	broker.connected = false
	tr := NewMQTTTransport(MQTTConfig{Broker: broker, Game: "G"})
	if err := tr.Connect(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Connect() error = %v, want mqtt.ErrNotConnected", err)
	}
}

func TestMQTTTransport_RelayStatus(t *testing.T) {
	broker := newFakeBroker()
	tr := NewMQTTTransport(MQTTConfig{Broker: broker, Game: "G"})

	var activations, deactivations int
	tr.SetOnActive(func() { activations++ })
	tr.SetOnInactive(func() { deactivations++ })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	broker.announce(t, false)
	if tr.IsActive() {
		t.Error("IsActive() = true with relay offline")
	}
	if err := tr.SendEvent([]byte(`{}`)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendEvent() error = %v, want ErrNotConnected", err)
	}

	broker.announce(t, true)
	if !tr.IsActive() {
		t.Error("IsActive() = false with relay online")
	}
	if activations != 2 || deactivations != 1 {
		t.Errorf("activations=%d deactivations=%d, want 2 and 1", activations, deactivations)
	}
}

func TestMQTTTransport_PublishFailure(t *testing.T) {
	broker := newFakeBroker()
	tr := NewMQTTTransport(MQTTConfig{Broker: broker, Game: "G"})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	broker.publishErr = errors.New("publish timeout")
	if err := tr.SendEvent([]byte(`{}`)); !errors.Is(err, ErrSendFailed) {
		t.Errorf("SendEvent() error = %v, want ErrSendFailed", err)
	}

	broker.mu.Lock()
	broker.connected = false
	broker.mu.Unlock()
	if tr.IsActive() {
		t.Error("IsActive() = true with broker disconnected")
	}
}

func TestMQTTTransport_Close(t *testing.T) {
	broker := newFakeBroker()
	tr := NewMQTTTransport(MQTTConfig{Broker: broker, Game: "G"})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if tr.IsActive() {
		t.Error("IsActive() = true after Close")
	}
	if broker.unwatched != 1 {
		t.Errorf("UnwatchRelay called %d times, want 1", broker.unwatched)
	}
}

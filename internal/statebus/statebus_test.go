package statebus

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-chroma/internal/infrastructure/mqtt"
)

type mockSubscriber struct {
	handler  mqtt.FlagHandler
	unsubbed int
	subErr   error
}

func newMockSubscriber() *mockSubscriber {
	return &mockSubscriber{}
}

func (m *mockSubscriber) SubscribeFlags(handler mqtt.FlagHandler) error {
	if m.subErr != nil {
		return m.subErr
	}
	m.handler = handler
	return nil
}

func (m *mockSubscriber) UnsubscribeFlags() error {
	m.handler = nil
	m.unsubbed++
	return nil
}

func (m *mockSubscriber) deliver(flag, payload string) error {
	return m.handler(mqtt.FlagUpdate{Flag: flag, Payload: []byte(payload)})
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"OFF", false, false},
		{" true\n", true, false},
		{"false", false, false},
		{"1", true, false},
		{"0", false, false},
		{`{"value": true}`, true, false},
		{`{"value": false}`, false, false},
		{`{"other": true}`, false, true},
		{`{broken`, false, true},
		{"maybe", false, true},
		{"", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := ParseValue([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("ParseValue(%q) error = %v, want ErrInvalidPayload", tt.payload, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseValue(%q) error = %v", tt.payload, err)
			}
			if got != tt.want {
				t.Errorf("ParseValue(%q) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestBus_MessagesDriveFlags(t *testing.T) {
	sub := newMockSubscriber()
	bus := New(sub, nil)

	// Registered before any message arrives.
	combat := bus.Flag("combat")
	if combat.IsActive() {
		t.Fatal("new flag is on")
	}

	if err := bus.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sub.deliver("combat", "on"); err != nil {
		t.Fatal(err)
	}
	if !combat.IsActive() {
		t.Error("combat flag not set by message")
	}

	if err := sub.deliver("low_health", `{"value": true}`); err != nil {
		t.Fatal(err)
	}
	if !bus.Flag("low_health").IsActive() {
		t.Error("flag created by message is off")
	}

	if err := sub.deliver("combat", "toggle"); err != nil {
		t.Fatal(err)
	}
	if combat.IsActive() {
		t.Error("toggle did not clear combat")
	}

	if got := bus.Names(); len(got) != 2 || got[0] != "combat" || got[1] != "low_health" {
		t.Errorf("Names() = %v", got)
	}
	if v := bus.Values(); v["combat"] || !v["low_health"] {
		t.Errorf("Values() = %v", v)
	}
	if bus.Received() != 3 {
		t.Errorf("Received() = %d, want 3", bus.Received())
	}
}

func TestBus_InvalidMessageKeepsValue(t *testing.T) {
	sub := newMockSubscriber()
	bus := New(sub, nil)
	if err := bus.Start(); err != nil {
		t.Fatal(err)
	}
	bus.Set("menu", true)

	if err := sub.deliver("menu", "perhaps"); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("handler error = %v, want ErrInvalidPayload", err)
	}
	if !bus.Flag("menu").IsActive() {
		t.Error("invalid message changed the flag")
	}
}

func TestBus_StartStop(t *testing.T) {
	sub := newMockSubscriber()
	bus := New(sub, nil)

	if err := bus.Start(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if err := bus.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Stop(); err != nil {
		t.Fatal(err)
	}
	if sub.unsubbed != 1 {
		t.Errorf("unsubscribed %d times, want 1", sub.unsubbed)
	}
}

func TestBus_StartErrors(t *testing.T) {
	if err := New(nil, nil).Start(); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() without client = %v", err)
	}

	sub := newMockSubscriber()
	sub.subErr = errors.New("not authorised")
	if err := New(sub, nil).Start(); err == nil {
		t.Error("Start() ignored subscribe failure")
	}
}

func TestBus_ReplayedToggleIgnored(t *testing.T) {
	sub := newMockSubscriber()
	bus := New(sub, nil)
	if err := bus.Start(); err != nil {
		t.Fatal(err)
	}

	// A retained absolute value is the current state and applies.
	if err := sub.handler(mqtt.FlagUpdate{Flag: "combat", Payload: []byte("on"), Replayed: true}); err != nil {
		t.Fatal(err)
	}
	if !bus.Flag("combat").IsActive() {
		t.Fatal("retained value not applied")
	}

	if err := sub.handler(mqtt.FlagUpdate{Flag: "combat", Payload: []byte("toggle"), Replayed: true}); err != nil {
		t.Fatal(err)
	}
	if !bus.Flag("combat").IsActive() {
		t.Error("replayed toggle flipped the flag")
	}

	if err := sub.deliver("combat", "toggle"); err != nil {
		t.Fatal(err)
	}
	if bus.Flag("combat").IsActive() {
		t.Error("live toggle did not flip the flag")
	}
	if bus.Received() != 2 {
		t.Errorf("Received() = %d, want 2", bus.Received())
	}
}

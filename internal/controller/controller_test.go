package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
)

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, published{topic, string(payload), qos, retained})
	return nil
}

func (m *mockPublisher) get() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.msgs...)
}

func mustDefinition(t *testing.T, controller, encoding string) *fan.DeviceDefinition {
	t.Helper()
	def, err := fan.ParseDefinition([]byte(`{
		"manufacturer": "Test",
		"supportedController": "` + controller + `",
		"commandsEncoding": "` + encoding + `",
		"speed": ["low", "high"],
		"commands": {"off": "OFF", "default": {"low": "LOW", "high": "HIGH"}}
	}`))
	if err != nil {
		t.Fatalf("ParseDefinition() error = %v", err)
	}
	return def
}

func TestCheckSupported(t *testing.T) {
	tests := []struct {
		name       string
		controller string
		encoding   string
		wantErr    error
	}{
		{"mqtt raw", "MQTT", "Raw", nil},
		{"case insensitive", "mqtt", "raw", nil},
		{"mqtt base64", "MQTT", "Base64", ErrUnsupportedEncoding},
		{"broadlink", "Broadlink", "Base64", ErrUnsupportedController},
		{"empty", "", "Raw", ErrUnsupportedController},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSupported(tt.controller, tt.encoding)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckSupported() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckSupported() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew(t *testing.T) {
	pub := &mockPublisher{}

	tr, err := New(mustDefinition(t, "MQTT", "Raw"), Options{Data: "home/ir/bedroom", Delay: time.Second, Publisher: pub})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	th, ok := tr.(*Throttle)
	if !ok {
		t.Fatalf("New() returned %T, want *Throttle", tr)
	}
	if th.Delay() != time.Second {
		t.Errorf("Delay() = %v, want 1s", th.Delay())
	}

	if _, err := New(mustDefinition(t, "MQTT", "Raw"), Options{Publisher: pub}); !errors.Is(err, ErrMissingTopic) {
		t.Errorf("New() without topic error = %v, want ErrMissingTopic", err)
	}
	if _, err := New(mustDefinition(t, "Xiaomi", "Pronto"), Options{Data: "x", Publisher: pub}); !errors.Is(err, ErrUnsupportedController) {
		t.Errorf("New() xiaomi error = %v, want ErrUnsupportedController", err)
	}
}

func TestNewSender(t *testing.T) {
	pub := &mockPublisher{}

	tr, err := NewSender(mustDefinition(t, "mqtt", "raw"), Options{Data: "home/ir/bedroom", Publisher: pub})
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}
	if _, ok := tr.(*MQTT); !ok {
		t.Fatalf("NewSender() returned %T, want *MQTT", tr)
	}
	if _, err := NewSender(mustDefinition(t, "MQTT", "Raw"), Options{Publisher: pub}); !errors.Is(err, ErrMissingTopic) {
		t.Errorf("NewSender() without topic error = %v, want ErrMissingTopic", err)
	}
}

func TestChannelKey(t *testing.T) {
	if ChannelKey("mqtt", "ir/shared") != ChannelKey("MQTT", "ir/shared") {
		t.Error("ChannelKey() should ignore controller case")
	}
	if ChannelKey("MQTT", "ir/a") == ChannelKey("MQTT", "ir/b") {
		t.Error("ChannelKey() should differ per topic")
	}
}

func TestMQTT_SendPublishesEachFrame(t *testing.T) {
	pub := &mockPublisher{}
	m, err := NewMQTT(pub, "home/ir/bedroom")
	if err != nil {
		t.Fatalf("NewMQTT() error = %v", err)
	}

	if err := m.Send(context.Background(), fan.Command{"A", "B"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := pub.get()
	if len(got) != 2 {
		t.Fatalf("published %d messages, want 2", len(got))
	}
	for i, want := range []string{"A", "B"} {
		if got[i].payload != want || got[i].topic != "home/ir/bedroom" {
			t.Errorf("message %d = %+v, want payload %q", i, got[i], want)
		}
		if got[i].qos != 1 || got[i].retained {
			t.Errorf("message %d qos=%d retained=%v, want qos 1 not retained", i, got[i].qos, got[i].retained)
		}
	}
}

func TestMQTT_PublishError(t *testing.T) {
	pub := &mockPublisher{err: errors.New("not connected")}
	m, _ := NewMQTT(pub, "t")
	if err := m.Send(context.Background(), fan.Command{"A"}); err == nil {
		t.Error("Send() expected error")
	}
}

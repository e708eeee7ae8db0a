package fan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const basicDefinitionJSON = `{
  "manufacturer": "Acme",
  "supportedModels": ["AF-3"],
  "supportedController": "MQTT",
  "commandsEncoding": "Raw",
  "speed": ["low", "medium", "high"],
  "commands": {
    "off": "OFF",
    "oscillate": "OSC",
    "default": {"low": "D-LOW", "medium": "D-MED", "high": "D-HIGH"}
  }
}`

const directionalDefinitionJSON = `{
  "manufacturer": "Acme",
  "supportedModels": ["AF-4D"],
  "supportedController": "MQTT",
  "commandsEncoding": "Raw",
  "speed": ["1", "2", "3", "4"],
  "commands": {
    "off": "OFF",
    "forward": {"1": "F1", "2": "F2", "3": "F3", "4": "F4"},
    "reverse": {"1": "R1", "2": "R2", "3": "R3", "4": ["R4a", "R4b"]}
  }
}`

func mustDefinition(t *testing.T, data string) *DeviceDefinition {
	t.Helper()
	def, err := ParseDefinition([]byte(data))
	if err != nil {
		t.Fatalf("ParseDefinition() error = %v", err)
	}
	return def
}

// mockTransport records sends and flags overlapping calls.
type mockTransport struct {
	mu       sync.Mutex
	sent     []Command
	err      error
	delay    time.Duration
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (m *mockTransport) Send(_ context.Context, cmd Command) error {
	if m.inFlight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inFlight.Add(-1)

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, cmd)
	return m.err
}

func (m *mockTransport) commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.sent...)
}

func (m *mockTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockTransport) last() Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

func newTestFan(t *testing.T, data string) (*Fan, *mockTransport) {
	t.Helper()
	tr := &mockTransport{}
	f, err := New(Options{
		ID:         "test-fan",
		Name:       "Test Fan",
		DeviceCode: 1000,
		Definition: mustDefinition(t, data),
		Transport:  tr,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f, tr
}

func assertCommand(t *testing.T, got Command, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("command = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command = %v, want %v", got, want)
		}
	}
}

var errBoom = errors.New("boom")

func intPtr(i int) *int { return &i }

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "irfan-test",
		},
		Auth: config.MQTTAuthConfig{Username: "bridge", Password: "secret"},
		QoS:  1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestBuildClientOptions(t *testing.T) {
	t.Run("plain tcp with auth", func(t *testing.T) {
		opts := buildClientOptions(testConfig())

		if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
			t.Errorf("Servers = %v", opts.Servers)
		}
		if opts.ClientID != "irfan-test" {
			t.Errorf("ClientID = %q", opts.ClientID)
		}
		if opts.Username != "bridge" || opts.Password != "secret" {
			t.Error("credentials not set")
		}
		if !opts.AutoReconnect || !opts.CleanSession {
			t.Error("auto-reconnect and clean session should be enabled")
		}
	})

	t.Run("tls", func(t *testing.T) {
		cfg := testConfig()
		cfg.Broker.TLS = true
		cfg.Broker.Port = 8883
		opts := buildClientOptions(cfg)

		if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
			t.Errorf("Servers = %v", opts.Servers)
		}
		if opts.TLSConfig == nil {
			t.Error("TLSConfig not set")
		}
	})
}

func TestStatusPayload(t *testing.T) {
	var msg map[string]string
	if err := json.Unmarshal(statusPayload("c1", statusOffline, "graceful_shutdown"), &msg); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if msg["status"] != "offline" || msg["client_id"] != "c1" || msg["reason"] != "graceful_shutdown" {
		t.Errorf("payload = %v", msg)
	}
	if msg["timestamp"] == "" {
		t.Error("timestamp missing")
	}

	if strings.Contains(string(statusPayload("c1", statusOnline, "")), "reason") {
		t.Error("empty reason should be omitted")
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish oversize", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, noop), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("t"), ErrNotConnected},
		{"health", c.HealthCheck(context.Background()), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.HasSubscription("t") {
		t.Error("failed subscribe must not be tracked")
	}
	if c.IsConnected() {
		t.Error("zero client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&Client{}).HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestDispatch_RecoversAndLogs(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("bad payload") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("rejected") }, "t", nil)

	var got []byte
	c.dispatch(func(_ string, p []byte) error { got = p; return nil }, "t", []byte("ok"))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 {
		t.Errorf("errors logged = %d, want 1 (panic)", len(logger.errors))
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings logged = %d, want 1 (handler error)", len(logger.warns))
	}
	if string(got) != "ok" {
		t.Errorf("payload = %q, want ok", got)
	}
}

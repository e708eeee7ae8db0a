package irfan

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/mqtt"
)

const testDefinitionJSON = `{
  "manufacturer": "Acme",
  "supportedModels": ["AF-3"],
  "supportedController": "MQTT",
  "commandsEncoding": "Raw",
  "speed": ["low", "medium", "high"],
  "commands": {
    "off": "OFF",
    "oscillate": "OSC",
    "forward": {"low": "F-LOW", "medium": "F-MED", "high": "F-HIGH"},
    "reverse": {"low": "R-LOW", "medium": "R-MED", "high": "R-HIGH"}
  }
}`

// Mock MQTT client

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	at       time.Time
}

type mockMQTT struct {
	mu        sync.Mutex
	published []publishedMessage
	handlers  map[string]mqtt.MessageHandler
	unsubbed  []string
	connected bool
	subErr    error
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{handlers: make(map[string]mqtt.MessageHandler), connected: true}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{topic, payload, qos, retained, time.Now()})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return m.subErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubbed = append(m.unsubbed, topic)
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", topic)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler(%s) error = %v", topic, err)
	}
}

func (m *mockMQTT) messages(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMessage
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockMQTT) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.handlers[topic]
	return ok
}

// Mock collaborators

type mockDefinitions struct {
	defs map[int]string
}

func (m *mockDefinitions) Load(_ context.Context, code int) (*fan.DeviceDefinition, error) {
	data, ok := m.defs[code]
	if !ok {
		return nil, errors.New("not found")
	}
	return fan.ParseDefinition([]byte(data))
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []fan.Command
}

func (r *recordingTransport) Send(_ context.Context, cmd fan.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, cmd)
	return nil
}

func (r *recordingTransport) commands() []fan.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fan.Command(nil), r.sent...)
}

type memoryRepository struct {
	mu     sync.Mutex
	states map[string]fan.State
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{states: make(map[string]fan.State)}
}

func (r *memoryRepository) LoadLast(_ context.Context, id string) (fan.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		return fan.State{}, fan.ErrStateNotFound
	}
	return st, nil
}

func (r *memoryRepository) Save(_ context.Context, id string, st fan.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[id] = st
	return nil
}

type recordedChange struct {
	snap   fan.Snapshot
	source fan.ChangeSource
}

type mockHistory struct {
	mu      sync.Mutex
	changes []recordedChange
}

func (h *mockHistory) Record(_ context.Context, snap fan.Snapshot, source fan.ChangeSource) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, recordedChange{snap, source})
	return nil
}

func (h *mockHistory) all() []recordedChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedChange(nil), h.changes...)
}

type mockMetrics struct {
	mu      sync.Mutex
	samples []influxdb.FanSample
}

func (m *mockMetrics) WriteFanState(s influxdb.FanSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

func (m *mockMetrics) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

type sinkFunc func(fan.Snapshot, fan.ChangeSource)

func (f sinkFunc) FanStateChanged(s fan.Snapshot, src fan.ChangeSource) { f(s, src) }

// Fixture

type fixture struct {
	bridge    *Bridge
	mqtt      *mockMQTT
	transport *recordingTransport
	repo      *memoryRepository
	history   *mockHistory
	metrics   *mockMetrics
}

func newFixture(t *testing.T, fans ...config.FanConfig) *fixture {
	t.Helper()

	fx := &fixture{
		mqtt:      newMockMQTT(),
		transport: &recordingTransport{},
		repo:      newMemoryRepository(),
		history:   &mockHistory{},
		metrics:   &mockMetrics{},
	}

	b, err := NewBridge(BridgeOptions{
		Fans:        fans,
		MQTTClient:  fx.mqtt,
		Definitions: &mockDefinitions{defs: map[int]string{1000: testDefinitionJSON}},
		Repository:  fx.repo,
		History:     fx.history,
		Metrics:     fx.metrics,
		Transports: func(*fan.DeviceDefinition, config.FanConfig) (fan.Transport, error) {
			return fx.transport, nil
		},
		HealthInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	fx.bridge = b
	return fx
}

func bedroomFan() config.FanConfig {
	return config.FanConfig{
		ID:             "bedroom",
		Name:           "Bedroom Fan",
		DeviceCode:     1000,
		ControllerData: "home/ir/bedroom",
		PowerSensor:    "home/plug/bedroom/power",
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func decodeAck(t *testing.T, msg publishedMessage) AckMessage {
	t.Helper()
	var ack AckMessage
	if err := json.Unmarshal(msg.payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

// Tests

func TestNewBridge_RequiresDependencies(t *testing.T) {
	if _, err := NewBridge(BridgeOptions{Definitions: &mockDefinitions{}}); err == nil {
		t.Error("NewBridge() without MQTT client should fail")
	}
	if _, err := NewBridge(BridgeOptions{MQTTClient: newMockMQTT()}); err == nil {
		t.Error("NewBridge() without definitions should fail")
	}
}

func TestBridge_StartSubscribesAndPublishesState(t *testing.T) {
	fx := newFixture(t, bedroomFan())
	if err := fx.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer fx.bridge.Stop()

	if !fx.mqtt.subscribed(mqtt.Topics{}.FanCommand("bedroom")) {
		t.Error("command topic not subscribed")
	}
	if !fx.mqtt.subscribed("home/plug/bedroom/power") {
		t.Error("power sensor not subscribed")
	}

	stateTopic := mqtt.Topics{}.FanState("bedroom")
	waitFor(t, "initial state", func() bool { return len(fx.mqtt.messages(stateTopic)) == 1 })

	msg := fx.mqtt.messages(stateTopic)[0]
	if !msg.retained {
		t.Error("state should be retained")
	}
	var state StateMessage
	if err := json.Unmarshal(msg.payload, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Source != fan.SourceRestore {
		t.Errorf("source = %q, want restore", state.Source)
	}
	if state.State.Speed != fan.SpeedOff {
		t.Errorf("speed = %q, want off", state.State.Speed)
	}
	if state.Attributes.Manufacturer != "Acme" || state.Attributes.SpeedCount != 3 || state.Attributes.DeviceCode != 1000 {
		t.Errorf("attributes = %+v", state.Attributes)
	}
	if len(fx.transport.commands()) != 0 {
		t.Error("start should not transmit")
	}
}

func TestBridge_RestoresAndPersists(t *testing.T) {
	fx := newFixture(t, bedroomFan())
	fx.repo.states["bedroom"] = fan.State{
		Speed:       fan.Speed("medium"),
		Direction:   fan.DirectionForward,
		LastOnSpeed: fan.Speed("medium"),
	}

	if err := fx.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	f, ok := fx.bridge.Fan("bedroom")
	if !ok {
		t.Fatal("Fan(bedroom) not found")
	}
	if st := f.State(); st.Speed != "medium" || st.Direction != fan.DirectionForward {
		t.Errorf("restored state = %+v", st)
	}

	fx.mqtt.deliver(t, mqtt.Topics{}.FanCommand("bedroom"), `{"id":"c1","command":"turn_off"}`)
	fx.bridge.Stop()

	saved := fx.repo.states["bedroom"]
	if saved.Speed != fan.SpeedOff || saved.LastOnSpeed != "medium" || saved.Direction != fan.DirectionForward {
		t.Errorf("persisted state = %+v", saved)
	}
	if len(fx.mqtt.unsubbed) != 2 {
		t.Errorf("unsubscribed %v, want command and sensor topics", fx.mqtt.unsubbed)
	}
}

func TestBridge_SetupFailureDoesNotStopOthers(t *testing.T) {
	broken := bedroomFan()
	broken.ID = "attic"
	broken.DeviceCode = 9999

	fx := newFixture(t, bedroomFan(), broken)
	if err := fx.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer fx.bridge.Stop()

	if _, ok := fx.bridge.Fan("attic"); ok {
		t.Error("attic should not be managed")
	}
	if _, ok := fx.bridge.SetupErrors()["attic"]; !ok {
		t.Error("attic setup error not reported")
	}
	if got := len(fx.bridge.Fans()); got != 1 {
		t.Errorf("Fans() = %d, want 1", got)
	}
	healthy, reason := fx.bridge.Healthy()
	if healthy || !strings.Contains(reason, "failed setup") {
		t.Errorf("Healthy() = %v, %q", healthy, reason)
	}
}

func TestBridge_StartFailsOnSubscribeError(t *testing.T) {
	fx := newFixture(t, bedroomFan())
	fx.mqtt.subErr = errors.New("broker gone")
	if err := fx.bridge.Start(context.Background()); err == nil {
		t.Error("Start() expected error")
	}
	fx.bridge.Stop()
}

func TestBridge_Commands(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus AckStatus
		wantCode   string
		wantSent   fan.Command
	}{
		{
			name:       "turn on resumes lowest",
			payload:    `{"id":"c1","command":"turn_on"}`,
			wantStatus: AckAccepted,
			wantSent:   fan.Command{"R-LOW"},
		},
		{
			name:       "turn on with percentage",
			payload:    `{"id":"c2","command":"turn_on","parameters":{"percentage":100}}`,
			wantStatus: AckAccepted,
			wantSent:   fan.Command{"R-HIGH"},
		},
		{
			name:       "set percentage",
			payload:    `{"id":"c3","command":"set_percentage","parameters":{"percentage":50}}`,
			wantStatus: AckAccepted,
			wantSent:   fan.Command{"R-MED"},
		},
		{
			name:       "oscillate",
			payload:    `{"id":"c4","command":"oscillate","parameters":{"oscillating":true}}`,
			wantStatus: AckAccepted,
			wantSent:   fan.Command{"OFF"},
		},
		{
			name:       "turn off",
			payload:    `{"id":"c5","command":"turn_off"}`,
			wantStatus: AckAccepted,
			wantSent:   fan.Command{"OFF"},
		},
		{
			name:       "percentage out of range",
			payload:    `{"id":"c6","command":"set_percentage","parameters":{"percentage":150}}`,
			wantStatus: AckFailed,
			wantCode:   ErrCodeInvalidParameters,
		},
		{
			name:       "percentage missing",
			payload:    `{"id":"c7","command":"set_percentage"}`,
			wantStatus: AckFailed,
			wantCode:   ErrCodeInvalidParameters,
		},
		{
			name:       "bad direction",
			payload:    `{"id":"c8","command":"set_direction","parameters":{"direction":"sideways"}}`,
			wantStatus: AckFailed,
			wantCode:   ErrCodeUnsupported,
		},
		{
			name:       "unknown command",
			payload:    `{"id":"c9","command":"explode"}`,
			wantStatus: AckFailed,
			wantCode:   ErrCodeInvalidCommand,
		},
		{
			name:       "malformed json",
			payload:    `{not json`,
			wantStatus: AckFailed,
			wantCode:   ErrCodeInvalidCommand,
		},
		{
			name:       "other fan in body",
			payload:    `{"id":"c10","fan_id":"garage","command":"turn_off"}`,
			wantStatus: AckFailed,
			wantCode:   ErrCodeInvalidCommand,
		},
		{
			name:       "matching fan in body",
			payload:    `{"id":"c11","fan_id":"bedroom","command":"turn_off"}`,
			wantStatus: AckAccepted,
			wantSent:   fan.Command{"OFF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, bedroomFan())
			if err := fx.bridge.Start(context.Background()); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			defer fx.bridge.Stop()

			fx.mqtt.deliver(t, mqtt.Topics{}.FanCommand("bedroom"), tt.payload)

			var acks []publishedMessage
			for _, id := range []string{"bedroom", "garage"} {
				acks = append(acks, fx.mqtt.messages(mqtt.Topics{}.FanAck(id))...)
			}
			if len(acks) != 1 {
				t.Fatalf("got %d acks, want 1", len(acks))
			}
			ack := decodeAck(t, acks[0])
			if ack.Status != tt.wantStatus {
				t.Errorf("ack status = %q, want %q", ack.Status, tt.wantStatus)
			}
			if ack.CommandID == "" {
				t.Error("ack has no command id")
			}
			if tt.wantCode != "" {
				if ack.Error == nil || ack.Error.Code != tt.wantCode {
					t.Errorf("ack error = %+v, want code %s", ack.Error, tt.wantCode)
				}
			}

			sent := fx.transport.commands()
			if tt.wantSent == nil {
				if len(sent) != 0 {
					t.Errorf("sent %v, want nothing", sent)
				}
				return
			}
			if len(sent) != 1 || strings.Join(sent[0], ",") != strings.Join(tt.wantSent, ",") {
				t.Errorf("sent %v, want [%v]", sent, tt.wantSent)
			}
		})
	}
}

func TestBridge_CommandTopicSelectsFan(t *testing.T) {
	lounge := bedroomFan()
	lounge.ID = "lounge"
	lounge.ControllerData = "home/ir/lounge"
	lounge.PowerSensor = ""

	fx := newFixture(t, bedroomFan(), lounge)
	if err := fx.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer fx.bridge.Stop()

	fx.mqtt.deliver(t, mqtt.Topics{}.FanCommand("lounge"), `{"id":"c1","fan_id":"bedroom","command":"turn_on"}`)

	if sent := fx.transport.commands(); len(sent) != 0 {
		t.Errorf("sent %v, want nothing", sent)
	}
	bedroom, _ := fx.bridge.Fan("bedroom")
	if bedroom.IsOn() {
		t.Error("bedroom fan was switched on through the lounge topic")
	}
	if n := len(fx.mqtt.messages(mqtt.Topics{}.FanAck("bedroom"))); n != 0 {
		t.Errorf("got %d acks for bedroom, want 0", n)
	}
	acks := fx.mqtt.messages(mqtt.Topics{}.FanAck("lounge"))
	if len(acks) != 1 {
		t.Fatalf("got %d acks for lounge, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.FanID != "lounge" || ack.Error == nil || ack.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack = %+v, want lounge %s", ack, ErrCodeInvalidCommand)
	}
}

func TestBridge_SharedChannelIsPaced(t *testing.T) {
	delay := 0.05
	shared := func(id string) config.FanConfig {
		return config.FanConfig{ID: id, DeviceCode: 1000, ControllerData: "ir/shared", Delay: &delay}
	}
	slower := 0.1
	other := shared("study")
	other.ControllerData = "ir/study"
	other.Delay = &slower

	mq := newMockMQTT()
	b, err := NewBridge(BridgeOptions{
		Fans:           []config.FanConfig{shared("a"), shared("b"), other},
		MQTTClient:     mq,
		Definitions:    &mockDefinitions{defs: map[int]string{1000: testDefinitionJSON}},
		HealthInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		f, ok := b.Fan(id)
		if !ok {
			t.Fatalf("fan %s not managed", id)
		}
		if err := f.SetPercentage(ctx, 50); err != nil {
			t.Fatalf("SetPercentage(%s) error = %v", id, err)
		}
	}

	sends := mq.messages("ir/shared")
	if len(sends) != 2 {
		t.Fatalf("got %d frames on ir/shared, want 2", len(sends))
	}
	if gap := sends[1].at.Sub(sends[0].at); gap < 50*time.Millisecond {
		t.Errorf("gap between fans on one channel = %v, want >= 50ms", gap)
	}

	b.throttlesMu.Lock()
	n := len(b.throttles)
	b.throttlesMu.Unlock()
	if n != 2 {
		t.Errorf("got %d throttles, want 2 (one per channel)", n)
	}
}

func TestChannelDelays(t *testing.T) {
	fast, slow := 0.2, 1.0
	got := channelDelays([]config.FanConfig{
		{ID: "a", ControllerData: "ir/shared", Delay: &fast},
		{ID: "b", ControllerData: "ir/shared", Delay: &slow},
		{ID: "c", ControllerData: "ir/own"},
	}, noopLogger{})

	tests := []struct {
		channel string
		want    time.Duration
	}{
		{"ir/shared", time.Second},
		{"ir/own", config.DefaultFanDelay},
	}
	for _, tt := range tests {
		if got[tt.channel] != tt.want {
			t.Errorf("channelDelays()[%s] = %v, want %v", tt.channel, got[tt.channel], tt.want)
		}
	}
}

func TestBridge_GeneratesCommandID(t *testing.T) {
	fx := newFixture(t, bedroomFan())
	if err := fx.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer fx.bridge.Stop()

	fx.mqtt.deliver(t, mqtt.Topics{}.FanCommand("bedroom"), `{"command":"turn_on"}`)

	acks := fx.mqtt.messages(mqtt.Topics{}.FanAck("bedroom"))
	if len(acks) != 1 {
		t.Fatalf("got %d acks, want 1", len(acks))
	}
	if id := decodeAck(t, acks[0]).CommandID; len(id) != 36 {
		t.Errorf("generated command id %q is not a uuid", id)
	}
}

func TestBridge_SensorReconciliation(t *testing.T) {
	fx := newFixture(t, bedroomFan())

	var (
		mu      sync.Mutex
		sources []fan.ChangeSource
	)
	fx.bridge.AddSink(sinkFunc(func(_ fan.Snapshot, src fan.ChangeSource) {
		mu.Lock()
		sources = append(sources, src)
		mu.Unlock()
	}))

	if err := fx.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sensor := "home/plug/bedroom/power"
	fx.mqtt.deliver(t, sensor, "ON")

	f, _ := fx.bridge.Fan("bedroom")
	st := f.CurrentState()
	if !st.On || !st.OnByRemote || st.Percentage != nil {
		t.Errorf("after sensor ON state = %+v, want on by remote with unknown percentage", st)
	}

	fx.mqtt.deliver(t, sensor, "unavailable")
	if !f.IsOn() {
		t.Error("unavailable reading should not change state")
	}

	fx.mqtt.deliver(t, sensor, `{"POWER":"OFF"}`)
	if f.IsOn() {
		t.Error("after sensor OFF fan should be off")
	}

	fx.bridge.Stop()

	if n := len(fx.transport.commands()); n != 0 {
		t.Errorf("sensor readings transmitted %d commands", n)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []fan.ChangeSource{fan.SourceRestore, fan.SourceSensor, fan.SourceSensor}
	if len(sources) != len(want) {
		t.Fatalf("sink saw %v, want %v", sources, want)
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Errorf("sink[%d] = %q, want %q", i, sources[i], want[i])
		}
	}

	if got := len(fx.history.all()); got != 3 {
		t.Errorf("history entries = %d, want 3", got)
	}
	if got := fx.metrics.count(); got != 3 {
		t.Errorf("metric samples = %d, want 3", got)
	}
	if got := fx.bridge.Statistics().SensorEvents; got != 3 {
		t.Errorf("SensorEvents = %d, want 3", got)
	}
}

func TestBridge_HistoryPreservesOrder(t *testing.T) {
	fx := newFixture(t, bedroomFan())
	if err := fx.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx := context.Background()
	for _, pct := range []int{33, 66, 100, 0} {
		if err := fx.bridge.Execute(ctx, "bedroom", CommandSetPercentage, map[string]any{"percentage": float64(pct)}); err != nil {
			t.Fatalf("Execute(%d) error = %v", pct, err)
		}
	}
	fx.bridge.Stop()

	changes := fx.history.all()
	wantSpeeds := []fan.Speed{fan.SpeedOff, "low", "medium", "high", fan.SpeedOff}
	if len(changes) != len(wantSpeeds) {
		t.Fatalf("history entries = %d, want %d", len(changes), len(wantSpeeds))
	}
	for i, want := range wantSpeeds {
		if changes[i].snap.Speed != want {
			t.Errorf("history[%d].Speed = %q, want %q", i, changes[i].snap.Speed, want)
		}
	}
}

func TestBridge_StopIsIdempotent(t *testing.T) {
	fx := newFixture(t, bedroomFan())
	if err := fx.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	fx.bridge.Stop()
	fx.bridge.Stop()

	health := fx.mqtt.messages(mqtt.Topics{}.BridgeHealth())
	if len(health) == 0 {
		t.Fatal("no health published")
	}
	var last HealthMessage
	if err := json.Unmarshal(health[len(health)-1].payload, &last); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("last health status = %q, want stopping", last.Status)
	}
}

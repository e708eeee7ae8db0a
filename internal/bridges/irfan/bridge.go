package irfan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-irfan/internal/controller"
	"github.com/nerrad567/gray-logic-irfan/internal/fan"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/mqtt"
)

const (
	// commandTimeout bounds a single MQTT command, including transport pacing.
	commandTimeout = 10 * time.Second

	// storeTimeout bounds repository reads and writes.
	storeTimeout = 5 * time.Second

	// eventBuffer is the capacity of the change notification queue.
	eventBuffer = 256
)

// MQTTClient is the interface for MQTT operations.
// *mqtt.Client satisfies it; tests use a mock.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// DefinitionSource loads device definitions by code. *codes.Source satisfies it.
type DefinitionSource interface {
	Load(ctx context.Context, code int) (*fan.DeviceDefinition, error)
}

// HistoryRecorder stores every change notification.
// *fan.SQLiteHistoryRepository satisfies it.
type HistoryRecorder interface {
	Record(ctx context.Context, snap fan.Snapshot, source fan.ChangeSource) error
}

// MetricsWriter receives a sample per state change. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteFanState(s influxdb.FanSample)
}

// StateSink is notified of every state change after it has been published.
// Calls come from the bridge's worker goroutine, in change order.
type StateSink interface {
	FanStateChanged(snap fan.Snapshot, source fan.ChangeSource)
}

// TransportFactory builds the transport for one fan.
type TransportFactory func(def *fan.DeviceDefinition, fc config.FanConfig) (fan.Transport, error)

// Logger is the logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Fans are the configured devices.
	Fans []config.FanConfig

	// MQTTClient carries commands, state, sensor readings and MQTT transports. Required.
	MQTTClient MQTTClient

	// Definitions loads device definitions. Required.
	Definitions DefinitionSource

	// Repository restores state on start and persists it on stop. Optional.
	Repository fan.Repository

	// History records every change. Optional.
	History HistoryRecorder

	// Metrics receives a sample per change. Optional.
	Metrics MetricsWriter

	// Transports overrides transport construction. Defaults to controller.New
	// publishing through MQTTClient.
	Transports TransportFactory

	// Logger is optional structured logger.
	Logger Logger

	// Version is reported in health messages.
	Version string

	// HealthInterval is how often health is published. Default: 30 seconds.
	HealthInterval time.Duration
}

// managedFan is a fan plus the wiring the bridge created for it.
type managedFan struct {
	cfg     config.FanConfig
	fan     *fan.Fan
	watcher *fan.Watcher
	info    fan.Info
	topics  []string
}

type stateEvent struct {
	snap   fan.Snapshot
	source fan.ChangeSource
}

// Bridge connects configured fans to MQTT, storage and metrics.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfgs        []config.FanConfig
	mqtt        MQTTClient
	definitions DefinitionSource
	repo        fan.Repository
	history     HistoryRecorder
	metrics     MetricsWriter
	transports  TransportFactory
	logger      Logger
	health      *HealthReporter

	fans      map[string]*managedFan
	setupErrs map[string]error
	fansMu    sync.RWMutex

	sinks   []StateSink
	sinksMu sync.RWMutex

	// Fans on the same controller channel share one throttle so the
	// minimum gap holds across all of them.
	throttles     map[string]*controller.Throttle
	throttlesMu   sync.Mutex
	channelDelays map[string]time.Duration

	events chan stateEvent

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	sensorEvents     atomic.Uint64
	stateChanges     atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
}

// NewBridge creates a new bridge instance. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Definitions == nil {
		return nil, fmt.Errorf("definition source is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfgs:        opts.Fans,
		mqtt:        opts.MQTTClient,
		definitions: opts.Definitions,
		repo:        opts.Repository,
		history:     opts.History,
		metrics:     opts.Metrics,
		transports:  opts.Transports,
		logger:      logger,
		fans:        make(map[string]*managedFan),
		setupErrs:   make(map[string]error),
		events:      make(chan stateEvent, eventBuffer),
		throttles:   make(map[string]*controller.Throttle),
		done:        make(chan struct{}),
		ctx:         ctx,
		ctxCancel:   ctxCancel,
	}
	if b.transports == nil {
		b.transports = b.mqttTransport
	}
	b.channelDelays = channelDelays(opts.Fans, logger)

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	b.health = newHealthReporter(opts.MQTTClient, b, version, opts.HealthInterval, logger)

	return b, nil
}

// mqttTransport is the default TransportFactory. Fans whose controller
// sends on the same channel get the same throttled transport.
func (b *Bridge) mqttTransport(def *fan.DeviceDefinition, fc config.FanConfig) (fan.Transport, error) {
	opts := controller.Options{
		Data:      fc.ControllerData,
		Publisher: b.mqtt,
	}
	sender, err := controller.NewSender(def, opts)
	if err != nil {
		return nil, err
	}

	key := controller.ChannelKey(def.SupportedController, fc.ControllerData)

	b.throttlesMu.Lock()
	defer b.throttlesMu.Unlock()
	if th, ok := b.throttles[key]; ok {
		return th, nil
	}

	delay, ok := b.channelDelays[fc.ControllerData]
	if !ok {
		delay = fc.DelayDuration()
	}
	th := controller.NewThrottle(sender, delay)
	b.throttles[key] = th
	return th, nil
}

// channelDelays returns the pacing delay for each controller channel: the
// largest delay configured by any fan sending on it.
func channelDelays(fans []config.FanConfig, logger Logger) map[string]time.Duration {
	delays := make(map[string]time.Duration, len(fans))
	for _, fc := range fans {
		d := fc.DelayDuration()
		prev, seen := delays[fc.ControllerData]
		if !seen {
			delays[fc.ControllerData] = d
			continue
		}
		if d != prev {
			logger.Warn("fans sharing a controller channel configure different delays, using the largest",
				"controller_data", fc.ControllerData, "fan_id", fc.ID, "delay", d, "other_delay", prev)
		}
		if d > prev {
			delays[fc.ControllerData] = d
		}
	}
	return delays
}

// AddSink registers a StateSink. Sinks added after Start miss earlier changes.
func (b *Bridge) AddSink(s StateSink) {
	b.sinksMu.Lock()
	b.sinks = append(b.sinks, s)
	b.sinksMu.Unlock()
}

// Start sets up every configured fan and begins processing.
//
// A fan whose definition cannot be loaded or whose transport cannot be
// built is skipped and reported in health; the others still start. Start
// only fails on MQTT subscription errors.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	b.wg.Add(1)
	go b.processEvents()

	for _, fc := range b.cfgs {
		mf, err := b.setupFan(ctx, fc)
		if err != nil {
			b.logger.Error("fan setup failed", "fan_id", fc.ID, "device_code", fc.DeviceCode, "error", err)
			b.fansMu.Lock()
			b.setupErrs[fc.ID] = err
			b.fansMu.Unlock()
			continue
		}

		b.fansMu.Lock()
		b.fans[fc.ID] = mf
		b.fansMu.Unlock()

		if err := b.subscribeFan(mf); err != nil {
			return err
		}

		b.enqueue(mf.fan.CurrentState(), fan.SourceRestore)

		b.logger.Info("fan ready",
			"fan_id", fc.ID,
			"manufacturer", mf.info.Manufacturer,
			"speeds", mf.info.SpeedCount,
			"direction", mf.info.SupportsDirection,
			"oscillation", mf.info.SupportsOscillation)
	}

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logger.Error("failed to publish health status", "error", err)
	}

	managed, failed := b.fanCounts()
	b.logger.Info("bridge started", "fans", managed, "failed", failed)
	return nil
}

// setupFan builds, restores and wires one fan. The fan is not yet visible
// to commands.
func (b *Bridge) setupFan(ctx context.Context, fc config.FanConfig) (*managedFan, error) {
	def, err := b.definitions.Load(ctx, fc.DeviceCode)
	if err != nil {
		return nil, fmt.Errorf("loading definition %d: %w", fc.DeviceCode, err)
	}

	transport, err := b.transports(def, fc)
	if err != nil {
		return nil, fmt.Errorf("building transport: %w", err)
	}

	f, err := fan.New(fan.Options{
		ID:         fc.ID,
		Name:       fc.DisplayName(),
		DeviceCode: fc.DeviceCode,
		Definition: def,
		Transport:  transport,
		Logger:     b.logger,
	})
	if err != nil {
		return nil, err
	}

	if b.repo != nil {
		loadCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		st, err := b.repo.LoadLast(loadCtx, fc.ID)
		cancel()
		switch {
		case err == nil:
			f.Restore(st)
			b.logger.Debug("fan state restored", "fan_id", fc.ID, "speed", st.Speed)
		case errors.Is(err, fan.ErrStateNotFound):
		default:
			b.logger.Warn("failed to load stored fan state, using defaults", "fan_id", fc.ID, "error", err)
		}
	}

	f.OnChange(b.enqueue)

	return &managedFan{
		cfg:     fc,
		fan:     f,
		watcher: fan.NewWatcher(f),
		info:    f.Info(),
	}, nil
}

func (b *Bridge) subscribeFan(mf *managedFan) error {
	id := mf.cfg.ID

	commandTopic := mqtt.Topics{}.FanCommand(id)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.commandHandler(id)); err != nil {
		return fmt.Errorf("subscribe to commands for %s: %w", id, err)
	}
	mf.topics = append(mf.topics, commandTopic)

	if mf.cfg.PowerSensor != "" {
		if err := b.mqtt.Subscribe(mf.cfg.PowerSensor, 1, b.sensorHandler(id)); err != nil {
			return fmt.Errorf("subscribe to power sensor for %s: %w", id, err)
		}
		mf.topics = append(mf.topics, mf.cfg.PowerSensor)
	}
	return nil
}

// Stop unsubscribes, drains pending notifications and persists every fan.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.fansMu.RLock()
		fans := make([]*managedFan, 0, len(b.fans))
		for _, mf := range b.fans {
			fans = append(fans, mf)
		}
		b.fansMu.RUnlock()

		for _, mf := range fans {
			for _, topic := range mf.topics {
				if err := b.mqtt.Unsubscribe(topic); err != nil {
					b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
				}
			}
		}

		// Cancel in-flight commands, then let the worker drain.
		b.ctxCancel()
		close(b.done)
		b.wg.Wait()

		for _, mf := range fans {
			b.persist(mf)
		}

		b.health.Stop()
		b.logger.Info("bridge stopped")
	})
}

func (b *Bridge) persist(mf *managedFan) {
	if b.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := b.repo.Save(ctx, mf.cfg.ID, mf.fan.State()); err != nil {
		b.logger.Error("failed to persist fan state", "fan_id", mf.cfg.ID, "error", err)
	}
}

// Fan returns a managed fan by id.
func (b *Bridge) Fan(id string) (*fan.Fan, bool) {
	b.fansMu.RLock()
	defer b.fansMu.RUnlock()
	mf, ok := b.fans[id]
	if !ok {
		return nil, false
	}
	return mf.fan, true
}

// Fans returns all managed fans ordered by id.
func (b *Bridge) Fans() []*fan.Fan {
	b.fansMu.RLock()
	out := make([]*fan.Fan, 0, len(b.fans))
	for _, mf := range b.fans {
		out = append(out, mf.fan)
	}
	b.fansMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SetupErrors returns the fans that failed setup and why.
func (b *Bridge) SetupErrors() map[string]error {
	b.fansMu.RLock()
	defer b.fansMu.RUnlock()
	out := make(map[string]error, len(b.setupErrs))
	for id, err := range b.setupErrs {
		out[id] = err
	}
	return out
}

// Execute runs a named command against a fan. It is the single entry point
// for MQTT commands.
func (b *Bridge) Execute(ctx context.Context, fanID, command string, params map[string]any) error {
	f, ok := b.Fan(fanID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrFanNotFound, fanID)
	}

	switch command {
	case CommandTurnOn:
		pct, has, err := percentageParam(params)
		if err != nil {
			return err
		}
		if !has {
			return f.TurnOn(ctx, nil)
		}
		return f.TurnOn(ctx, &pct)

	case CommandTurnOff:
		return f.TurnOff(ctx)

	case CommandSetPercentage:
		pct, has, err := percentageParam(params)
		if err != nil {
			return err
		}
		if !has {
			return fmt.Errorf("%w: missing 'percentage'", ErrInvalidParameters)
		}
		return f.SetPercentage(ctx, pct)

	case CommandOscillate:
		on, err := boolParam(params, "oscillating")
		if err != nil {
			return err
		}
		return f.Oscillate(ctx, on)

	case CommandSetDirection:
		dir, err := stringParam(params, "direction")
		if err != nil {
			return err
		}
		return f.SetDirection(ctx, fan.Direction(dir))

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func (b *Bridge) commandHandler(fanID string) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		b.handleCommand(fanID, payload)
		return nil
	}
}

// handleCommand processes a command message and publishes its ack.
func (b *Bridge) handleCommand(fanID string, payload []byte) {
	b.commandsReceived.Add(1)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.commandsFailed.Add(1)
		b.publishAck(NewAckError(CommandMessage{ID: uuid.NewString(), FanID: fanID},
			ErrCodeInvalidCommand, fmt.Sprintf("malformed command: %v", err)))
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.FanID != "" && cmd.FanID != fanID {
		b.commandsFailed.Add(1)
		named := cmd.FanID
		cmd.FanID = fanID
		b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand,
			fmt.Sprintf("command for %q received on the topic of %q", named, fanID)))
		return
	}
	cmd.FanID = fanID

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"fan_id", cmd.FanID,
		"command", cmd.Command,
		"source", cmd.Source)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.Execute(ctx, cmd.FanID, cmd.Command, cmd.Parameters); err != nil {
		b.commandsFailed.Add(1)
		b.logger.Warn("command failed", "command_id", cmd.ID, "fan_id", cmd.FanID, "error", err)
		b.publishAck(NewAckError(cmd, errorCode(err), err.Error()))
		return
	}

	b.publishAck(NewAckMessage(cmd, AckAccepted))
}

// errorCode maps an Execute error to an ack error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrFanNotFound):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, fan.ErrInvalidPercentage):
		return ErrCodeInvalidParameters
	case errors.Is(err, fan.ErrUnsupported):
		return ErrCodeUnsupported
	case errors.Is(err, fan.ErrDispatchFailed):
		return ErrCodeDispatchFailed
	default:
		return ErrCodeBridgeError
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.FanAck(ack.FanID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish ack", "error", err)
	}
}

func (b *Bridge) sensorHandler(fanID string) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		b.fansMu.RLock()
		mf, ok := b.fans[fanID]
		b.fansMu.RUnlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrFanNotFound, fanID)
		}

		b.sensorEvents.Add(1)
		mf.watcher.Handle(ParsePowerPayload(payload))
		return nil
	}
}

// enqueue is registered as every fan's listener. It runs under the fan's
// lock and must not call back into the fan.
func (b *Bridge) enqueue(snap fan.Snapshot, source fan.ChangeSource) {
	select {
	case b.events <- stateEvent{snap: snap, source: source}:
	case <-b.done:
		b.logger.Debug("bridge stopping, change not published", "fan_id", snap.FanID)
	}
}

// processEvents publishes queued changes until Stop, then drains the queue.
func (b *Bridge) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case ev := <-b.events:
			b.handleEvent(ev)
		case <-b.done:
			for {
				select {
				case ev := <-b.events:
					b.handleEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bridge) handleEvent(ev stateEvent) {
	b.stateChanges.Add(1)

	b.fansMu.RLock()
	mf, ok := b.fans[ev.snap.FanID]
	b.fansMu.RUnlock()

	var info fan.Info
	if ok {
		info = mf.info
	}

	payload, err := json.Marshal(NewStateMessage(info, ev.snap, ev.source))
	if err != nil {
		b.logger.Error("failed to marshal state", "error", err)
	} else if err := b.mqtt.Publish(mqtt.Topics{}.FanState(ev.snap.FanID), payload, 1, true); err != nil {
		b.logger.Error("failed to publish state", "fan_id", ev.snap.FanID, "error", err)
	}

	if b.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := b.history.Record(ctx, ev.snap, ev.source); err != nil {
			b.logger.Warn("failed to record state history", "fan_id", ev.snap.FanID, "error", err)
		}
		cancel()
	}

	if b.metrics != nil {
		b.metrics.WriteFanState(influxdb.FanSample{
			FanID:       ev.snap.FanID,
			Source:      string(ev.source),
			Speed:       string(ev.snap.Speed),
			On:          ev.snap.On,
			Percentage:  ev.snap.Percentage,
			Oscillating: ev.snap.Oscillating,
			Time:        ev.snap.UpdatedAt,
		})
	}

	b.sinksMu.RLock()
	sinks := append([]StateSink(nil), b.sinks...)
	b.sinksMu.RUnlock()
	for _, s := range sinks {
		s.FanStateChanged(ev.snap, ev.source)
	}
}

// fanCounts implements healthSource.
func (b *Bridge) fanCounts() (managed, failed int) {
	b.fansMu.RLock()
	defer b.fansMu.RUnlock()
	return len(b.fans), len(b.setupErrs)
}

// statistics implements healthSource.
func (b *Bridge) statistics() BridgeStatistics {
	return BridgeStatistics{
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
		SensorEvents:     b.sensorEvents.Load(),
		StateChanges:     b.stateChanges.Load(),
	}
}

// Statistics returns the bridge's operational counters.
func (b *Bridge) Statistics() BridgeStatistics {
	return b.statistics()
}

// Healthy reports whether MQTT is connected and every fan set up.
func (b *Bridge) Healthy() (bool, string) {
	status, reason := b.health.determineStatus()
	return status == HealthHealthy, reason
}

package irfan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the part of the MQTT client the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// healthSource supplies the figures for a health message.
type healthSource interface {
	fanCounts() (managed, failed int)
	statistics() BridgeStatistics
}

// HealthReporter publishes the bridge's health at a fixed interval.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	source    healthSource
	logger    Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newHealthReporter(pub HealthPublisher, src healthSource, version string, interval time.Duration, logger Logger) *HealthReporter {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		version:   version,
		startTime: time.Now(),
		interval:  interval,
		publisher: pub,
		source:    src,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if _, failed := h.source.fanCounts(); failed > 0 {
		return HealthDegraded, fmt.Sprintf("%d fan(s) failed setup", failed)
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	managed, failed := h.source.fanCounts()
	stats := h.source.statistics()
	return HealthMessage{
		Bridge:        mqtt.Protocol,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		FansManaged:   managed,
		FansFailed:    failed,
		Statistics:    &stats,
		Reason:        reason,
	}
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.BridgeHealth(), payload, 1, true)
}

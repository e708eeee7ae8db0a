package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
)

// Controller types accepted in a definition's supportedController.
const (
	TypeMQTT = "MQTT"
)

// Commands encodings.
const (
	EncodingRaw = "Raw"
)

// supportedEncodings lists the encodings each controller can send.
var supportedEncodings = map[string][]string{
	TypeMQTT: {EncodingRaw},
}

// Publisher is the part of the MQTT client the MQTT controller needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Options configures New.
type Options struct {
	// Data is the controller-specific address: the MQTT topic for MQTT.
	Data string

	// Delay is the minimum gap between transmissions on this channel.
	Delay time.Duration

	// Publisher carries MQTT frames. Required for MQTT.
	Publisher Publisher
}

// New returns the paced transport for def's controller.
//
// Returns:
//   - fan.Transport: Throttled transport ready for use
//   - error: ErrUnsupportedController, ErrUnsupportedEncoding or ErrMissingTopic
func New(def *fan.DeviceDefinition, opts Options) (fan.Transport, error) {
	next, err := NewSender(def, opts)
	if err != nil {
		return nil, err
	}
	return NewThrottle(next, opts.Delay), nil
}

// NewSender returns def's controller without pacing. Callers sharing one
// channel between several fans wrap it in a single Throttle.
func NewSender(def *fan.DeviceDefinition, opts Options) (fan.Transport, error) {
	if err := CheckSupported(def.SupportedController, def.CommandsEncoding); err != nil {
		return nil, err
	}

	switch strings.ToUpper(def.SupportedController) {
	case TypeMQTT:
		mc, err := NewMQTT(opts.Publisher, opts.Data)
		if err != nil {
			return nil, err
		}
		return mc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedController, def.SupportedController)
	}
}

// ChannelKey identifies the physical channel a controller sends on.
// Fans with equal keys must share one Throttle.
func ChannelKey(controller, data string) string {
	return strings.ToUpper(controller) + "|" + data
}

// CheckSupported reports whether controller can send encoding.
// Matching is case-insensitive.
func CheckSupported(controller, encoding string) error {
	for name, encodings := range supportedEncodings {
		if !strings.EqualFold(name, controller) {
			continue
		}
		for _, e := range encodings {
			if strings.EqualFold(e, encoding) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s cannot send %q", ErrUnsupportedEncoding, name, encoding)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedController, controller)
}

// MQTT publishes each frame of a command to one topic.
type MQTT struct {
	pub   Publisher
	topic string
}

// NewMQTT creates an MQTT controller publishing to topic.
func NewMQTT(pub Publisher, topic string) (*MQTT, error) {
	if pub == nil {
		return nil, fmt.Errorf("controller: mqtt publisher is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, ErrMissingTopic
	}
	return &MQTT{pub: pub, topic: topic}, nil
}

// Topic returns the topic frames are published to.
func (m *MQTT) Topic() string { return m.topic }

// Send publishes every frame in order without pacing. Throttle calls
// SendFrame instead so frames are spaced out.
func (m *MQTT) Send(ctx context.Context, cmd fan.Command) error {
	for _, frame := range cmd {
		if err := m.SendFrame(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

// SendFrame publishes one frame at QoS 1, not retained.
func (m *MQTT) SendFrame(ctx context.Context, frame string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.pub.Publish(m.topic, []byte(frame), 1, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", m.topic, err)
	}
	return nil
}

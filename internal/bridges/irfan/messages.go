package irfan

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/mqtt"
)

// Command names accepted on graylogic/command/irfan/{fan}.
const (
	CommandTurnOn        = "turn_on"
	CommandTurnOff       = "turn_off"
	CommandSetPercentage = "set_percentage"
	CommandOscillate     = "oscillate"
	CommandSetDirection  = "set_direction"
)

// CommandMessage is sent to the bridge to operate a fan.
//
// Examples:
//
//	{"id": "c1", "command": "turn_on"}
//	{"id": "c2", "command": "set_percentage", "parameters": {"percentage": 66}}
//	{"id": "c3", "command": "set_direction", "parameters": {"direction": "forward"}}
type CommandMessage struct {
	// ID correlates the command with its ack. Generated when empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// FanID is optional. The fan named in the topic is always used, and a
	// different value here rejects the command.
	FanID string `json:"fan_id"`

	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation", "scene").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted means the command was applied and handed to the transport.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the command was rejected or could not be resolved.
	AckFailed AckStatus = "failed"
)

// Error codes for failed acks.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeUnsupported       = "UNSUPPORTED"
	ErrCodeDispatchFailed    = "DISPATCH_FAILED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage is published to graylogic/ack/irfan/{fan}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	FanID     string    `json:"fan_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is published retained to graylogic/state/irfan/{fan}.
type StateMessage struct {
	FanID     string           `json:"fan_id"`
	Timestamp time.Time        `json:"timestamp"`
	State     fan.Snapshot     `json:"state"`
	Source    fan.ChangeSource `json:"source"`

	// Attributes describe the device the fan was set up with.
	Attributes fan.Info `json:"attributes"`

	Protocol string `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained to graylogic/health/irfan.
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	FansManaged   int               `json:"fans_managed"`
	FansFailed    int               `json:"fans_failed"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	SensorEvents     uint64 `json:"sensor_events"`
	StateChanges     uint64 `json:"state_changes"`
}

// NewAckMessage creates an acknowledgment for cmd.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		FanID:     cmd.FanID,
		Status:    status,
		Protocol:  mqtt.Protocol,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates the retained state message for a fan.
func NewStateMessage(info fan.Info, snap fan.Snapshot, source fan.ChangeSource) StateMessage {
	return StateMessage{
		FanID:      snap.FanID,
		Timestamp:  time.Now().UTC(),
		State:      snap,
		Source:     source,
		Attributes: info,
		Protocol:   mqtt.Protocol,
	}
}

// ParsePowerPayload interprets a power sensor message.
//
// Accepted forms are plain values (on/off, true/false, 1/0, any case) and
// JSON objects carrying one of those under "state", "power" or "POWER"
// (Tasmota). "unavailable", "unknown" and anything unrecognised are
// reported as fan.PowerAbsent.
func ParsePowerPayload(payload []byte) fan.PowerState {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return fan.PowerAbsent
		}
		for _, key := range []string{"state", "power", "POWER", "State"} {
			if v, ok := obj[key]; ok {
				return powerFromValue(v)
			}
		}
		return fan.PowerAbsent
	}
	return powerFromString(s)
}

func powerFromValue(v any) fan.PowerState {
	switch val := v.(type) {
	case bool:
		if val {
			return fan.PowerOn
		}
		return fan.PowerOff
	case float64:
		return powerFromString(fmt.Sprint(val))
	case string:
		return powerFromString(val)
	default:
		return fan.PowerAbsent
	}
}

func powerFromString(s string) fan.PowerState {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`)) {
	case "on", "true", "1":
		return fan.PowerOn
	case "off", "false", "0":
		return fan.PowerOff
	default:
		return fan.PowerAbsent
	}
}

// percentageParam reads an integer percentage. ok is false when absent.
func percentageParam(params map[string]any) (pct int, ok bool, err error) {
	v, found := params["percentage"]
	if !found || v == nil {
		return 0, false, nil
	}
	f, isNum := v.(float64)
	if !isNum {
		return 0, false, fmt.Errorf("%w: 'percentage' must be a number", ErrInvalidParameters)
	}
	if f != float64(int(f)) {
		return 0, false, fmt.Errorf("%w: 'percentage' must be a whole number", ErrInvalidParameters)
	}
	return int(f), true, nil
}

func boolParam(params map[string]any, key string) (bool, error) {
	v, ok := params[key].(bool)
	if !ok {
		return false, fmt.Errorf("%w: '%s' must be a boolean", ErrInvalidParameters, key)
	}
	return v, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: '%s' must be a non-empty string", ErrInvalidParameters, key)
	}
	return v, nil
}

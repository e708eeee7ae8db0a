package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Gray Logic topic.
const TopicPrefix = "graylogic"

// Protocol is the bridge name used in topic paths.
const Protocol = "irfan"

// Topics provides builders for the bridge's MQTT topics. The layout follows
// the flat bridge scheme graylogic/{category}/{protocol}/{id}:
//
//	graylogic/command/irfan/bedroom   commands in
//	graylogic/ack/irfan/bedroom       command acknowledgements out
//	graylogic/state/irfan/bedroom     retained state out
//	graylogic/health/irfan            bridge health (retained, LWT)
type Topics struct{}

// FanCommand returns the command topic for a fan.
func (Topics) FanCommand(fanID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, fanID)
}

// FanAck returns the acknowledgement topic for a fan.
func (Topics) FanAck(fanID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, fanID)
}

// FanState returns the retained state topic for a fan.
func (Topics) FanState(fanID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, fanID)
}

// BridgeHealth returns the bridge health topic.
func (Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// AllFanCommands matches every fan command topic.
func (Topics) AllFanCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// FanIDFromTopic extracts the fan id from a fan topic of the given category
// ("command", "ack", "state"). ok is false for anything else.
func FanIDFromTopic(topic, category string) (fanID string, ok bool) {
	prefix := fmt.Sprintf("%s/%s/%s/", TopicPrefix, category, Protocol)
	id, found := strings.CutPrefix(topic, prefix)
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

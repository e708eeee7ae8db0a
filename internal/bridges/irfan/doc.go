// Package irfan is the Gray Logic bridge for IR/RF controlled fans.
//
// It owns one fan.Fan per configured device and connects it to the rest of
// the system:
//
//	┌─────────────────┐   MQTT    ┌─────────────────┐   MQTT    ┌────────────┐
//	│ Core / API /    │──────────►│   irfan Bridge  │──────────►│ IR blaster │
//	│ HomeKit         │◄──────────│   (this pkg)    │◄──────────│ power plug │
//	└─────────────────┘   state   └─────────────────┘   sensor  └────────────┘
//
// # Lifecycle
//
// Start loads each fan's device definition, restores its last persisted
// state without transmitting, subscribes to its command and power sensor
// topics and publishes its retained state. Stop unsubscribes, drains
// pending change notifications and persists a final snapshot per fan.
//
// # Change Notifications
//
// Fans call their listeners while locked, so the bridge only queues the
// snapshot. A single worker goroutine publishes state, records history,
// writes metrics and fans out to registered StateSinks, in change order.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package irfan

// Package controller implements fan transports: the emitters that carry a
// resolved command to the physical fan.
//
// The only controller is MQTT, which publishes each raw frame to a topic an
// IR/RF blaster (Tasmota, OpenMQTTGateway, ESPHome) listens on. Every
// transport is wrapped in a Throttle so a channel never receives frames
// closer together than its configured delay.
package controller

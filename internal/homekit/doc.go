// Package homekit exposes managed fans as HomeKit accessories.
//
// Each fan becomes a Fan accessory behind a single HAP bridge. The FanV2
// service carries Active and RotationSpeed, plus RotationDirection and
// SwingMode when the device definition supports them. Writes from a Home
// app call the matching fan operation; state changes flow back through
// Server.FanStateChanged, which the fan bridge invokes as a state sink.
package homekit

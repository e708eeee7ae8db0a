// Package influxdb records fan state changes in InfluxDB v2.
//
// Every state change becomes a fan_state point tagged with the fan id and
// the change source, so on-time and remote usage can be charted. The
// integration is optional; Connect returns ErrDisabled when it is switched
// off in config.
package influxdb

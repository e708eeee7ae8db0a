// Package logging provides structured logging for the IR fan bridge.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and the same level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	fanLog := logger.Component("fan").With("fan_id", "bedroom")
//	fanLog.Info("speed changed", "speed", "medium")
//
// Raw IR/RF frames can be long; log the command key, never the frame.
package logging

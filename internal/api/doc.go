// Package api provides the HTTP REST API and WebSocket server for the fan bridge.
//
// It exposes the managed fans to user interfaces and automation:
//   - Fan listing with device attributes and current state
//   - Fan control (percentage, on/off, oscillation, direction)
//   - State change history from SQLite
//   - WebSocket hub pushing fan.state_changed events
//
// Mutating routes require an HS256 bearer token when security.jwt.secret
// is set.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

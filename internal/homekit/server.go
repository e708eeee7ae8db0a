package homekit

import (
	"context"
	"errors"
	"fmt"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/config"
)

// ErrDisabled is returned by New when HomeKit is turned off in config.
var ErrDisabled = errors.New("homekit disabled")

// Logger is the logging surface the accessory server needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Server publishes fans over HAP.
//
// Thread Safety: the accessory map is built once in New and only read
// afterwards, so FanStateChanged may run concurrently with HAP requests.
type Server struct {
	hap         *hap.Server
	bridge      *accessory.Bridge
	accessories map[string]*fanAccessory
	logger      Logger
}

// New creates the HAP server with one accessory per fan. Pairing data is
// kept under cfg.StoragePath.
//
// Returns:
//   - *Server: Ready to Run
//   - error: ErrDisabled when cfg.Enabled is false, or a HAP setup error
func New(cfg config.HomeKitConfig, fans []*fan.Fan, logger Logger) (*Server, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = noopLogger{}
	}

	s := &Server{
		accessories: make(map[string]*fanAccessory, len(fans)),
		logger:      logger,
	}

	name := cfg.BridgeName
	if name == "" {
		name = "Gray Logic Fans"
	}
	s.bridge = accessory.NewBridge(accessory.Info{
		Name:         name,
		Manufacturer: "Gray Logic",
		Model:        "IR/RF Fan Bridge",
	})

	accs := make([]*accessory.A, 0, len(fans))
	for _, f := range fans {
		a := newFanAccessory(f, logger)
		s.accessories[f.ID()] = a
		accs = append(accs, a.A)
	}

	srv, err := hap.NewServer(hap.NewFsStore(cfg.StoragePath), s.bridge.A, accs...)
	if err != nil {
		return nil, fmt.Errorf("creating HAP server: %w", err)
	}
	srv.Pin = cfg.Pin
	if cfg.Port > 0 {
		srv.Addr = fmt.Sprintf(":%d", cfg.Port)
	}
	s.hap = srv

	return s, nil
}

// Run serves HAP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("homekit server starting", "accessories", len(s.accessories))
	err := s.hap.ListenAndServe(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("homekit server: %w", err)
	}
	return nil
}

// FanStateChanged updates the accessory for snap.FanID. Unknown fans are ignored.
func (s *Server) FanStateChanged(snap fan.Snapshot, _ fan.ChangeSource) {
	a, ok := s.accessories[snap.FanID]
	if !ok {
		return
	}
	a.update(snap)
}

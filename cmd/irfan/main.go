// Gray Logic IR/RF fan bridge.
//
// irfan drives infrared and radio-frequency ceiling fans through MQTT-attached
// blasters. It loads one device definition per fan, tracks optimistic state,
// reconciles it with an optional power sensor, and exposes the fans over
// MQTT, a REST/WebSocket API and, optionally, HomeKit.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	haplog "github.com/brutella/hap/log"
	"github.com/urfave/cli/v2"

	_ "github.com/nerrad567/gray-logic-irfan/migrations"

	"github.com/nerrad567/gray-logic-irfan/internal/api"
	"github.com/nerrad567/gray-logic-irfan/internal/bridges/irfan"
	"github.com/nerrad567/gray-logic-irfan/internal/codes"
	"github.com/nerrad567/gray-logic-irfan/internal/fan"
	"github.com/nerrad567/gray-logic-irfan/internal/homekit"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-irfan/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// runOptions are the command-line inputs to run.
type runOptions struct {
	ConfigPath string
	Debug      bool
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "irfan",
		Usage:   "IR/RF fan bridge for Gray Logic",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"GRAYLOGIC_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging, including HomeKit protocol logs",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, runOptions{
				ConfigPath: c.String("config"),
				Debug:      c.Bool("debug"),
			})
		},
	}
}

// run wires every component and blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - opts: Config path and debug flag
//
// Returns:
//   - error: nil on clean shutdown, or the first startup failure
func run(ctx context.Context, opts runOptions) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic IR/RF fan bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.Debug {
		cfg.Logging.Level = "debug"
		haplog.Debug.Enable()
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", opts.ConfigPath,
		"fans", len(cfg.Fans),
		"level", cfg.Logging.Level,
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	stateRepo := fan.NewSQLiteRepository(db.DB)
	history := fan.NewSQLiteHistoryRepository(db.DB)
	pruneHistory(ctx, history, cfg.Database.HistoryRetentionDays, log)

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var metrics irfan.MetricsWriter
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metrics = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	definitions := codes.NewSource(codes.Options{
		Dir:         cfg.Codes.Dir,
		DownloadURL: cfg.Codes.DownloadURL,
		Timeout:     cfg.GetDownloadTimeout(),
		Logger:      log.Component("codes"),
	})

	bridge, err := irfan.NewBridge(irfan.BridgeOptions{
		Fans:        cfg.Fans,
		MQTTClient:  mqttClient,
		Definitions: definitions,
		Repository:  stateRepo,
		History:     history,
		Metrics:     metrics,
		Logger:      log.Component("irfan"),
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating fan bridge: %w", err)
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)
	bridge.AddSink(hub)

	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return fmt.Errorf("starting fan bridge: %w", err)
	}
	defer func() {
		log.Info("stopping fan bridge")
		bridge.Stop()
	}()

	if cfg.HomeKit.Enabled {
		hk, hkErr := homekit.New(cfg.HomeKit, bridge.Fans(), log.Component("homekit"))
		if hkErr != nil {
			return fmt.Errorf("creating HomeKit server: %w", hkErr)
		}
		bridge.AddSink(hk)
		go func() {
			if runErr := hk.Run(ctx); runErr != nil {
				log.Error("HomeKit server stopped", "error", runErr)
			}
		}()
	} else {
		log.Info("HomeKit disabled")
	}

	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Fans:     bridge,
		History:  history,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if healthy, reason := bridge.Healthy(); !healthy {
		log.Warn("fan bridge degraded", "reason", reason)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// pruneHistory drops history rows older than the retention window.
func pruneHistory(ctx context.Context, history *fan.SQLiteHistoryRepository, days int, log *logging.Logger) {
	if days <= 0 {
		return
	}
	n, err := history.Prune(ctx, time.Duration(days)*24*time.Hour)
	if err != nil {
		log.Warn("pruning state history failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("state history pruned", "rows", n, "retention_days", days)
	}
}

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

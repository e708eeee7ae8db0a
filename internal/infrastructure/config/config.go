package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the IR fan bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	HomeKit   HomeKitConfig   `yaml:"homekit"`
	Codes     CodesConfig     `yaml:"codes"`
	Fans      []FanConfig     `yaml:"fans"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays prunes older state history at startup. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT verification settings.
//
// An empty secret leaves the fan control routes unauthenticated, which is
// only intended for bench setups.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// HomeKitConfig contains settings for the optional HomeKit accessory server.
type HomeKitConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Pin         string `yaml:"pin"`
	StoragePath string `yaml:"storage_path"`
	BridgeName  string `yaml:"bridge_name"`

	// Port is the HAP listen port. 0 lets the server pick one.
	Port int `yaml:"port"`
}

// CodesConfig controls where device definitions (IR/RF code files) are found.
type CodesConfig struct {
	// Dir holds one JSON file per device code, e.g. codes/fan/1000.json.
	Dir string `yaml:"dir"`

	// DownloadURL is the base URL used when a code file is missing locally.
	// The file name "{code}.json" is appended. Empty disables downloading.
	DownloadURL string `yaml:"download_url"`

	// DownloadTimeout bounds a single download, in seconds.
	DownloadTimeout int `yaml:"download_timeout"`
}

// FanConfig describes one logical fan.
type FanConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	DeviceCode int    `yaml:"device_code"`

	// ControllerData is the controller-specific target; for the MQTT
	// controller it is the topic the IR/RF blaster listens on.
	ControllerData string `yaml:"controller_data"`

	// Delay is the minimum gap between two transmissions, in seconds.
	// Nil means the default of 0.5s.
	Delay *float64 `yaml:"delay"`

	// PowerSensor is an optional MQTT topic reporting the fan's real power state.
	PowerSensor string `yaml:"power_sensor"`
}

// DefaultFanName is used when a fan entry has no name.
const DefaultFanName = "SmartIR Fan"

// DefaultFanDelay is used when a fan entry has no delay.
const DefaultFanDelay = 500 * time.Millisecond

// DelayDuration returns the configured inter-command delay.
func (f FanConfig) DelayDuration() time.Duration {
	if f.Delay == nil {
		return DefaultFanDelay
	}
	return time.Duration(*f.Delay * float64(time.Second))
}

// DisplayName returns the fan name, falling back to DefaultFanName.
func (f FanConfig) DisplayName() string {
	if f.Name == "" {
		return DefaultFanName
	}
	return f.Name
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                 "./data/irfan.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-irfan",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		HomeKit: HomeKitConfig{
			StoragePath: "./data/homekit",
			BridgeName:  "Gray Logic Fans",
		},
		Codes: CodesConfig{
			Dir:             "./codes/fan",
			DownloadURL:     "https://raw.githubusercontent.com/smartHomeHub/SmartIR/master/codes/fan",
			DownloadTimeout: 15,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("GRAYLOGIC_HOMEKIT_PIN"); v != "" {
		cfg.HomeKit.Pin = v
	}

	if v := os.Getenv("GRAYLOGIC_CODES_DIR"); v != "" {
		cfg.Codes.Dir = v
	}
}

var homeKitPinPattern = regexp.MustCompile(`^\d{8}$`)

// Validate checks the configuration for errors.
//
// All problems are collected so that a broken config file can be fixed in
// one pass rather than one error at a time.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.HomeKit.Enabled {
		if !homeKitPinPattern.MatchString(c.HomeKit.Pin) {
			errs = append(errs, "homekit.pin must be exactly 8 digits")
		}
		if c.HomeKit.StoragePath == "" {
			errs = append(errs, "homekit.storage_path is required when homekit is enabled")
		}
		if c.HomeKit.Port < 0 || c.HomeKit.Port > 65535 {
			errs = append(errs, "homekit.port must be between 0 and 65535")
		}
	}

	if c.Codes.Dir == "" {
		errs = append(errs, "codes.dir is required")
	}

	errs = append(errs, validateFans(c.Fans)...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateFans(fans []FanConfig) []string {
	var errs []string
	seen := make(map[string]bool, len(fans))

	for i, f := range fans {
		prefix := fmt.Sprintf("fans[%d]", i)
		if f.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seen[f.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, f.ID))
		}
		seen[f.ID] = true

		if f.DeviceCode <= 0 {
			errs = append(errs, prefix+".device_code must be a positive integer")
		}
		if f.ControllerData == "" {
			errs = append(errs, prefix+".controller_data is required")
		}
		if f.Delay != nil && *f.Delay < 0 {
			errs = append(errs, prefix+".delay must not be negative")
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetDownloadTimeout returns the code download timeout as a Duration.
func (c *Config) GetDownloadTimeout() time.Duration {
	return time.Duration(c.Codes.DownloadTimeout) * time.Second
}

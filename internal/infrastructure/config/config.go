package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-node/internal/settings"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store capacity bounds in bytes.
const (
	minStoreCapacity = 64
	maxStoreCapacity = 64 * 1024
)

// Config is the root configuration structure for a Gray Logic node.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// These are host-level parameters. Runtime settings (broker, network
// credentials, prefixes) live in the settings store and are changed over
// the session.
type Config struct {
	Node         NodeConfig     `yaml:"node"`
	Defaults     DefaultsConfig `yaml:"defaults"`
	Store        StoreConfig    `yaml:"store"`
	Link         LinkConfig     `yaml:"link"`
	Session      SessionConfig  `yaml:"session"`
	Update       UpdateConfig   `yaml:"update"`
	Host         HostConfig     `yaml:"host"`
	TickInterval time.Duration  `yaml:"tick_interval"`
	InfluxDB     InfluxDBConfig `yaml:"influxdb"`
	Logging      LoggingConfig  `yaml:"logging"`
}

// NodeConfig identifies the node.
type NodeConfig struct {
	// App is the path-like application name; directory and extension are stripped.
	App string `yaml:"app"`

	// Version overrides the build version when set.
	Version string `yaml:"version"`

	// DeviceID overrides the hardware-derived id when set.
	DeviceID string `yaml:"device_id"`

	// Platform names the build target in firmware image paths.
	// Default: "linux-arm64"
	Platform string `yaml:"platform"`
}

// DefaultsConfig holds factory defaults reported for absent settings.
// They are never written to the store.
type DefaultsConfig struct {
	OTAHost  string `yaml:"otahost"`
	MQTTHost string `yaml:"mqtthost"`
	WiFiSSID string `yaml:"wifissid"`
	WiFiPass string `yaml:"wifipass"`
}

// StoreConfig selects the persistent store backing the settings.
type StoreConfig struct {
	// Backend is "file", "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is the file or database path. Unused by the memory backend.
	Path string `yaml:"path"`

	// Capacity is the size of the store in bytes.
	Capacity int64 `yaml:"capacity"`

	WALMode     bool `yaml:"wal_mode"`
	BusyTimeout int  `yaml:"busy_timeout"`
}

// LinkConfig contains link supervision settings.
type LinkConfig struct {
	// Interface is the host network interface carrying the link.
	// Default: "wlan0"
	Interface string `yaml:"interface"`

	// ScanInterval is the time between roaming scans.
	// Default: 5m
	ScanInterval time.Duration `yaml:"scan_interval"`

	// RoamMargin is how many dB stronger an access point must be to roam to it.
	// Default: 5
	RoamMargin int `yaml:"roam_margin"`

	// AssociateTimeout abandons a stalled association attempt.
	// Default: 15s
	AssociateTimeout time.Duration `yaml:"associate_timeout"`
}

// SessionConfig contains broker session settings.
type SessionConfig struct {
	QoS            int           `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keepalive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BackoffFloor   time.Duration `yaml:"backoff_floor"`
	BackoffCap     time.Duration `yaml:"backoff_cap"`
	FailoverAfter  time.Duration `yaml:"failover_after"`
	TeardownDelay  time.Duration `yaml:"teardown_delay"`
}

// UpdateConfig contains firmware update settings.
type UpdateConfig struct {
	// ImagePath is where a fetched image is staged for the next start.
	ImagePath string `yaml:"image_path"`

	// MaxImageSize is the space available for a staged image in bytes.
	MaxImageSize int64 `yaml:"max_image_size"`

	// Timeout bounds a single fetch.
	Timeout time.Duration `yaml:"timeout"`
}

// HostConfig describes how the host restarts and sleeps.
type HostConfig struct {
	// RestartCommand is run to restart. When empty the process exits with
	// RestartExitCode and the service manager restarts it.
	RestartCommand []string `yaml:"restart_command"`

	// RestartExitCode is the exit status used when no restart command is set.
	// Default: 75
	RestartExitCode int `yaml:"restart_exit_code"`

	// SleepCommand is run with the sleep duration in seconds appended.
	SleepCommand []string `yaml:"sleep_command"`
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

// Map returns the defaults keyed by setting tag, skipping empty entries.
func (d DefaultsConfig) Map() map[string]string {
	m := make(map[string]string, 4)
	for tag, v := range map[string]string{
		settings.TagOTAHost:  d.OTAHost,
		settings.TagMQTTHost: d.MQTTHost,
		settings.TagWiFiSSID: d.WiFiSSID,
		settings.TagWiFiPass: d.WiFiPass,
	} {
		if v != "" {
			m[tag] = v
		}
	}
	return m
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_NODE_SECTION_KEY
// For example: GRAYLOGIC_NODE_STORE_PATH, GRAYLOGIC_NODE_LOG_LEVEL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

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

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			App:      "graylogic-node",
			Platform: "linux-arm64",
		},
		Store: StoreConfig{
			Backend:     BackendFile,
			Path:        "./data/nvram.bin",
			Capacity:    4096,
			WALMode:     true,
			BusyTimeout: 5,
		},
		Link: LinkConfig{
			Interface:        "wlan0",
			ScanInterval:     5 * time.Minute,
			RoamMargin:       5,
			AssociateTimeout: 15 * time.Second,
		},
		Session: SessionConfig{
			QoS:            1,
			KeepAlive:      30 * time.Second,
			ConnectTimeout: 10 * time.Second,
			BackoffFloor:   time.Second,
			BackoffCap:     30 * time.Second,
			FailoverAfter:  2 * time.Minute,
			TeardownDelay:  100 * time.Millisecond,
		},
		Update: UpdateConfig{
			ImagePath:    "./data/staged.bin",
			MaxImageSize: 16 << 20,
			Timeout:      5 * time.Minute,
		},
		Host: HostConfig{
			RestartExitCode: 75,
		},
		TickInterval: 100 * time.Millisecond,
		InfluxDB: InfluxDBConfig{
			Org:           "graylogic",
			Bucket:        "nodes",
			BatchSize:     20,
			FlushInterval: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_NODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_NODE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_DEVICE_ID"); v != "" {
		cfg.Node.DeviceID = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_MQTT_HOST"); v != "" {
		cfg.Defaults.MQTTHost = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("GRAYLOGIC_NODE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Node.App == "" {
		errs = append(errs, "node.app is required")
	}
	if c.Node.Platform == "" {
		errs = append(errs, "node.platform is required")
	}

	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required (set GRAYLOGIC_NODE_STORE_PATH environment variable)")
		}
	case BackendMemory:
	default:
		errs = append(errs, "store.backend must be file, sqlite or memory")
	}
	if c.Store.Capacity < minStoreCapacity || c.Store.Capacity > maxStoreCapacity {
		errs = append(errs, fmt.Sprintf("store.capacity must be between %d and %d", minStoreCapacity, maxStoreCapacity))
	}

	if c.Link.Interface == "" {
		errs = append(errs, "link.interface is required")
	}
	if c.Link.RoamMargin < 0 {
		errs = append(errs, "link.roam_margin must not be negative")
	}

	if c.Session.QoS < 0 || c.Session.QoS > 2 {
		errs = append(errs, "session.qos must be 0, 1, or 2")
	}
	if c.Session.BackoffFloor <= 0 {
		errs = append(errs, "session.backoff_floor must be positive")
	}
	if c.Session.BackoffCap < c.Session.BackoffFloor {
		errs = append(errs, "session.backoff_cap must not be below session.backoff_floor")
	}

	if c.Update.MaxImageSize <= 0 {
		errs = append(errs, "update.max_image_size must be positive")
	}

	if c.TickInterval <= 0 || c.TickInterval > time.Second {
		errs = append(errs, "tick_interval must be between 1ns and 1s")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

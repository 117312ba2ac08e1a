package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
node:
  app: "/usr/bin/Thermo.bin"
  device_id: "GL-0042"
  platform: "linux-armv7"
defaults:
  mqtthost: "broker.lan"
  wifissid: "site"
store:
  backend: "sqlite"
  path: "/tmp/nvram.db"
  capacity: 2048
link:
  interface: "wlan0"
  scan_interval: "2m"
session:
  qos: 0
  backoff_cap: "1m"
tick_interval: "50ms"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.App != "/usr/bin/Thermo.bin" {
		t.Errorf("Node.App = %q, want %q", cfg.Node.App, "/usr/bin/Thermo.bin")
	}
	if cfg.Node.DeviceID != "GL-0042" {
		t.Errorf("Node.DeviceID = %q, want %q", cfg.Node.DeviceID, "GL-0042")
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendSQLite)
	}
	if cfg.Store.Capacity != 2048 {
		t.Errorf("Store.Capacity = %d, want 2048", cfg.Store.Capacity)
	}
	if cfg.Link.ScanInterval != 2*time.Minute {
		t.Errorf("Link.ScanInterval = %v, want 2m", cfg.Link.ScanInterval)
	}
	if cfg.Session.QoS != 0 {
		t.Errorf("Session.QoS = %d, want 0", cfg.Session.QoS)
	}
	if cfg.Session.BackoffCap != time.Minute {
		t.Errorf("Session.BackoffCap = %v, want 1m", cfg.Session.BackoffCap)
	}
	if cfg.TickInterval != 50*time.Millisecond {
		t.Errorf("TickInterval = %v, want 50ms", cfg.TickInterval)
	}

	// Unset fields keep their defaults.
	if cfg.Link.RoamMargin != 5 {
		t.Errorf("Link.RoamMargin = %d, want 5", cfg.Link.RoamMargin)
	}
	if cfg.Session.FailoverAfter != 2*time.Minute {
		t.Errorf("Session.FailoverAfter = %v, want 2m", cfg.Session.FailoverAfter)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/node.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
store:
  backend: "tape"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for unknown backend, got nil")
	}
	if !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("error = %v, want mention of store.backend", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:   "memory backend needs no path",
			mutate: func(c *Config) { c.Store.Backend = BackendMemory; c.Store.Path = "" },
		},
		{
			name:    "missing app",
			mutate:  func(c *Config) { c.Node.App = "" },
			wantErr: "node.app",
		},
		{
			name:    "missing platform",
			mutate:  func(c *Config) { c.Node.Platform = "" },
			wantErr: "node.platform",
		},
		{
			name:    "missing store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store.path",
		},
		{
			name:    "capacity too small",
			mutate:  func(c *Config) { c.Store.Capacity = 16 },
			wantErr: "store.capacity",
		},
		{
			name:    "missing link interface",
			mutate:  func(c *Config) { c.Link.Interface = "" },
			wantErr: "link.interface",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.Session.QoS = 3 },
			wantErr: "session.qos",
		},
		{
			name:    "cap below floor",
			mutate:  func(c *Config) { c.Session.BackoffCap = 500 * time.Millisecond },
			wantErr: "session.backoff_cap",
		},
		{
			name:    "tick interval too long",
			mutate:  func(c *Config) { c.TickInterval = 2 * time.Second },
			wantErr: "tick_interval",
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Node.App = ""
	cfg.Session.QoS = 7

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	for _, want := range []string{"node.app", "session.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("GRAYLOGIC_NODE_STORE_PATH", "/custom/nvram.bin")
	t.Setenv("GRAYLOGIC_NODE_DEVICE_ID", "GL-7")
	t.Setenv("GRAYLOGIC_NODE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_NODE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_NODE_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Store.Path != "/custom/nvram.bin" {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, "/custom/nvram.bin")
	}
	if cfg.Node.DeviceID != "GL-7" {
		t.Errorf("Node.DeviceID = %q, want %q", cfg.Node.DeviceID, "GL-7")
	}
	if cfg.Defaults.MQTTHost != "mqtt.example.com" {
		t.Errorf("Defaults.MQTTHost = %q, want %q", cfg.Defaults.MQTTHost, "mqtt.example.com")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultsConfig_Map(t *testing.T) {
	d := DefaultsConfig{OTAHost: "ota.lan", WiFiSSID: "site"}
	m := d.Map()

	if len(m) != 2 {
		t.Fatalf("Map() has %d entries, want 2: %v", len(m), m)
	}
	if m["otahost"] != "ota.lan" {
		t.Errorf(`m["otahost"] = %q, want "ota.lan"`, m["otahost"])
	}
	if m["wifissid"] != "site" {
		t.Errorf(`m["wifissid"] = %q, want "site"`, m["wifissid"])
	}
	if _, ok := m["mqtthost"]; ok {
		t.Error("empty mqtthost should be omitted")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Store.Backend != BackendFile {
		t.Errorf("Default Store.Backend = %q, want %q", cfg.Store.Backend, BackendFile)
	}
	if cfg.Link.AssociateTimeout != 15*time.Second {
		t.Errorf("Default Link.AssociateTimeout = %v, want 15s", cfg.Link.AssociateTimeout)
	}
	if cfg.Session.BackoffFloor != time.Second {
		t.Errorf("Default Session.BackoffFloor = %v, want 1s", cfg.Session.BackoffFloor)
	}
	if cfg.Host.RestartExitCode != 75 {
		t.Errorf("Default Host.RestartExitCode = %d, want 75", cfg.Host.RestartExitCode)
	}
}

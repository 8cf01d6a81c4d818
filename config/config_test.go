package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// validServerConfig returns a minimal valid server configuration.
func validServerConfig() ServerConfig {
	return ServerConfig{
		MQTT:       MQTTConfig{URL: "mqtt://127.0.0.1:1883"},
		ServerID:   "S1",
		ServerName: "demo/calc",
		Name:       "Calc",
		Version:    "1.0.0",
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestServerConfigValidate(t *testing.T) {
	cfg := validServerConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.MQTT.KeepAlive != DefaultKeepAlive {
		t.Errorf("KeepAlive = %v, want %v", cfg.MQTT.KeepAlive, DefaultKeepAlive)
	}
	if cfg.MQTT.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", cfg.MQTT.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.MQTT.ReconnectPeriod != DefaultReconnectPeriod {
		t.Errorf("ReconnectPeriod = %v, want %v", cfg.MQTT.ReconnectPeriod, DefaultReconnectPeriod)
	}
}

func TestServerConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		field  string
	}{
		{"missing url", func(c *ServerConfig) { c.MQTT.URL = "" }, "mqtt.url"},
		{"missing server id", func(c *ServerConfig) { c.ServerID = "" }, "server_id"},
		{"wildcard in server id", func(c *ServerConfig) { c.ServerID = "s#1" }, "server_id"},
		{"missing server name", func(c *ServerConfig) { c.ServerName = "" }, "server_name"},
		{"plus in server name", func(c *ServerConfig) { c.ServerName = "demo/+" }, "server_name"},
		{"hash in server name", func(c *ServerConfig) { c.ServerName = "demo/#" }, "server_name"},
		{"conflicting client id", func(c *ServerConfig) { c.MQTT.ClientID = "other" }, "mqtt.client_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestClientConfigValidate(t *testing.T) {
	cfg := ClientConfig{MQTT: MQTTConfig{URL: "mqtt://127.0.0.1:1883"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.ServerNameFilter != "#" {
		t.Errorf("ServerNameFilter = %q, want #", cfg.ServerNameFilter)
	}
	if cfg.Name == "" {
		t.Error("Name not defaulted")
	}
}

func TestClientConfigWildcardClientID(t *testing.T) {
	cfg := ClientConfig{
		MQTT: MQTTConfig{URL: "mqtt://127.0.0.1:1883", ClientID: "c+1"},
	}
	var cerr *ConfigError
	if err := cfg.Validate(); !errors.As(err, &cerr) {
		t.Fatalf("Validate() = %v, want *ConfigError", err)
	}
}

// =============================================================================
// URL Normalisation Tests
// =============================================================================

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mqtt://broker:1883", "mqtt://broker:1883"},
		{"mqtts://broker:8883", "mqtts://broker:8883"},
		{"tcp://broker:1883", "tcp://broker:1883"},
		{"broker:1883", "mqtt://broker:1883"}, // deprecated host:port form
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Load Tests
// =============================================================================

func TestLoadServer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	data := `
mqtt:
  url: "mqtt://127.0.0.1:1883"
server_id: "S1"
server_name: "demo/calc"
name: "Calc"
version: "1.0.0"
description: "demo calculator"
capabilities:
  tools:
    listChanged: true
logging:
  level: "debug"
  format: "text"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.ServerID != "S1" || cfg.ServerName != "demo/calc" {
		t.Errorf("identity = %q/%q", cfg.ServerID, cfg.ServerName)
	}
	if cfg.MQTT.KeepAlive != DefaultKeepAlive {
		t.Errorf("KeepAlive = %v, want default %v", cfg.MQTT.KeepAlive, DefaultKeepAlive)
	}
	if cfg.Capabilities.Tools == nil || !cfg.Capabilities.Tools.ListChanged {
		t.Error("tools capability not parsed")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadServerMissingFile(t *testing.T) {
	if _, err := LoadServer(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadServer() expected error for missing file")
	}
}

func TestLoadClientEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	data := `
mqtt:
  url: "mqtt://file-broker:1883"
name: "tester"
version: "0.1.0"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MCPMQTT_MQTT_URL", "mqtt://env-broker:1883")
	t.Setenv("MCPMQTT_MQTT_PASSWORD", "hunter2")

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if cfg.MQTT.URL != "mqtt://env-broker:1883" {
		t.Errorf("URL = %q, env override not applied", cfg.MQTT.URL)
	}
	if cfg.MQTT.Password != "hunter2" {
		t.Errorf("Password not overridden from env")
	}
}

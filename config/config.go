package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/graybridge/mcpmqtt/mcp"
	"github.com/graybridge/mcpmqtt/topics"
)

// Transport defaults mandated by the wire protocol.
const (
	DefaultKeepAlive       = 60 * time.Second
	DefaultConnectTimeout  = 30 * time.Second
	DefaultReconnectPeriod = 1 * time.Second
)

// ConfigError reports an invalid or missing configuration value. It is
// detected at construction, before any broker traffic.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// MQTTConfig contains broker connection settings shared by both peers.
type MQTTConfig struct {
	// URL is the broker address, e.g. "mqtt://127.0.0.1:1883" or
	// "mqtts://broker.example.com:8883". A bare host:port is accepted as
	// deprecated input and normalised to mqtt://host:port.
	URL string `yaml:"url"`

	// ClientID overrides the MQTT client id. Servers leave this empty or
	// set it to server_id (the server_id is the session id); clients
	// normally leave it empty and get a fresh generated id per run.
	ClientID string `yaml:"client_id,omitempty"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// KeepAlive is the MQTT keepalive interval. Default 60s.
	KeepAlive time.Duration `yaml:"keepalive,omitempty"`

	// ConnectTimeout bounds the initial connection attempt. Default 30s.
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`

	// ReconnectPeriod is the delay between reconnection attempts. Default 1s.
	ReconnectPeriod time.Duration `yaml:"reconnect_period,omitempty"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// ServerConfig is the full configuration for a server peer.
type ServerConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`

	// ServerID is the globally unique server identity; it is also the MQTT
	// client id of the server's session. Required.
	ServerID string `yaml:"server_id"`

	// ServerName is the hierarchical, slash-separated server path used as
	// a filterable topic suffix (e.g. "vendor/product/role"). Required.
	ServerName string `yaml:"server_name"`

	// Name and Version identify the implementation in the initialize
	// handshake.
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Description is advertised in the retained online notification.
	Description string `yaml:"description,omitempty"`

	// DisplayName is an optional human-facing name for discovery UIs.
	DisplayName string `yaml:"display_name,omitempty"`

	// Capabilities declares the server's optional feature set. Nil Tools
	// and Resources records are advertised with listChanged=false; other
	// nil sub-records are not advertised.
	Capabilities mcp.ServerCapabilities `yaml:"capabilities,omitempty"`

	// RBAC optionally advertises named roles to brokers and clients.
	RBAC *mcp.RBAC `yaml:"rbac,omitempty"`

	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// ClientConfig is the full configuration for a client peer.
type ClientConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`

	// Name and Version identify the implementation in the initialize
	// handshake.
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Capabilities declares the client's optional feature set.
	Capabilities mcp.ClientCapabilities `yaml:"capabilities,omitempty"`

	// ServerNameFilter restricts which servers the client discovers.
	// Default "#" (all). The broker may narrow it further via CONNACK.
	ServerNameFilter string `yaml:"server_name_filter,omitempty"`

	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// NormalizeURL canonicalises a broker address. Bare host:port input gains
// the mqtt:// scheme.
func NormalizeURL(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	return "mqtt://" + raw
}

// applyMQTTDefaults fills zero-valued transport settings.
func applyMQTTDefaults(m *MQTTConfig) {
	if m.KeepAlive == 0 {
		m.KeepAlive = DefaultKeepAlive
	}
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = DefaultConnectTimeout
	}
	if m.ReconnectPeriod == 0 {
		m.ReconnectPeriod = DefaultReconnectPeriod
	}
	m.URL = NormalizeURL(m.URL)
}

// validateMQTT checks broker settings common to both peers.
func validateMQTT(m *MQTTConfig) error {
	if m.URL == "" {
		return &ConfigError{Field: "mqtt.url", Reason: "broker address is required"}
	}
	return nil
}

// Validate checks the configuration and fills defaults. It is called by
// server.New, so explicit calls are only needed when inspecting a config
// before constructing a peer.
func (c *ServerConfig) Validate() error {
	applyMQTTDefaults(&c.MQTT)
	if err := validateMQTT(&c.MQTT); err != nil {
		return err
	}
	if err := topics.ValidateID(c.ServerID); err != nil {
		return &ConfigError{Field: "server_id", Reason: err.Error()}
	}
	if err := topics.ValidateServerName(c.ServerName); err != nil {
		return &ConfigError{Field: "server_name", Reason: err.Error()}
	}
	if c.MQTT.ClientID != "" && c.MQTT.ClientID != c.ServerID {
		return &ConfigError{Field: "mqtt.client_id", Reason: "server sessions use server_id as the MQTT client id"}
	}
	if c.Name == "" {
		c.Name = c.ServerID
	}
	if c.Version == "" {
		c.Version = "0.0.0"
	}
	applyLoggingDefaults(&c.Logging)
	return nil
}

// Validate checks the configuration and fills defaults. It is called by
// client.New.
func (c *ClientConfig) Validate() error {
	applyMQTTDefaults(&c.MQTT)
	if err := validateMQTT(&c.MQTT); err != nil {
		return err
	}
	if c.MQTT.ClientID != "" {
		if err := topics.ValidateID(c.MQTT.ClientID); err != nil {
			return &ConfigError{Field: "mqtt.client_id", Reason: err.Error()}
		}
	}
	if c.ServerNameFilter == "" {
		c.ServerNameFilter = "#"
	}
	if c.Name == "" {
		c.Name = "mcpmqtt-client"
	}
	if c.Version == "" {
		c.Version = "0.0.0"
	}
	applyLoggingDefaults(&c.Logging)
	return nil
}

// applyLoggingDefaults fills zero-valued logging settings.
func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
	if l.Output == "" {
		l.Output = "stdout"
	}
}

// LoadServer reads a ServerConfig from a YAML file and applies environment
// variable overrides.
//
// Returns:
//   - *ServerConfig: loaded and validated configuration
//   - error: if the file cannot be read, parsed, or validation fails
func LoadServer(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg.MQTT)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadClient reads a ClientConfig from a YAML file and applies environment
// variable overrides.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg.MQTT)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadYAML reads and parses a YAML file into out.
func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides overrides broker settings from the environment.
// Credentials in particular belong in the environment, not in YAML files.
func applyEnvOverrides(m *MQTTConfig) {
	if v := os.Getenv("MCPMQTT_MQTT_URL"); v != "" {
		m.URL = v
	}
	if v := os.Getenv("MCPMQTT_MQTT_USERNAME"); v != "" {
		m.Username = v
	}
	if v := os.Getenv("MCPMQTT_MQTT_PASSWORD"); v != "" {
		m.Password = v
	}
}

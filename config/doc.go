// Package config defines the configuration surface for both MCP peers.
//
// Configuration can be constructed directly in code or loaded from YAML
// via LoadServer or LoadClient. Loading follows the usual order:
//
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern MCPMQTT_SECTION_KEY, for
// example MCPMQTT_MQTT_URL and MCPMQTT_MQTT_PASSWORD.
//
// # Shape
//
// Each peer has one flat config struct (ServerConfig, ClientConfig) with
// the broker settings nested under an MQTT section:
//
//	mqtt:
//	  url: "mqtt://127.0.0.1:1883"
//	server_id: "S1"
//	server_name: "demo/calc"
//	name: "Calc"
//	version: "1.0.0"
//
// The broker address is a URL (mqtt://, mqtts://, tcp://, ssl://). A bare
// host:port pair is accepted as deprecated input and normalised to
// mqtt://host:port.
package config

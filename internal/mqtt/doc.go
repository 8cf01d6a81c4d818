// Package mqtt provides the MQTT 5.0 transport adapter both MCP peers are
// built on.
//
// This package manages:
//   - Connection to the broker with auto-reconnect (autopaho)
//   - QoS 1 publishing with MQTT 5.0 user properties
//   - Subscriptions with the No-Local option
//   - Last Will and Testament for offline detection
//   - CONNACK user properties, readable after connect
//
// # Protocol Requirements
//
// The adapter forces protocol version 5.0 and a session expiry of zero
// (no broker-side session survives a disconnect; presence is rebuilt on
// reconnect). Every PUBLISH automatically carries the MCP-COMPONENT-TYPE
// and MCP-MQTT-CLIENT-ID user properties, and the CONNECT packet carries
// MCP-META, so the peers above never assemble identity properties
// themselves.
//
// # Testing
//
// Conn is the seam between the peers and the broker. The real
// implementation lives in this package; mqtttest provides an in-memory
// broker honouring retained messages, wildcards, No-Local and wills for
// package-level tests.
package mqtt

// Package server implements the MCP server peer.
//
// A server publishes tools and resources for remote invocation over an
// MQTT 5.0 broker. It owns four topics derived from its identity
// (server_id, server_name): a control topic receiving initialize requests,
// a capability topic for list_changed notifications, a retained presence
// topic signalling online/offline, and a wildcard RPC pattern covering
// every per-client request channel.
//
// # Lifecycle
//
//	srv, err := server.New(cfg)
//	srv.RegisterTool("add", "adds two numbers", schema, addHandler)
//	err = srv.Start(ctx)   // connects, announces presence, serves
//	...
//	err = srv.Stop(ctx)    // clears presence, disconnects
//
// Startup order is load-bearing: the last will (an empty retained payload
// on the presence topic) is registered before connecting, subscriptions
// are established before the retained online notification is published,
// and the initialize response is always published before the per-client
// subscriptions are added.
//
// # Handler Isolation
//
// Tool and resource handlers are user code. A handler returning an error
// produces an INTERNAL_ERROR response; a panicking handler is recovered
// and produces the same. Neither kills the ingress loop. Handlers run on
// their own goroutine per request, so a slow handler does not stall other
// clients.
package server

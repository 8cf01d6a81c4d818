// Package client implements the MCP client peer.
//
// A client discovers servers through their retained presence messages,
// initializes a bidirectional RPC relationship with the ones it wants, and
// invokes their tools and resources over per-(client, server) RPC topics.
//
// # Lifecycle
//
//	cli, err := client.New(cfg)
//	cli.SetOnServerDiscovered(func(info client.ServerInfo) { ... })
//	err = cli.Connect(ctx)            // subscribe to discovery topics
//	info, err := cli.InitializeServer(ctx, "S1")
//	res, err := cli.CallTool(ctx, "S1", "add", map[string]any{"a": 1, "b": 2})
//	err = cli.Disconnect(ctx)         // notify servers, cancel pending
//
// Each run should use a fresh client id: a client re-initializing against
// the same server requires a distinct identity, so New generates one
// unless the configuration pins it.
//
// # Request Correlation
//
// Every request registers a one-shot completion slot keyed by a generated
// correlation id before it is published. The awaiter receives exactly one
// outcome: the correlated response, a per-method timeout, a context
// cancellation, or shutdown cancellation.
package client

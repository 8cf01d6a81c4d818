package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/graybridge/mcpmqtt/internal/mqtt"
	"github.com/graybridge/mcpmqtt/mcp"
	"github.com/graybridge/mcpmqtt/topics"
)

// InitializeServer performs the initialize handshake with a discovered
// server and promotes it to the connected set.
//
// The request goes to the server's control topic; the response arrives on
// the per-(client, server) RPC topic. On success the server record is
// enriched with the handshake result, notifications/initialized is
// published on the RPC topic, and the initialized callback fires.
func (c *Client) InitializeServer(ctx context.Context, serverID string) (ServerInfo, error) {
	c.mu.Lock()
	info, ok := c.discovered[serverID]
	if !ok {
		c.mu.Unlock()
		return ServerInfo{}, fmt.Errorf("%w: %s", ErrServerNotDiscovered, serverID)
	}
	serverName := info.ServerName
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return ServerInfo{}, mcp.ErrNotConnected
	}

	params := mcp.InitializeParams{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    c.cfg.Capabilities,
		ClientInfo:      mcp.Implementation{Name: c.cfg.Name, Version: c.cfg.Version},
	}

	raw, err := c.send(ctx, topics.ServerControl(serverID, serverName), mcp.MethodInitialize, params)
	if err != nil {
		return ServerInfo{}, err
	}

	var result mcp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ServerInfo{}, fmt.Errorf("%w: initialize result: %w", mcp.ErrInvalidEnvelope, err)
	}

	c.mu.Lock()
	info, ok = c.discovered[serverID]
	if !ok {
		// Presence cleared while the handshake was in flight.
		c.mu.Unlock()
		return ServerInfo{}, fmt.Errorf("%w: %s", ErrServerNotDiscovered, serverID)
	}
	info.Name = result.ServerInfo.Name
	info.Version = result.ServerInfo.Version
	info.Capabilities = result.Capabilities
	c.servers[serverID] = struct{}{}
	snapshot := *info
	c.mu.Unlock()

	// The server must see initialized only after its response arrived.
	if err := c.notifyInitialized(ctx, serverID, serverName); err != nil {
		c.log.Warn("publishing initialized notification", "server_id", serverID, "error", err)
	}

	c.log.Info("server initialized", "server_id", serverID, "name", snapshot.Name)

	c.cbMu.RLock()
	f := c.onServerInitialized
	c.cbMu.RUnlock()
	if f != nil {
		f(snapshot)
	}
	return snapshot, nil
}

// notifyInitialized publishes notifications/initialized on the RPC topic.
func (c *Client) notifyInitialized(ctx context.Context, serverID, serverName string) error {
	n, err := mcp.NewNotification(mcp.NotificationInitialized, nil)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return c.conn.Publish(ctx, topics.RPC(c.clientID, serverID, serverName), payload, mqtt.PublishOptions{})
}

// ListTools returns the server's tool definitions.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]mcp.Tool, error) {
	raw, err := c.call(ctx, serverID, mcp.MethodToolsList, struct{}{})
	if err != nil {
		return nil, err
	}
	var result mcp.ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: tools/list result: %w", mcp.ErrInvalidEnvelope, err)
	}
	return result.Tools, nil
}

// CallTool invokes a named tool. The returned result carries the content
// blocks and the IsError flag; an IsError result is a successful response
// describing a negative application outcome, not a transport failure.
func (c *Client) CallTool(ctx context.Context, serverID, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	raw, err := c.call(ctx, serverID, mcp.MethodToolsCall, mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, err
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: tools/call result: %w", mcp.ErrInvalidEnvelope, err)
	}
	return &result, nil
}

// ListResources returns the server's resource definitions.
func (c *Client) ListResources(ctx context.Context, serverID string) ([]mcp.Resource, error) {
	raw, err := c.call(ctx, serverID, mcp.MethodResourcesList, struct{}{})
	if err != nil {
		return nil, err
	}
	var result mcp.ListResourcesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: resources/list result: %w", mcp.ErrInvalidEnvelope, err)
	}
	return result.Resources, nil
}

// ReadResource retrieves a resource by URI.
func (c *Client) ReadResource(ctx context.Context, serverID, uri string) (*mcp.ReadResourceResult, error) {
	raw, err := c.call(ctx, serverID, mcp.MethodResourcesRead, mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}
	var result mcp.ReadResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: resources/read result: %w", mcp.ErrInvalidEnvelope, err)
	}
	return &result, nil
}

// Ping probes a connected server. Returns true iff the server answered
// with pong.
func (c *Client) Ping(ctx context.Context, serverID string) (bool, error) {
	raw, err := c.call(ctx, serverID, mcp.MethodPing, struct{}{})
	if err != nil {
		return false, err
	}
	var result mcp.PingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return false, fmt.Errorf("%w: ping result: %w", mcp.ErrInvalidEnvelope, err)
	}
	return result.Pong, nil
}

// call sends a request on the RPC topic of a connected server and awaits
// the correlated response.
func (c *Client) call(ctx context.Context, serverID, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, mcp.ErrNotConnected
	}
	if _, ok := c.servers[serverID]; !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", mcp.ErrNotConnected, serverID)
	}
	info, ok := c.discovered[serverID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", mcp.ErrNotConnected, serverID)
	}
	serverName := info.ServerName
	c.mu.Unlock()

	return c.send(ctx, topics.RPC(c.clientID, serverID, serverName), method, params)
}

// send publishes a request and blocks for its single outcome: the
// correlated response, the per-method timeout, context cancellation, or
// shutdown. The pending entry is registered before the publish so a
// response cannot outrun its slot.
func (c *Client) send(ctx context.Context, topic, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	req, err := mcp.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	call := c.pend.Add(id, method, mcp.DefaultTimeout(method))

	if err := c.conn.Publish(ctx, topic, payload, mqtt.PublishOptions{}); err != nil {
		if c.pend.Fail(id, err) {
			<-call.Done()
			return nil, fmt.Errorf("publishing %s request: %w", method, err)
		}
		// A response raced the publish failure; deliver it.
		out := <-call.Done()
		return out.Result, out.Err
	}

	select {
	case out := <-call.Done():
		return out.Result, out.Err
	case <-ctx.Done():
		// Withdraw so a late response is ignored. If a response got there
		// first, deliver it instead.
		if c.pend.Fail(id, ctx.Err()) {
			<-call.Done()
			return nil, ctx.Err()
		}
		out := <-call.Done()
		return out.Result, out.Err
	}
}

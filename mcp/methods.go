package mcp

import "time"

// Request method names.
const (
	MethodInitialize            = "initialize"
	MethodPing                  = "ping"
	MethodToolsList             = "tools/list"
	MethodToolsCall             = "tools/call"
	MethodResourcesList         = "resources/list"
	MethodResourcesRead         = "resources/read"
	MethodResourcesSubscribe    = "resources/subscribe"
	MethodResourceTemplatesList = "resources/templates/list"
	MethodPromptsList           = "prompts/list"
	MethodPromptsGet            = "prompts/get"
	MethodRootsList             = "roots/list"
	MethodLoggingSetLevel       = "logging/setLevel"
	MethodSamplingCreateMessage = "sampling/createMessage"
	MethodCompletionComplete    = "completion/complete"
)

// Notification method names.
const (
	NotificationServerOnline        = "notifications/server/online"
	NotificationDisconnected        = "notifications/disconnected"
	NotificationInitialized         = "notifications/initialized"
	NotificationToolsListChanged    = "notifications/tools/list_changed"
	NotificationResourcesListChange = "notifications/resources/list_changed"
	NotificationPromptsListChanged  = "notifications/prompts/list_changed"
)

// Default request timeouts. Long-running generation-style calls get a
// minute; ping is deliberately short so liveness probes fail fast.
const (
	defaultTimeout = 30 * time.Second
	longTimeout    = 60 * time.Second
	pingTimeout    = 10 * time.Second
)

// methodTimeouts overrides the default for methods with atypical latency.
var methodTimeouts = map[string]time.Duration{
	MethodPing:                  pingTimeout,
	MethodToolsCall:             longTimeout,
	MethodSamplingCreateMessage: longTimeout,
	MethodCompletionComplete:    longTimeout,
}

// DefaultTimeout returns the default deadline for a pending request of the
// given method. Callers may shorten it per call via context deadlines.
func DefaultTimeout(method string) time.Duration {
	if d, ok := methodTimeouts[method]; ok {
		return d
	}
	return defaultTimeout
}

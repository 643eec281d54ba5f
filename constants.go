package nswire

// APIPrefix is the reserved path prefix every namespace lives under. Upgrade
// requests outside this prefix are never handled by the server.
const APIPrefix = "/api/1/ws"

// Identity defaults.
const (
	SystemUsername    = "system"
	AnonymousUsername = "anonymous"
)

// Standard error messages
const (
	// Setup errors
	ErrUnknownNamespace     = "unknown namespace"
	ErrDuplicateNamespace   = "namespace path already registered"
	ErrInvalidNamespacePath = "invalid namespace path"
	ErrNotAuthenticated     = "session not authenticated"
	ErrNotAuthorized        = "session lacks required role"
	ErrCreateHookRejected   = "create hook rejected connection"

	// Connection errors
	ErrClientNotFound       = "client not found"
	ErrConnectionClosed     = "client connection is closed"
	ErrServerAlreadyRunning = "server already running"
	ErrServerNotRunning     = "server not running"

	// Message errors
	ErrMalformedMessage = "malformed message"
	ErrHandlerFailed    = "message handler failed"
)

// Client-visible error codes carried in the failure envelope.
const (
	CodeMalformedMessage = "bad_message"
	CodeHandlerError     = "handler_error"
)

package models

import "errors"

// ErrorKind enumerates the runtime's error taxonomy. These are kinds,
// not distinct Go types, so callers can branch on Kind() without a type
// switch per error family.
type ErrorKind string

const (
	KindUnknownTool      ErrorKind = "unknown_tool"
	KindInvalidArgs      ErrorKind = "invalid_args"
	KindPermissionDenied ErrorKind = "permission_denied"
	KindHookVeto         ErrorKind = "hook_veto"
	KindToolError        ErrorKind = "tool_error"

	KindMaxIterations ErrorKind = "max_iterations"
	KindMaxTokens     ErrorKind = "max_tokens"
	KindMaxTime       ErrorKind = "max_time"
	KindCancelled     ErrorKind = "cancelled"

	KindLLMRateLimit    ErrorKind = "llm_rate_limit"
	KindLLMAuthFailed   ErrorKind = "llm_auth_failed"
	KindLLMBadRequest   ErrorKind = "llm_bad_request"
	KindLLMServerError  ErrorKind = "llm_server_error"
	KindLLMNetworkError ErrorKind = "llm_network_error"

	KindMCPParseError     ErrorKind = "mcp_parse_error"
	KindMCPInvalidRequest ErrorKind = "mcp_invalid_request"
	KindMCPMethodNotFound ErrorKind = "mcp_method_not_found"
	KindMCPInvalidParams  ErrorKind = "mcp_invalid_params"
	KindMCPInternalError  ErrorKind = "mcp_internal_error"
	KindMCPRequestTimeout ErrorKind = "mcp_request_timeout"
	KindMCPConnectionErr  ErrorKind = "mcp_connection_error"

	KindConfigError    ErrorKind = "config_error"
	KindPluginLoad     ErrorKind = "plugin_load"
	KindPluginLifecycle ErrorKind = "plugin_lifecycle"
	KindPluginManifest ErrorKind = "plugin_manifest"
	KindPluginDependency ErrorKind = "plugin_dependency"
	KindPluginConfig   ErrorKind = "plugin_config"
)

// CoreError is the common error shape across the runtime: a kind for
// programmatic branching, a human message, the tool/call that produced it
// (when applicable), and an optional wrapped cause.
type CoreError struct {
	Kind       ErrorKind
	Message    string
	ToolName   string
	ToolCallID string
	Cause      error
}

func (e *CoreError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// Is lets errors.Is match on kind, e.g. errors.Is(err, &CoreError{Kind: KindCancelled}).
func (e *CoreError) Is(target error) bool {
	var ce *CoreError
	if errors.As(target, &ce) {
		return ce.Kind == e.Kind
	}
	return false
}

// NewError builds a CoreError of the given kind wrapping cause.
func NewError(kind ErrorKind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// WithTool attaches tool identity to the error and returns it for chaining.
func (e *CoreError) WithTool(name, callID string) *CoreError {
	e.ToolName = name
	e.ToolCallID = callID
	return e
}

// KindOf extracts the ErrorKind from err if it is (or wraps) a CoreError.
func KindOf(err error) (ErrorKind, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// ErrNoProvider is returned when an agent run is started with no LLM
// provider configured.
var ErrNoProvider = errors.New("no LLM provider configured")

// Sentinel errors for retry-classification in the LLM provider adapters.
var (
	ErrRetryable    = errors.New("retryable provider error")
	ErrNotRetryable = errors.New("non-retryable provider error")
)

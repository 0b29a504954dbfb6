package mcpserver

import (
	"errors"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/proxyclient"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/transport"
)

// JSON-RPC 2.0 reserved error codes this router produces (spec.md §4.4,
// §7).
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// rpcError builds the JsonRpcError half of a response for a Go error
// surfaced anywhere in the router or proxy client, classifying it per
// spec.md §7's taxonomy. CapabilityError maps to "method not found"
// because the downstream caller asked for a feature this group does
// not expose, not because the arguments were malformed.
func rpcError(err error) *transport.JsonRpcError {
	var capErr *proxyclient.CapabilityError
	if errors.As(err, &capErr) {
		return &transport.JsonRpcError{Code: codeMethodNotFound, Message: capErr.Error()}
	}

	var unknownGroup *proxyclient.UnknownGroupError
	if errors.As(err, &unknownGroup) {
		return &transport.JsonRpcError{Code: codeInvalidParams, Message: unknownGroup.Error()}
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return &transport.JsonRpcError{Code: codeInvalidParams, Message: usageErr.Error()}
	}

	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		return &transport.JsonRpcError{Code: codeInternalError, Message: transportErr.Error()}
	}

	return &transport.JsonRpcError{Code: codeInternalError, Message: err.Error()}
}

// UsageError reports missing or malformed meta-tool/passthrough
// arguments (spec.md §7 "UsageError"); the router maps it to -32602.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

func errorResponse(id interface{}, err error) *transport.JsonRpcResponse {
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: id, Error: rpcError(err)}
}

func methodNotFound(id interface{}, method string) *transport.JsonRpcResponse {
	return &transport.JsonRpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &transport.JsonRpcError{Code: codeMethodNotFound, Message: "method not found: " + method},
	}
}

func invalidParams(id interface{}, message string) *transport.JsonRpcResponse {
	return &transport.JsonRpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &transport.JsonRpcError{Code: codeInvalidParams, Message: message},
	}
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpClient is the subset of *client.Client every wire variant drives.
// Declaring it as an interface keeps stdio/http/sse translation code
// identical and lets tests substitute a fake.
type mcpClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context, req mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ReadResource(ctx context.Context, req mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
	ListResourceTemplates(ctx context.Context, req mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error)
	ListPrompts(ctx context.Context, req mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	GetPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error)
	Close() error
}

// clientName/clientVersion identify this proxy to every upstream
// during the initialize handshake.
const (
	clientName    = "mcpproxy"
	clientVersion = "1.0.0"
)

// buildInitializeRequest sends an empty client capability set: it does
// not advertise tools, resources or prompts to the upstream.
func buildInitializeRequest() mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	req.Params.Capabilities = mcp.ClientCapabilities{}
	return req
}

// dispatch translates one canonical JsonRpcRequest into the matching
// typed mcp-go client call and marshals the typed result back into a
// JsonRpcResponse, so every Transport variant can share one method
// table instead of re-implementing MCP's method names.
func dispatch(ctx context.Context, c mcpClient, req *JsonRpcRequest) (*JsonRpcResponse, error) {
	var (
		result interface{}
		err    error
	)

	switch req.Method {
	case "initialize":
		result, err = c.Initialize(ctx, buildInitializeRequest())
	case "notifications/initialized":
		return nil, nil // notifications carry no response
	case "tools/list":
		result, err = c.ListTools(ctx, mcp.ListToolsRequest{})
	case "tools/call":
		var p struct {
			Name      string                 `json:"name"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		if uerr := json.Unmarshal(req.Params, &p); uerr != nil {
			return nil, NewError(KindFraming, "invalid tools/call params", uerr)
		}
		callReq := mcp.CallToolRequest{}
		callReq.Params.Name = p.Name
		callReq.Params.Arguments = p.Arguments
		result, err = c.CallTool(ctx, callReq)
	case "resources/list":
		result, err = c.ListResources(ctx, mcp.ListResourcesRequest{})
	case "resources/read":
		var p struct {
			URI string `json:"uri"`
		}
		if uerr := json.Unmarshal(req.Params, &p); uerr != nil {
			return nil, NewError(KindFraming, "invalid resources/read params", uerr)
		}
		readReq := mcp.ReadResourceRequest{}
		readReq.Params.URI = p.URI
		result, err = c.ReadResource(ctx, readReq)
	case "resources/templates/list":
		result, err = c.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	case "prompts/list":
		result, err = c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	case "prompts/get":
		var p struct {
			Name      string                 `json:"name"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		if uerr := json.Unmarshal(req.Params, &p); uerr != nil {
			return nil, NewError(KindFraming, "invalid prompts/get params", uerr)
		}
		getReq := mcp.GetPromptRequest{}
		getReq.Params.Name = p.Name
		result, err = c.GetPrompt(ctx, getReq)
	default:
		return nil, NewError(KindFraming, fmt.Sprintf("unsupported upstream method %q", req.Method), nil)
	}

	if err != nil {
		return nil, err
	}

	payload, merr := json.Marshal(result)
	if merr != nil {
		return nil, NewError(KindFraming, "marshaling upstream result", merr)
	}

	return &JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}, nil
}

package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/transport"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// Handle routes one downstream JSON-RPC request to its behavior
// (spec.md §4.4's method table) and always returns a non-nil response
// for anything other than a notification. It never panics into the
// JSON-RPC stream: any unexpected internal condition becomes -32603
// (spec.md §7).
func (s *Server) Handle(ctx context.Context, req *transport.JsonRpcRequest) (resp *transport.JsonRpcResponse) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic handling request", zap.Any("method", req.Method), zap.Any("panic", r))
			resp = &transport.JsonRpcResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &transport.JsonRpcError{Code: codeInternalError, Message: "internal error"},
			}
		}
	}()

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return s.handleResourcesList(ctx, req)
	case "resources/read":
		return s.handleResourcesRead(ctx, req)
	case "resources/templates/list":
		return s.handleResourceTemplatesList(ctx, req)
	case "prompts/list":
		return s.handlePromptsList(ctx, req)
	case "prompts/get":
		return s.handlePromptsGet(ctx, req)
	default:
		return methodNotFound(req.ID, req.Method)
	}
}

// initializeResult is a local, wire-exact mirror of spec.md §4.4's
// advertised capability shape. It is built by hand rather than through
// mcp.InitializeResult/mcp.ServerCapabilities because those capability
// sub-structs are unexported-shape anonymous types in the upstream
// library; a local type keeps this response's wire shape pinned to
// the spec regardless of that library's internal layout.
type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    initializeCapabilities `json:"capabilities"`
	ServerInfo      serverInfo             `json:"serverInfo"`
}

type initializeCapabilities struct {
	Tools     struct{} `json:"tools"`
	Resources struct {
		Subscribe   bool `json:"subscribe"`
		ListChanged bool `json:"listChanged"`
	} `json:"resources"`
	Prompts struct {
		ListChanged bool `json:"listChanged"`
	} `json:"prompts"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// handleInitialize replies with the fixed capability shape spec.md
// §4.4 names; this proxy's capabilities never vary by upstream.
func (s *Server) handleInitialize(req *transport.JsonRpcRequest) *transport.JsonRpcResponse {
	result := initializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      serverInfo{Name: "mcpproxy", Version: "1.0.0"},
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}
}

// handleToolsList always returns exactly the two meta-tools (spec.md
// §4.4, §6); the downstream tool surface never grows with the group
// table so the LLM's context cost stays flat regardless of how many
// upstreams are configured.
func (s *Server) handleToolsList(req *transport.JsonRpcRequest) *transport.JsonRpcResponse {
	result := mcp.ListToolsResult{Tools: []mcp.Tool{
		getDynamicToolsDefinition(s.groupSummaryLine()),
		callDynamicToolDefinition(),
	}}

	payload, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}
}

func (s *Server) handleToolsCall(ctx context.Context, req *transport.JsonRpcRequest) *transport.JsonRpcResponse {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return invalidParams(req.ID, "malformed tools/call params: "+err.Error())
	}

	switch call.Name {
	case "get_dynamic_tools":
		return s.handleGetDynamicTools(req.ID, call.Arguments)
	case "call_dynamic_tool":
		return s.handleCallDynamicTool(ctx, req.ID, call.Arguments)
	default:
		return invalidParams(req.ID, "unknown tool: "+call.Name)
	}
}

// groupParams is embedded by every request shape that accepts an
// optional explicit group override (spec.md §4.4's group-resolution
// pattern for resources/* and prompts/*).
type groupParams struct {
	Group string `json:"group"`
}

func (s *Server) handleResourcesList(ctx context.Context, req *transport.JsonRpcRequest) *transport.JsonRpcResponse {
	var p groupParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(req.ID, "malformed resources/list params: "+err.Error())
		}
	}

	if p.Group != "" {
		upstreamResp, err := s.client.Proxy(ctx, p.Group, "resources/list", req.Params)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		s.cacheResourcesFromList(p.Group, upstreamResp)
		return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: upstreamResp.Result}
	}

	groups := s.client.GroupsWithFeature("resources")
	var aggregated mcp.ListResourcesResult
	var lastResp *transport.JsonRpcResponse
	for _, g := range groups {
		upstreamResp, err := s.client.Proxy(ctx, g, "resources/list", nil)
		if err != nil {
			s.logger.Warn("resources/list failed for group", zap.String("group", g), zap.Error(err))
			continue
		}
		var one mcp.ListResourcesResult
		if uerr := json.Unmarshal(upstreamResp.Result, &one); uerr != nil {
			continue
		}
		aggregated.Resources = append(aggregated.Resources, one.Resources...)
		s.cacheResourcesFromList(g, upstreamResp)
		lastResp = upstreamResp
	}
	if len(groups) == 1 && lastResp != nil {
		var one mcp.ListResourcesResult
		_ = json.Unmarshal(lastResp.Result, &one)
		aggregated.NextCursor = one.NextCursor
	}

	payload, err := json.Marshal(aggregated)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}
}

func (s *Server) cacheResourcesFromList(group string, resp *transport.JsonRpcResponse) {
	var result mcp.ListResourcesResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return
	}
	for _, r := range result.Resources {
		s.rememberResource(r.URI, group)
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, req *transport.JsonRpcRequest) *transport.JsonRpcResponse {
	var p struct {
		groupParams
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return invalidParams(req.ID, "malformed resources/read params: "+err.Error())
	}
	if p.URI == "" {
		return invalidParams(req.ID, "resources/read requires uri")
	}

	group := p.Group
	if group == "" {
		resolved, found, ambiguous := s.resourceGroup(p.URI)
		switch {
		case ambiguous:
			return invalidParams(req.ID, "uri is ambiguous across groups, pass an explicit group: "+p.URI)
		case !found:
			return invalidParams(req.ID, "uri not seen in any prior resources/list: "+p.URI)
		}
		group = resolved
	}

	upstreamResp, err := s.client.Proxy(ctx, group, "resources/read", req.Params)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: upstreamResp.Result}
}

func (s *Server) handleResourceTemplatesList(ctx context.Context, req *transport.JsonRpcRequest) *transport.JsonRpcResponse {
	var p groupParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(req.ID, "malformed resources/templates/list params: "+err.Error())
		}
	}

	if p.Group != "" {
		upstreamResp, err := s.client.Proxy(ctx, p.Group, "resources/templates/list", req.Params)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: upstreamResp.Result}
	}

	groups := s.client.GroupsWithFeature("resources")
	var aggregated mcp.ListResourceTemplatesResult
	for _, g := range groups {
		upstreamResp, err := s.client.Proxy(ctx, g, "resources/templates/list", nil)
		if err != nil {
			s.logger.Warn("resources/templates/list failed for group", zap.String("group", g), zap.Error(err))
			continue
		}
		var one mcp.ListResourceTemplatesResult
		if uerr := json.Unmarshal(upstreamResp.Result, &one); uerr != nil {
			continue
		}
		aggregated.ResourceTemplates = append(aggregated.ResourceTemplates, one.ResourceTemplates...)
	}

	payload, err := json.Marshal(aggregated)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}
}

func (s *Server) handlePromptsList(ctx context.Context, req *transport.JsonRpcRequest) *transport.JsonRpcResponse {
	var p groupParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return invalidParams(req.ID, "malformed prompts/list params: "+err.Error())
		}
	}

	if p.Group != "" {
		upstreamResp, err := s.client.Proxy(ctx, p.Group, "prompts/list", req.Params)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		s.cachePromptsFromList(p.Group, upstreamResp)
		return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: upstreamResp.Result}
	}

	groups := s.client.GroupsWithFeature("prompts")
	var aggregated mcp.ListPromptsResult
	var lastResp *transport.JsonRpcResponse
	for _, g := range groups {
		upstreamResp, err := s.client.Proxy(ctx, g, "prompts/list", nil)
		if err != nil {
			s.logger.Warn("prompts/list failed for group", zap.String("group", g), zap.Error(err))
			continue
		}
		var one mcp.ListPromptsResult
		if uerr := json.Unmarshal(upstreamResp.Result, &one); uerr != nil {
			continue
		}
		aggregated.Prompts = append(aggregated.Prompts, one.Prompts...)
		s.cachePromptsFromList(g, upstreamResp)
		lastResp = upstreamResp
	}
	if len(groups) == 1 && lastResp != nil {
		var one mcp.ListPromptsResult
		_ = json.Unmarshal(lastResp.Result, &one)
		aggregated.NextCursor = one.NextCursor
	}

	payload, err := json.Marshal(aggregated)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: payload}
}

func (s *Server) cachePromptsFromList(group string, resp *transport.JsonRpcResponse) {
	var result mcp.ListPromptsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return
	}
	for _, p := range result.Prompts {
		s.rememberPrompt(p.Name, group)
	}
}

func (s *Server) handlePromptsGet(ctx context.Context, req *transport.JsonRpcRequest) *transport.JsonRpcResponse {
	var p struct {
		groupParams
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return invalidParams(req.ID, "malformed prompts/get params: "+err.Error())
	}
	if p.Name == "" {
		return invalidParams(req.ID, "prompts/get requires name")
	}

	group := p.Group
	if group == "" {
		resolved, found, ambiguous := s.promptGroup(p.Name)
		switch {
		case ambiguous:
			return invalidParams(req.ID, "prompt name is ambiguous across groups, pass an explicit group: "+p.Name)
		case !found:
			return invalidParams(req.ID, "prompt not seen in any prior prompts/list: "+p.Name)
		}
		group = resolved
	}

	upstreamResp, err := s.client.Proxy(ctx, group, "prompts/get", req.Params)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: req.ID, Result: upstreamResp.Result}
}

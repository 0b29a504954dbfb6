package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/transport"

	"github.com/mark3labs/mcp-go/mcp"
)

// getDynamicToolsDefinition builds the get_dynamic_tools tool
// definition. Its description is rebuilt on every tools/list call so
// it always lists the currently configured groups and their
// descriptions (spec.md §4.4 "tool descriptions are dynamic").
func getDynamicToolsDefinition(groupSummary string) mcp.Tool {
	description := "List every configured upstream group, its connection status, and (when connected) its tools."
	if groupSummary != "" {
		description += "\n\nKnown groups:\n" + groupSummary
	}
	return mcp.NewTool("get_dynamic_tools",
		mcp.WithDescription(description),
		mcp.WithString("group",
			mcp.Description("Optional group name to narrow the result to a single group."),
		),
	)
}

// callDynamicToolDefinition builds the call_dynamic_tool tool
// definition (spec.md §6).
func callDynamicToolDefinition() mcp.Tool {
	return mcp.NewTool("call_dynamic_tool",
		mcp.WithDescription("Forward a tools/call to one upstream group's tool. Call get_dynamic_tools first to discover group names, tool names, and their schemas."),
		mcp.WithString("group",
			mcp.Required(),
			mcp.Description("Name of the group to call, as returned by get_dynamic_tools."),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the upstream tool to invoke."),
		),
		mcp.WithObject("args",
			mcp.Required(),
			mcp.Description("Arguments object to pass to the upstream tool, matching its inputSchema."),
		),
	)
}

// groupSummaryLine renders one "- name (status): description" line per configured
// group, sorted by name, for embedding in get_dynamic_tools'
// description.
func (s *Server) groupSummaryLine() string {
	descriptors := s.client.ListGroups("")
	if len(descriptors) == 0 {
		return ""
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })

	var b strings.Builder
	for _, d := range descriptors {
		desc := d.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", d.Name, d.Status, desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

// groupToolEntry is one element of get_dynamic_tools' JSON result
// (spec.md §6).
type groupToolEntry struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	Error       string     `json:"error,omitempty"`
	Tools       []mcp.Tool `json:"tools,omitempty"`
}

// handleGetDynamicTools implements the get_dynamic_tools meta-tool
// (spec.md §4.4, §6).
func (s *Server) handleGetDynamicTools(id interface{}, rawArgs json.RawMessage) *transport.JsonRpcResponse {
	var args struct {
		Group string `json:"group"`
	}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return invalidParams(id, "malformed get_dynamic_tools arguments: "+err.Error())
		}
	}

	descriptors := s.client.ListGroups(args.Group)
	entries := make([]groupToolEntry, 0, len(descriptors))
	for _, d := range descriptors {
		entries = append(entries, groupToolEntry{
			Name:        d.Name,
			Status:      d.Status,
			Description: d.Description,
			Error:       d.Error,
			Tools:       d.Tools,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	payload, err := json.Marshal(entries)
	if err != nil {
		return errorResponse(id, err)
	}

	return toolCallResult(id, payload)
}

// handleCallDynamicTool implements the call_dynamic_tool meta-tool
// (spec.md §4.4, §6), forwarding to ProxyClient.CallTool and passing
// the upstream's tools/call result through unchanged.
func (s *Server) handleCallDynamicTool(ctx context.Context, id interface{}, rawArgs json.RawMessage) *transport.JsonRpcResponse {
	var args struct {
		Group string                 `json:"group"`
		Name  string                 `json:"name"`
		Args  map[string]interface{} `json:"args"`
	}
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return invalidParams(id, "malformed call_dynamic_tool arguments: "+err.Error())
	}
	if args.Group == "" {
		return invalidParams(id, "call_dynamic_tool requires group")
	}
	if args.Name == "" {
		return invalidParams(id, "call_dynamic_tool requires name")
	}

	upstreamResp, err := s.client.CallTool(ctx, args.Group, args.Name, args.Args)
	if err != nil {
		return errorResponse(id, err)
	}
	if upstreamResp.Error != nil {
		return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: id, Error: upstreamResp.Error}
	}

	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: id, Result: upstreamResp.Result}
}

// toolCallResult wraps payload as a tools/call result whose content is
// a single JSON text block, matching mcp.NewToolResultText's wire
// shape for the meta-tools' own (non-passthrough) results.
func toolCallResult(id interface{}, payload json.RawMessage) *transport.JsonRpcResponse {
	result := mcp.NewToolResultText(string(payload))
	marshaled, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, err)
	}
	return &transport.JsonRpcResponse{JSONRPC: "2.0", ID: id, Result: marshaled}
}

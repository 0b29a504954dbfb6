// Package mcpserver speaks MCP JSON-RPC 2.0 on the downstream stdio
// connection and presents exactly two meta-tools plus capability-gated
// passthrough of resources/* and prompts/* (spec.md §4.4). It is a
// hand-rolled router rather than mark3labs/mcp-go's server.MCPServer,
// because every method here dispatches to a group chosen at request
// time rather than to a static, pre-registered tool table.
package mcpserver

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/proxyclient"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/transport"

	"go.uber.org/zap"
)

// protocolVersion is the downstream MCP protocol version string
// advertised in initialize (spec.md §6).
const protocolVersion = "2024-11-05"

// proxyClient is the narrow slice of *proxyclient.Client the router
// and meta-tools need. Declaring it here (rather than depending on
// the concrete type) keeps this package's tests free of real
// transports, mirroring the TokenSource seam between transport and
// proxyclient.
type proxyClient interface {
	ListGroups(name string) []proxyclient.GroupDescriptor
	CallTool(ctx context.Context, group, tool string, args map[string]interface{}) (*transport.JsonRpcResponse, error)
	Proxy(ctx context.Context, group, method string, params json.RawMessage) (*transport.JsonRpcResponse, error)
	GroupsWithFeature(feature string) []string
}

// Server owns the downstream protocol surface. One Server owns one
// ProxyClient (spec.md §2).
type Server struct {
	client proxyClient
	logger *zap.Logger

	mu         sync.Mutex
	resourceOf map[string]groupBinding // uri -> owning group, accumulated from every resources/list seen; entries are never removed
	promptOf   map[string]groupBinding // prompt name -> owning group, accumulated from every prompts/list seen; entries are never removed
}

// groupBinding is one cached uri/name -> group mapping. ambiguous is
// sticky: once two distinct groups have reported the same key, later
// resources/list or prompts/list calls can't un-ambiguate it for the
// life of the Server (spec.md §4.4 requires failing
// the lookup with -32602, not guessing which group "wins").
type groupBinding struct {
	group     string
	ambiguous bool
}

// New constructs a Server forwarding through client.
func New(client proxyClient, logger *zap.Logger) *Server {
	return &Server{
		client:     client,
		logger:     logger.Named("mcpserver"),
		resourceOf: make(map[string]groupBinding),
		promptOf:   make(map[string]groupBinding),
	}
}

func (s *Server) rememberResource(uri, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceOf[uri] = mergeBinding(s.resourceOf[uri], group)
}

// resourceGroup resolves uri to the group that owns it. found is
// false when uri was never seen; ambiguous is true when two distinct
// groups have both reported it, in which case group is empty and the
// caller must reject the request rather than pick one.
func (s *Server) resourceGroup(uri string) (group string, found, ambiguous bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.resourceOf[uri]
	if !ok {
		return "", false, false
	}
	return b.group, true, b.ambiguous
}

func (s *Server) rememberPrompt(name, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptOf[name] = mergeBinding(s.promptOf[name], group)
}

// promptGroup resolves name the same way resourceGroup resolves uri.
func (s *Server) promptGroup(name string) (group string, found, ambiguous bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.promptOf[name]
	if !ok {
		return "", false, false
	}
	return b.group, true, b.ambiguous
}

func mergeBinding(existing groupBinding, group string) groupBinding {
	if existing.group == "" {
		return groupBinding{group: group}
	}
	if existing.ambiguous || existing.group != group {
		return groupBinding{ambiguous: true}
	}
	return existing
}

package proxyclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/config"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/secureenv"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/transport"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// retry policy constants (spec.md §4.3).
const (
	retryBase       = 2 * time.Second
	retryMaxBackoff = 30 * time.Second
	retryInterval   = 30 * time.Second
)

// GroupDescriptor is one entry of list_groups' result, consumed by the
// get_dynamic_tools meta-tool.
type GroupDescriptor struct {
	Name        string
	Status      string
	Description string
	Error       string
	Tools       []mcp.Tool
}

// Client owns the group table and every live transport (spec.md §4.3).
// Group connection is serialized under mu only for the table swap;
// transport I/O always happens after the lock is released.
type Client struct {
	mu     sync.RWMutex
	groups map[string]*GroupState
	descrs map[string]string // group -> configured description, kept across reconnects
	cfg    *config.Config    // last generation passed to ReconnectAll, for retries

	tokens  transport.TokenSource
	logger  *zap.Logger
	timeout time.Duration

	retryCancel context.CancelFunc
	retryWG     sync.WaitGroup
}

// New constructs an empty Client. Call ReconnectAll to populate the
// group table and StartRetryLoop to begin the background retry ticker.
func New(logger *zap.Logger, tokens transport.TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = config.DefaultCallToolTimeout
	}
	return &Client{
		groups:  make(map[string]*GroupState),
		descrs:  make(map[string]string),
		tokens:  tokens,
		logger:  logger.Named("proxyclient"),
		timeout: timeout,
	}
}

// StartRetryLoop launches the background ticker that invokes
// RetryFailed every retryInterval, until ctx is cancelled or Close is
// called.
func (c *Client) StartRetryLoop(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.retryCancel = cancel
	c.retryWG.Add(1)
	go func() {
		defer c.retryWG.Done()
		ticker := time.NewTicker(retryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if cfg := c.currentConfig(); cfg != nil {
					c.RetryFailed(ctx, cfg)
				}
			}
		}
	}()
}

// Close cancels the retry loop and drops every live transport.
func (c *Client) Close() error {
	if c.retryCancel != nil {
		c.retryCancel()
	}
	c.retryWG.Wait()

	c.mu.Lock()
	groups := c.groups
	c.groups = make(map[string]*GroupState)
	c.mu.Unlock()

	for name, g := range groups {
		if g.Connected != nil {
			if err := g.Connected.Transport.Close(); err != nil {
				c.logger.Warn("error closing transport", zap.String("group", name), zap.Error(err))
			}
		}
	}
	return nil
}

// ReconnectAll atomically replaces the group table (spec.md §4.3).
// New transports are built for every group in cfg concurrently; the
// old table is swapped out, and its transports destroyed, only after
// every new group has settled into Connected or Failed.
func (c *Client) ReconnectAll(ctx context.Context, cfg *config.Config) {
	type result struct {
		name  string
		state *GroupState
	}

	results := make(chan result, len(cfg.Servers))
	var wg sync.WaitGroup

	for name, upstream := range cfg.Servers {
		wg.Add(1)
		go func(name string, upstream *config.UpstreamConfig) {
			defer wg.Done()
			state := c.connectOne(ctx, name, upstream)
			results <- result{name: name, state: state}
		}(name, upstream)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	newGroups := make(map[string]*GroupState, len(cfg.Servers))
	newDescrs := make(map[string]string, len(cfg.Servers))
	for r := range results {
		newGroups[r.name] = r.state
		newDescrs[r.name] = cfg.Servers[r.name].Description
	}

	c.mu.Lock()
	oldGroups := c.groups
	c.groups = newGroups
	c.descrs = newDescrs
	c.cfg = cfg
	c.mu.Unlock()

	for name, g := range oldGroups {
		if g.Connected != nil {
			if err := g.Connected.Transport.Close(); err != nil {
				c.logger.Warn("error closing previous-generation transport", zap.String("group", name), zap.Error(err))
			}
		}
	}
}

// connectOne builds a transport for one group, performs the
// initialize/notifications/tools-list handshake, and returns the
// resulting GroupState. It never returns nil, and it never panics:
// any failure becomes a Failed state (spec.md §4.3, §7 TransportError).
func (c *Client) connectOne(ctx context.Context, name string, upstream *config.UpstreamConfig) *GroupState {
	if upstream.Quarantined {
		return quarantined()
	}

	t, err := c.openTransport(ctx, name, upstream)
	if err != nil {
		c.logger.Warn("connect failed", zap.String("group", name), zap.Error(err))
		return failed(1, err.Error(), nextRetryAt(1))
	}

	tools, enabledFeatures, err := c.handshake(ctx, t, upstream)
	if err != nil {
		_ = t.Close()
		c.logger.Warn("handshake failed", zap.String("group", name), zap.Error(err))
		return failed(1, err.Error(), nextRetryAt(1))
	}

	return connected(t, tools, enabledFeatures)
}

// configurableTokenSource is implemented by internal/authstore.Store.
// Declared narrowly here so proxyclient doesn't import authstore; the
// entrypoint wires the concrete *authstore.Store in as a
// transport.TokenSource.
type configurableTokenSource interface {
	transport.TokenSource
	Configure(group string, cfg *config.UpstreamConfig)
}

func (c *Client) openTransport(ctx context.Context, name string, upstream *config.UpstreamConfig) (transport.Transport, error) {
	if upstream.UsesOAuth() {
		if cs, ok := c.tokens.(configurableTokenSource); ok {
			cs.Configure(name, upstream)
		}
	}

	switch {
	case upstream.IsStdio():
		env := mergedEnv(upstream.Env)
		return transport.OpenStdio(ctx, name, upstream, env)
	case upstream.IsHTTP():
		return transport.OpenHTTP(ctx, name, upstream, c.tokens)
	case upstream.IsSSE():
		return transport.OpenSSE(ctx, name, upstream, c.tokens)
	default:
		return nil, fmt.Errorf("unknown protocol %q for group %s", upstream.Protocol, name)
	}
}

// mergedEnv builds a stdio child's environment: the safe, allow-listed
// system environment plus the group's configured overrides, the same
// inherit-then-override idiom the teacher's Docker/PATH recovery path
// uses for spawning tool subprocesses.
func mergedEnv(custom map[string]string) []string {
	envCfg := secureenv.DefaultEnvConfig()
	envCfg.CustomVars = custom
	return secureenv.NewManager(envCfg).BuildSecureEnvironment()
}

// handshake performs initialize, notifications/initialized, and
// (when the tools feature is enabled) tools/list against a freshly
// opened transport (spec.md §4.3).
func (c *Client) handshake(ctx context.Context, t transport.Transport, upstream *config.UpstreamConfig) ([]mcp.Tool, config.Features, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	initResp, err := t.Request(ctx, &transport.JsonRpcRequest{JSONRPC: "2.0", ID: int64(1), Method: "initialize"})
	if err != nil {
		return nil, config.Features{}, err
	}
	if initResp.Error != nil {
		return nil, config.Features{}, fmt.Errorf("initialize: %s", initResp.Error.Message)
	}

	var initResult mcp.InitializeResult
	if err := json.Unmarshal(initResp.Result, &initResult); err != nil {
		return nil, config.Features{}, fmt.Errorf("decoding initialize result: %w", err)
	}

	if _, err := t.Request(ctx, &transport.JsonRpcRequest{JSONRPC: "2.0", Method: "notifications/initialized"}); err != nil {
		return nil, config.Features{}, err
	}

	advertised := config.Features{
		Tools:     initResult.Capabilities.Tools != nil,
		Resources: initResult.Capabilities.Resources != nil,
		Prompts:   initResult.Capabilities.Prompts != nil,
	}
	enabledFeatures := upstream.EnabledFeatures().Intersect(advertised)

	var tools []mcp.Tool
	if enabledFeatures.Tools {
		listResp, err := t.Request(ctx, &transport.JsonRpcRequest{JSONRPC: "2.0", ID: int64(2), Method: "tools/list"})
		if err != nil {
			return nil, config.Features{}, err
		}
		if listResp.Error != nil {
			return nil, config.Features{}, fmt.Errorf("tools/list: %s", listResp.Error.Message)
		}
		var listResult mcp.ListToolsResult
		if err := json.Unmarshal(listResp.Result, &listResult); err != nil {
			return nil, config.Features{}, fmt.Errorf("decoding tools/list result: %w", err)
		}
		tools = listResult.Tools
	}

	return tools, enabledFeatures, nil
}

func nextRetryAt(attempts int) time.Time {
	backoff := retryBase
	for i := 1; i < attempts; i++ {
		backoff *= 2
		if backoff >= retryMaxBackoff {
			backoff = retryMaxBackoff
			break
		}
	}
	return time.Now().Add(backoff)
}

// currentConfig returns the config generation passed to the most
// recent ReconnectAll, or nil before the first call.
func (c *Client) currentConfig() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// RetryFailed attempts to move every Failed group whose next_retry_at
// has elapsed back to Connected, using cfg to rebuild each group's
// transport (spec.md §4.3).
func (c *Client) RetryFailed(ctx context.Context, cfg *config.Config) {
	now := time.Now()

	c.mu.RLock()
	type due struct {
		name     string
		attempts int
	}
	var pending []due
	for name, g := range c.groups {
		if g.Failed != nil && !g.Failed.NextRetryAt.After(now) {
			pending = append(pending, due{name: name, attempts: g.Failed.Attempts})
		}
	}
	c.mu.RUnlock()

	for _, p := range pending {
		upstream, ok := cfg.Servers[p.name]
		if !ok {
			continue
		}

		var state *GroupState
		if upstream.Quarantined {
			continue
		}

		t, err := c.openTransport(ctx, p.name, upstream)
		if err != nil {
			attempts := p.attempts + 1
			state = failed(attempts, err.Error(), nextRetryAt(attempts))
		} else if tools, enabledFeatures, err := c.handshake(ctx, t, upstream); err != nil {
			_ = t.Close()
			attempts := p.attempts + 1
			state = failed(attempts, err.Error(), nextRetryAt(attempts))
		} else {
			state = connected(t, tools, enabledFeatures)
		}

		c.mu.Lock()
		if existing, ok := c.groups[p.name]; ok && existing.Failed != nil {
			c.groups[p.name] = state
		} else if state.Connected != nil {
			// table changed underneath us (e.g. reconnect_all raced);
			// avoid leaking the transport we just opened.
			c.mu.Unlock()
			_ = state.Connected.Transport.Close()
			continue
		}
		c.mu.Unlock()
	}
}

// ListGroups returns a descriptor per group for get_dynamic_tools. If
// name is non-empty, the result is narrowed to that one group.
func (c *Client) ListGroups(name string) []GroupDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []GroupDescriptor
	for groupName, g := range c.groups {
		if name != "" && groupName != name {
			continue
		}
		d := GroupDescriptor{
			Name:        groupName,
			Status:      g.Status(),
			Description: c.descrs[groupName],
		}
		if g.Connected != nil {
			d.Tools = g.Connected.Tools
		}
		if g.Failed != nil {
			d.Error = g.Failed.LastError
		}
		out = append(out, d)
	}
	return out
}

// CallTool forwards tools/call to the named group (spec.md §4.3).
func (c *Client) CallTool(ctx context.Context, group, tool string, args map[string]interface{}) (*transport.JsonRpcResponse, error) {
	payload, err := json.Marshal(struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}{Name: tool, Arguments: args})
	if err != nil {
		return nil, err
	}
	return c.Proxy(ctx, group, "tools/call", payload)
}

// Proxy is the generic forwarder behind resources/* and prompts/*
// (spec.md §4.3). It enforces the capability gate before contacting
// any upstream.
func (c *Client) Proxy(ctx context.Context, group, method string, params json.RawMessage) (*transport.JsonRpcResponse, error) {
	t, err := c.transportFor(group, method)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return t.Request(ctx, &transport.JsonRpcRequest{JSONRPC: "2.0", ID: int64(time.Now().UnixNano()), Method: method, Params: params})
}

// CapabilityError reports that a group does not forward the requested
// feature (spec.md §7 CapabilityError); the caller maps it to -32601.
type CapabilityError struct {
	Group   string
	Feature string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("group %s does not enable %s", e.Group, e.Feature)
}

// UnknownGroupError reports a group name absent from the table; the
// caller maps it to -32602.
type UnknownGroupError struct{ Group string }

func (e *UnknownGroupError) Error() string { return fmt.Sprintf("unknown group %q", e.Group) }

func (c *Client) transportFor(group, method string) (transport.Transport, error) {
	c.mu.RLock()
	g, ok := c.groups[group]
	c.mu.RUnlock()

	if !ok {
		return nil, &UnknownGroupError{Group: group}
	}
	if g.Connected == nil {
		return nil, fmt.Errorf("group %s is not connected", group)
	}

	feature := featureForMethod(method)
	if feature != "" && !hasFeature(g.Connected.EnabledFeatures, feature) {
		return nil, &CapabilityError{Group: group, Feature: feature}
	}

	return g.Connected.Transport, nil
}

func featureForMethod(method string) string {
	switch {
	case method == "tools/call" || method == "tools/list":
		return "tools"
	case method == "resources/list" || method == "resources/read" || method == "resources/templates/list":
		return "resources"
	case method == "prompts/list" || method == "prompts/get":
		return "prompts"
	default:
		return ""
	}
}

func hasFeature(f config.Features, feature string) bool {
	switch feature {
	case "tools":
		return f.Tools
	case "resources":
		return f.Resources
	case "prompts":
		return f.Prompts
	default:
		return false
	}
}

// GroupsWithFeature returns every Connected group name that has
// feature enabled, used to aggregate resources/list and prompts/list
// when the Server's caller omits an explicit group.
func (c *Client) GroupsWithFeature(feature string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for name, g := range c.groups {
		if g.Connected != nil && hasFeature(g.Connected.EnabledFeatures, feature) {
			names = append(names, name)
		}
	}
	return names
}

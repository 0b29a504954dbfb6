package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/config"

	"github.com/mark3labs/mcp-go/client"
	gotransport "github.com/mark3labs/mcp-go/client/transport"
	"go.uber.org/zap"
)

// killGrace is the spec.md §4.2 grace window between SIGTERM and
// SIGKILL for a stdio child's process group.
const killGrace = 2 * time.Second

// Stdio spawns an upstream MCP server as a child process and speaks
// newline-delimited JSON-RPC over its stdin/stdout (spec.md §4.2).
type Stdio struct {
	mu      sync.Mutex
	client  *client.Client
	pgid    int
	logger  *zap.Logger
	closed  bool
}

// OpenStdio starts the child named by cfg.Command/Args with the
// merged environment, placing it in its own process group so the
// whole tree can be signaled on Close.
func OpenStdio(ctx context.Context, group string, cfg *config.UpstreamConfig, env []string) (*Stdio, error) {
	logger := zap.L().Named("transport.stdio").With(zap.String("group", group))

	if cfg.Command == "" {
		return nil, NewError(KindSpawn, "no command specified", nil)
	}

	s := &Stdio{logger: logger}
	cmdFunc := newProcessGroupCommandFunc(logger, func(pgid int) {
		s.mu.Lock()
		s.pgid = pgid
		s.mu.Unlock()
	})
	stdioTransport := gotransport.NewStdioWithOptions(cfg.Command, env, cfg.Args,
		gotransport.WithCommandFunc(cmdFunc))

	mcpClient := client.NewClient(stdioTransport)
	if err := mcpClient.Start(ctx); err != nil {
		return nil, NewError(KindSpawn, fmt.Sprintf("starting %s", cfg.Command), err)
	}

	s.client = mcpClient
	return s, nil
}

// Request implements Transport.
func (s *Stdio) Request(ctx context.Context, req *JsonRpcRequest) (*JsonRpcResponse, error) {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return nil, NewError(KindPeerClosed, "transport closed", nil)
	}
	return dispatch(ctx, c, req)
}

// Close implements Transport. Idempotent: the child receives SIGTERM,
// then SIGKILL after killGrace if it has not exited, and a second call
// is a no-op (spec.md §4.2, §8 "close() is idempotent").
func (s *Stdio) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	if s.pgid > 0 {
		killProcessGroup(s.pgid, s.logger, killGrace)
	}
	return nil
}

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

// httpRequestTimeout mirrors the teacher's increased timeout for
// long-lived streamable-HTTP connections.
const httpRequestTimeout = 180 * time.Second

// TokenSource supplies a live OAuth access token for one upstream
// group. Declared narrowly here (rather than importing
// internal/authstore) so the transport package carries no dependency
// on the token store; internal/proxyclient wires the real
// implementation in.
type TokenSource interface {
	AccessToken(ctx context.Context, group string) (string, error)
}

// Http speaks streamable-HTTP JSON-RPC to one upstream over a
// persistent connection (spec.md §4.2). The access token is fetched
// once at open and sent as a static header; it is not refreshed for
// the life of the transport, and nothing reopens the transport on an
// auth failure.
type Http struct {
	mu     sync.Mutex
	client *client.Client
	logger *zap.Logger
	closed bool
}

// OpenHTTP dials the upstream named by cfg.URL. When cfg.UsesOAuth()
// is true, tokens is required and the current access token is fetched
// once and injected as a static "Authorization: Bearer" header
// alongside any configured headers.
func OpenHTTP(ctx context.Context, group string, cfg *config.UpstreamConfig, tokens TokenSource) (*Http, error) {
	logger := zap.L().Named("transport.http").With(zap.String("group", group))

	if cfg.URL == "" {
		return nil, NewError(KindConnect, "no URL specified for HTTP transport", nil)
	}

	mcpClient, err := newHTTPClient(ctx, cfg, group, tokens)
	if err != nil {
		return nil, NewError(KindConnect, fmt.Sprintf("connecting to %s", cfg.URL), err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, NewError(KindConnect, fmt.Sprintf("starting client for %s", cfg.URL), err)
	}

	return &Http{client: mcpClient, logger: logger}, nil
}

func newHTTPClient(ctx context.Context, cfg *config.UpstreamConfig, group string, tokens TokenSource) (*client.Client, error) {
	headers := mergedHeaders(cfg.Headers)

	if cfg.UsesOAuth() {
		if tokens == nil {
			return nil, fmt.Errorf("group %s declares oauth but no token source is configured", group)
		}
		token, err := tokens.AccessToken(ctx, group)
		if err != nil {
			return nil, NewError(KindAuth, fmt.Sprintf("acquiring access token for %s", group), err)
		}
		headers["Authorization"] = "Bearer " + token
	}

	if len(headers) > 0 {
		httpTransport, err := gotransport.NewStreamableHTTP(cfg.URL, gotransport.WithHTTPHeaders(headers))
		if err != nil {
			return nil, err
		}
		return client.NewClient(httpTransport), nil
	}

	httpTransport, err := gotransport.NewStreamableHTTP(cfg.URL, gotransport.WithHTTPTimeout(httpRequestTimeout))
	if err != nil {
		return nil, err
	}
	return client.NewClient(httpTransport), nil
}

func mergedHeaders(configured map[string]string) map[string]string {
	headers := make(map[string]string, len(configured)+1)
	for k, v := range configured {
		headers[k] = v
	}
	return headers
}

// Request implements Transport.
func (h *Http) Request(ctx context.Context, req *JsonRpcRequest) (*JsonRpcResponse, error) {
	h.mu.Lock()
	c := h.client
	h.mu.Unlock()
	if c == nil {
		return nil, NewError(KindPeerClosed, "transport closed", nil)
	}
	return dispatch(ctx, c, req)
}

// Close implements Transport. Idempotent.
func (h *Http) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.client != nil {
		_ = h.client.Close()
		h.client = nil
	}
	return nil
}

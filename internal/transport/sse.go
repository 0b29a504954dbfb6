package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/config"

	"github.com/mark3labs/mcp-go/client"
	"go.uber.org/zap"
)

// sseIdleTimeout mirrors the teacher's longer keep-alive timeout for
// long-lived SSE connections.
const sseIdleTimeout = 180 * time.Second

// sse reconnect backoff, same shape as the group-level retry policy
// (spec.md §4.3 "base = 2s, max_backoff = 30s").
const (
	sseReconnectBase = 2 * time.Second
	sseReconnectMax  = 30 * time.Second
)

// idBox remembers the last SSE event id seen on the wire so a
// reconnect can carry Last-Event-ID and resume without event loss
// (spec.md §4.2).
type idBox struct {
	mu sync.Mutex
	id string
}

func (b *idBox) set(id string) {
	if id == "" {
		return
	}
	b.mu.Lock()
	b.id = id
	b.mu.Unlock()
}

func (b *idBox) get() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// lastEventIDTransport injects Last-Event-ID on outbound requests and
// scans the response body for "id:" lines to keep the tracker current,
// without interpreting or buffering the SSE stream itself.
type lastEventIDTransport struct {
	next    http.RoundTripper
	tracker *idBox
}

func (t *lastEventIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := t.tracker.get(); id != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Last-Event-ID", id)
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil || resp.Body == nil {
		return resp, err
	}
	resp.Body = &idScanningBody{ReadCloser: resp.Body, tracker: t.tracker}
	return resp, nil
}

// idScanningBody passes bytes through unchanged while watching for
// SSE "id: <value>" lines in the stream.
type idScanningBody struct {
	io.ReadCloser
	tracker *idBox
	partial bytes.Buffer
}

func (b *idScanningBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.scan(p[:n])
	}
	return n, err
}

func (b *idScanningBody) scan(chunk []byte) {
	b.partial.Write(chunk)
	for {
		line, rerr := b.partial.ReadString('\n')
		if rerr != nil {
			// incomplete line: push it back for the next read
			b.partial.Reset()
			b.partial.WriteString(line)
			return
		}
		const prefix = "id:"
		text := bytes.TrimRight([]byte(line), "\r\n")
		if len(text) >= len(prefix) && string(text[:len(prefix)]) == prefix {
			id := bytes.TrimLeft(text[len(prefix):], " \t")
			b.tracker.set(string(id))
		}
	}
}

// Sse speaks JSON-RPC over an SSE GET stream with a companion POST
// endpoint, per MCP-streamable conventions (spec.md §4.2). It
// transparently reconnects on a dropped peer, carrying Last-Event-ID,
// with capped exponential backoff.
type Sse struct {
	mu      sync.Mutex
	client  *client.Client
	cfg     *config.UpstreamConfig
	group   string
	tracker *idBox
	logger  *zap.Logger
	closed  bool
}

// OpenSSE dials the upstream named by cfg.URL.
func OpenSSE(ctx context.Context, group string, cfg *config.UpstreamConfig, tokens TokenSource) (*Sse, error) {
	logger := zap.L().Named("transport.sse").With(zap.String("group", group))

	if cfg.URL == "" {
		return nil, NewError(KindConnect, "no URL specified for SSE transport", nil)
	}

	s := &Sse{cfg: cfg, group: group, tracker: &idBox{}, logger: logger}

	headers := mergedHeaders(cfg.Headers)
	if cfg.UsesOAuth() {
		if tokens == nil {
			return nil, NewError(KindAuth, fmt.Sprintf("group %s declares oauth but no token source is configured", group), nil)
		}
		token, err := tokens.AccessToken(ctx, group)
		if err != nil {
			return nil, NewError(KindAuth, fmt.Sprintf("acquiring access token for %s", group), err)
		}
		headers["Authorization"] = "Bearer " + token
	}

	sseClient, err := s.dial(headers)
	if err != nil {
		return nil, NewError(KindConnect, fmt.Sprintf("connecting to %s", cfg.URL), err)
	}
	if err := sseClient.Start(ctx); err != nil {
		return nil, NewError(KindConnect, fmt.Sprintf("starting client for %s", cfg.URL), err)
	}

	s.client = sseClient
	return s, nil
}

func (s *Sse) dial(headers map[string]string) (*client.Client, error) {
	httpClient := &http.Client{
		Timeout: sseIdleTimeout,
		Transport: &lastEventIDTransport{
			next: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
				MaxIdleConnsPerHost: 5,
			},
			tracker: s.tracker,
		},
	}

	if len(headers) > 0 {
		sseClient, err := client.NewSSEMCPClient(s.cfg.URL,
			client.WithHTTPClient(httpClient),
			client.WithHeaders(headers))
		if err != nil {
			return nil, err
		}
		return sseClient, nil
	}

	sseClient, err := client.NewSSEMCPClient(s.cfg.URL, client.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}
	return sseClient, nil
}

// Request implements Transport. A peer-closed failure triggers
// reconnect attempts with capped exponential backoff, repeated until
// one succeeds or ctx is done; the request is then sent once more on
// the new connection.
func (s *Sse) Request(ctx context.Context, req *JsonRpcRequest) (*JsonRpcResponse, error) {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return nil, NewError(KindPeerClosed, "transport closed", nil)
	}

	resp, err := dispatch(ctx, c, req)
	if err == nil {
		return resp, nil
	}
	if !isPeerClosed(err) {
		return nil, err
	}

	if rerr := s.reconnect(ctx); rerr != nil {
		return nil, rerr
	}

	s.mu.Lock()
	c = s.client
	s.mu.Unlock()
	return dispatch(ctx, c, req)
}

// isPeerClosed reports whether err means the SSE connection itself
// died mid-stream, as opposed to an application-level JSON-RPC error
// the upstream returned over a still-healthy connection. dispatch
// passes mark3labs/mcp-go client errors through unwrapped, so most of
// what reaches here is a raw net/http failure, not a *transport.Error
// — the substring check below is the same connection-error heuristic
// used elsewhere in the pack for distinguishing a dead socket from a
// protocol-level failure, since net/http and the SSE client don't
// expose a typed error for "peer closed the stream".
func isPeerClosed(err error) bool {
	if err == nil {
		return false
	}

	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindPeerClosed || te.Kind == KindConnect
	}

	errStr := strings.ToLower(err.Error())
	connectionErrors := []string{
		"eof",
		"connection reset",
		"connection refused",
		"broken pipe",
		"use of closed network connection",
		"context deadline exceeded",
		"no such host",
		"network is unreachable",
	}
	for _, ce := range connectionErrors {
		if strings.Contains(errStr, ce) {
			return true
		}
	}
	return false
}

// reconnect retries dialing with Last-Event-ID carried via s.tracker,
// backing off base*2^attempt capped at sseReconnectMax, until ctx is
// done.
func (s *Sse) reconnect(ctx context.Context) error {
	backoff := sseReconnectBase
	for {
		headers := mergedHeaders(s.cfg.Headers)
		if id := s.tracker.get(); id != "" {
			s.logger.Debug("resuming SSE stream", zap.String("last_event_id", id))
		}

		newClient, err := s.dial(headers)
		if err == nil {
			if serr := newClient.Start(ctx); serr == nil {
				s.mu.Lock()
				old := s.client
				s.client = newClient
				s.mu.Unlock()
				if old != nil {
					_ = old.Close()
				}
				return nil
			}
			_ = newClient.Close()
		}

		select {
		case <-ctx.Done():
			return NewError(KindPeerClosed, "sse reconnect aborted", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > sseReconnectMax {
			backoff = sseReconnectMax
		}
	}
}

// Close implements Transport. Idempotent.
func (s *Sse) Close() error {
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
	return nil
}

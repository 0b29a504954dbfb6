package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/transport"

	"go.uber.org/zap"
)

// maxLineBytes bounds one downstream JSON-RPC line; large tool
// payloads are still well under this, and it keeps a malformed or
// hostile peer from growing the scanner's buffer without limit.
const maxLineBytes = 32 * 1024 * 1024

// Serve runs the newline-delimited JSON-RPC 2.0 read/write loop over
// r/w (spec.md §6 "downstream wire") until r is exhausted or ctx is
// cancelled. Requests are read in order off r, but each is dispatched
// to Handle in its own goroutine: spec.md §5 allows forwards to
// complete out of order with respect to each other, so a slow forward
// only delays its own response, never the next line's read. Every
// response still carries its originating request's id, and the write
// side is serialized through a single channel so concurrent handlers
// never interleave partial writes.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	out := make(chan *transport.JsonRpcResponse, 64)
	writeDone := make(chan struct{})
	go s.writeLoop(w, out, writeDone)

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(out)
		<-writeDone
	}()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}

		req, rpcErr := parseRequest(line)
		if rpcErr != nil {
			resp := &transport.JsonRpcResponse{JSONRPC: "2.0", Error: rpcErr}
			if req != nil {
				resp.ID = req.ID
			}
			out <- resp
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if resp := s.Handle(ctx, req); resp != nil {
				out <- resp
			}
		}()
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return nil
}

func (s *Server) writeLoop(w io.Writer, out <-chan *transport.JsonRpcResponse, done chan<- struct{}) {
	defer close(done)
	enc := json.NewEncoder(w)
	for resp := range out {
		if err := enc.Encode(resp); err != nil {
			s.logger.Warn("writing downstream response", zap.Error(err))
			return
		}
	}
}

// parseRequest distinguishes a malformed JSON-RPC line (-32700 parse
// error, spec.md §4.4) from one that is valid JSON but missing the
// required method field (-32600 invalid request). The latter still
// returns the partially decoded request so its id, if any, can be
// echoed back to the caller per JSON-RPC convention.
func parseRequest(line []byte) (*transport.JsonRpcRequest, *transport.JsonRpcError) {
	var req transport.JsonRpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, &transport.JsonRpcError{Code: codeParseError, Message: err.Error()}
	}
	if req.Method == "" {
		return &req, &transport.JsonRpcError{Code: codeInvalidRequest, Message: "missing method"}
	}
	return &req, nil
}

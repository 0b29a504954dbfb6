package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeHandlesEachLineAndWritesOneResponsePerRequest(t *testing.T) {
	s := newTestServer(&fakeProxyClient{})

	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n",
	)
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Serve(ctx, in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "notification must not produce a response line")

	var ids []float64
	for _, line := range lines {
		var resp transport.JsonRpcResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		id, ok := resp.ID.(float64)
		require.True(t, ok)
		ids = append(ids, id)
	}
	assert.ElementsMatch(t, []float64{1, 2}, ids)
}

func TestServeReturnsParseErrorForMalformedLine(t *testing.T) {
	s := newTestServer(&fakeProxyClient{})

	in := strings.NewReader("not json\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	var resp transport.JsonRpcResponse
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}

func TestServeReturnsInvalidRequestForValidJSONMissingMethod(t *testing.T) {
	s := newTestServer(&fakeProxyClient{})

	in := strings.NewReader(`{"jsonrpc":"2.0","id":7}` + "\n")
	var out bytes.Buffer

	require.NoError(t, s.Serve(context.Background(), in, &out))

	var resp transport.JsonRpcResponse
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
	assert.Equal(t, float64(7), resp.ID, "id must be echoed back even when method is missing")
}

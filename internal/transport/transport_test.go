package transport

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMCPClient is a minimal mcpClient for exercising dispatch without
// a real upstream process or socket.
type fakeMCPClient struct {
	initializeResult *mcp.InitializeResult
	toolsResult      *mcp.ListToolsResult
	lastCallToolReq  mcp.CallToolRequest
	closeCalled      bool
}

func (f *fakeMCPClient) Initialize(_ context.Context, _ mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	return f.initializeResult, nil
}

func (f *fakeMCPClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return f.toolsResult, nil
}

func (f *fakeMCPClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.lastCallToolReq = req
	return &mcp.CallToolResult{}, nil
}

func (f *fakeMCPClient) ListResources(_ context.Context, _ mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	return &mcp.ListResourcesResult{}, nil
}

func (f *fakeMCPClient) ReadResource(_ context.Context, _ mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}

func (f *fakeMCPClient) ListResourceTemplates(_ context.Context, _ mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error) {
	return &mcp.ListResourceTemplatesResult{}, nil
}

func (f *fakeMCPClient) ListPrompts(_ context.Context, _ mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	return &mcp.ListPromptsResult{}, nil
}

func (f *fakeMCPClient) GetPrompt(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}

func (f *fakeMCPClient) Close() error {
	f.closeCalled = true
	return nil
}

func TestDispatchToolsCall(t *testing.T) {
	fake := &fakeMCPClient{}
	req := &JsonRpcRequest{
		JSONRPC: "2.0",
		ID:      float64(1),
		Method:  "tools/call",
		Params:  []byte(`{"name":"echo","arguments":{"text":"hi"}}`),
	}

	resp, err := dispatch(context.Background(), fake, req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "echo", fake.lastCallToolReq.Params.Name)
	assert.Equal(t, "hi", fake.lastCallToolReq.Params.Arguments.(map[string]interface{})["text"])
}

func TestDispatchNotificationReturnsNil(t *testing.T) {
	fake := &fakeMCPClient{}
	req := &JsonRpcRequest{JSONRPC: "2.0", Method: "notifications/initialized"}

	resp, err := dispatch(context.Background(), fake, req)
	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestDispatchUnsupportedMethod(t *testing.T) {
	fake := &fakeMCPClient{}
	req := &JsonRpcRequest{JSONRPC: "2.0", Method: "bogus/method"}

	resp, err := dispatch(context.Background(), fake, req)
	assert.Nil(t, resp)
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindFraming, terr.Kind)
}

func TestDispatchMalformedParams(t *testing.T) {
	fake := &fakeMCPClient{}
	req := &JsonRpcRequest{JSONRPC: "2.0", Method: "tools/call", Params: []byte(`not json`)}

	_, err := dispatch(context.Background(), fake, req)
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, KindFraming, terr.Kind)
}

func TestErrorWraps(t *testing.T) {
	cause := assert.AnError
	err := NewError(KindTimeout, "deadline exceeded", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "timeout")
}

package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestResourceGroupCacheRoundTrip(t *testing.T) {
	s := New(&fakeProxyClient{}, zap.NewNop())
	_, found, ambiguous := s.resourceGroup("file:///missing")
	assert.False(t, found)
	assert.False(t, ambiguous)

	s.rememberResource("file:///x", "alpha")
	group, found, ambiguous := s.resourceGroup("file:///x")
	assert.True(t, found)
	assert.False(t, ambiguous)
	assert.Equal(t, "alpha", group)
}

func TestResourceGroupCacheDetectsCollisionAcrossGroups(t *testing.T) {
	s := New(&fakeProxyClient{}, zap.NewNop())

	s.rememberResource("file:///shared", "alpha")
	s.rememberResource("file:///shared", "beta")

	group, found, ambiguous := s.resourceGroup("file:///shared")
	assert.True(t, found)
	assert.True(t, ambiguous)
	assert.Empty(t, group)
}

func TestResourceGroupCacheRepeatedSameGroupStaysUnambiguous(t *testing.T) {
	s := New(&fakeProxyClient{}, zap.NewNop())

	s.rememberResource("file:///x", "alpha")
	s.rememberResource("file:///x", "alpha")

	group, found, ambiguous := s.resourceGroup("file:///x")
	assert.True(t, found)
	assert.False(t, ambiguous)
	assert.Equal(t, "alpha", group)
}

func TestPromptGroupCacheRoundTrip(t *testing.T) {
	s := New(&fakeProxyClient{}, zap.NewNop())
	_, found, ambiguous := s.promptGroup("missing")
	assert.False(t, found)
	assert.False(t, ambiguous)

	s.rememberPrompt("greet", "alpha")
	group, found, ambiguous := s.promptGroup("greet")
	assert.True(t, found)
	assert.False(t, ambiguous)
	assert.Equal(t, "alpha", group)
}

func TestPromptGroupCacheDetectsCollisionAcrossGroups(t *testing.T) {
	s := New(&fakeProxyClient{}, zap.NewNop())

	s.rememberPrompt("greet", "alpha")
	s.rememberPrompt("greet", "beta")

	group, found, ambiguous := s.promptGroup("greet")
	assert.True(t, found)
	assert.True(t, ambiguous)
	assert.Empty(t, group)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBytes_Interpolation(t *testing.T) {
	t.Setenv("TOKEN", "abc123")

	raw := []byte(`{"mcpServers":{"h":{"type":"http","description":"x","url":"https://api.example/mcp","headers":{"Authorization":"Bearer ${TOKEN}"}}}}`)

	cfg, err := LoadBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc123", cfg.Servers["h"].Headers["Authorization"])
}

func TestLoadBytes_UndefinedPlaceholderPreservedVerbatim(t *testing.T) {
	t.Setenv("TOKEN_UNSET_XYZ", "")
	raw := []byte(`{"mcpServers":{"h":{"type":"http","description":"x","url":"https://api.example/mcp","headers":{"Authorization":"Bearer ${TOKEN_UNSET_XYZ_NOPE}"}}}}`)

	cfg, err := LoadBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, "Bearer ${TOKEN_UNSET_XYZ_NOPE}", cfg.Servers["h"].Headers["Authorization"])
}

func TestInterpolateString_SinglePassNoRescan(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "A" {
			return "${B}", true
		}
		return "", false
	}
	got := interpolateString("${A}", lookup, nil)
	assert.Equal(t, "${B}", got, "single-pass substitution must not re-scan its own output")
}

func TestInterpolateString_DollarWithoutBraceNotExpanded(t *testing.T) {
	got := interpolateString("$VAR is not expanded", func(string) (string, bool) { return "nope", true }, nil)
	assert.Equal(t, "$VAR is not expanded", got)
}

func TestInterpolateValue_DoesNotDescendIntoMapKeys(t *testing.T) {
	lookup := func(string) (string, bool) { return "REPLACED", true }
	v := interpolateValue(map[string]interface{}{"${KEY}": "${KEY}"}, lookup, nil)
	m := v.(map[string]interface{})
	_, keyUntouched := m["${KEY}"]
	assert.True(t, keyUntouched, "map keys must never be substituted")
	assert.Equal(t, "REPLACED", m["${KEY}"])
}

package configimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportErrorSatisfiesErrorInterface(t *testing.T) {
	var err error = &ImportError{Type: "parse", Message: "malformed JSON"}
	assert.Equal(t, "malformed JSON", err.Error())
}

func TestConfigFormatConstants(t *testing.T) {
	assert.Equal(t, ConfigFormat("claude_desktop"), FormatClaudeDesktop)
	assert.Equal(t, ConfigFormat("unknown"), FormatUnknown)
}

// Package configimport defines the contract a config-import
// collaborator would implement to turn another tool's MCP server
// config (Claude Desktop, Claude Code, Cursor, Codex, Gemini CLI, ...)
// into servers this proxy can add to its own config. Only the
// interface and its result types live here; every format-specific
// parser is an external collaborator out of scope for this proxy
// (spec.md §1 Non-goals).
package configimport

// ConfigFormat names a source tool's config dialect.
type ConfigFormat string

const (
	FormatUnknown       ConfigFormat = "unknown"
	FormatClaudeDesktop ConfigFormat = "claude_desktop"
	FormatClaudeCode    ConfigFormat = "claude_code"
	FormatCursor        ConfigFormat = "cursor"
	FormatCodex         ConfigFormat = "codex"
	FormatGemini        ConfigFormat = "gemini"
)

// ParsedServer is one server entry recovered from a source config,
// before it has been mapped onto this proxy's own config.UpstreamConfig
// shape.
type ParsedServer struct {
	Name         string
	SourceFormat ConfigFormat
	Fields       map[string]interface{}
	Warnings     []string
}

// ImportError is a structured failure from parsing or mapping a single
// source config.
type ImportError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	return e.Message
}

// Importer turns one source tool's config content into parsed servers.
// `mcpproxy import <tool-id>` resolves tool-id to an Importer
// implementation; this package ships none, so every lookup reports
// "not implemented" until an external collaborator registers one.
type Importer interface {
	// Format identifies which source dialect this Importer handles.
	Format() ConfigFormat

	// Parse turns raw source config content into ParsedServer entries.
	// FilePath is optional and used only to annotate error messages.
	Parse(content []byte, filePath string) ([]ParsedServer, *ImportError)
}

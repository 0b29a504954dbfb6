// Package config defines the proxy's configuration schema, loader, and
// environment-variable interpolation.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultCallToolTimeout is the recommended upper bound for a single
	// upstream transport request (spec.md §5).
	DefaultCallToolTimeout = 30 * time.Second

	// ProtocolStdio spawns a child process and speaks newline-delimited
	// JSON-RPC over its stdin/stdout.
	ProtocolStdio = "stdio"
	// ProtocolHTTP speaks MCP-streamable JSON-RPC over HTTP POST.
	ProtocolHTTP = "http"
	// ProtocolStreamableHTTP is an accepted synonym for ProtocolHTTP.
	ProtocolStreamableHTTP = "streamable-http"
	// ProtocolSSE receives a long-lived SSE stream plus a companion POST
	// endpoint for requests.
	ProtocolSSE = "sse"
)

// Duration wraps time.Duration so it marshals to/from JSON as a string
// ("30s", "5m") instead of a raw integer of nanoseconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the top-level, immutable-per-generation container
// (spec.md §3 "ServerConfig"). It is loaded once from disk by Load and
// replaced atomically by the watcher's reload path.
type Config struct {
	// Servers maps group name to its upstream configuration. Group
	// names are unique (a JSON object key) and case-sensitive.
	Servers map[string]*UpstreamConfig `json:"mcpServers"`

	// DataDir is the base directory for the OAuth token store
	// (DataDir/tokens/<group>.json). Defaults to $HOME/.mcpproxy.
	DataDir string `json:"data_dir,omitempty"`

	// CallToolTimeout bounds every transport request. Defaults to
	// DefaultCallToolTimeout when zero.
	CallToolTimeout Duration `json:"call_tool_timeout,omitempty" swaggertype:"string"`

	// Logging configures the ambient logging backend.
	Logging *LogConfig `json:"logging,omitempty"`
}

// LogConfig configures the zap-backed logging backend (ambient stack,
// SPEC_FULL.md §9).
type LogConfig struct {
	Level      string `json:"level,omitempty"`       // debug, info, warn, error
	EnableFile bool   `json:"enable_file,omitempty"` // rotate logs to LogDir via lumberjack
	LogDir     string `json:"log_dir,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// Features is the set of MCP capability classes the proxy forwards for
// a given group. A nil Features on UpstreamConfig means "all three".
type Features struct {
	Tools     bool `json:"tools"`
	Resources bool `json:"resources"`
	Prompts   bool `json:"prompts"`
}

// AllFeatures returns the features set enabling tools, resources, and
// prompts — the default when a group's config omits "features".
func AllFeatures() Features {
	return Features{Tools: true, Resources: true, Prompts: true}
}

// Intersect returns the feature set enabled by both the configured
// features and the upstream's advertised capabilities.
func (f Features) Intersect(other Features) Features {
	return Features{
		Tools:     f.Tools && other.Tools,
		Resources: f.Resources && other.Resources,
		Prompts:   f.Prompts && other.Prompts,
	}
}

// UpstreamConfig is the tagged-union per-group configuration
// (spec.md §3). The discriminator is Protocol ∈ {stdio, http,
// streamable-http, sse}, defaulting to stdio.
type UpstreamConfig struct {
	// Protocol selects the transport variant. Empty means "stdio".
	Protocol string `json:"type,omitempty"`

	// Description is shown verbatim to the downstream LLM via
	// get_dynamic_tools.
	Description string `json:"description,omitempty"`

	// Features narrows which MCP capability classes this group
	// forwards. Nil means all three.
	Features *Features `json:"features,omitempty"`

	// Quarantined groups are loaded but never auto-connected
	// (SPEC_FULL.md §3 addition).
	Quarantined bool `json:"quarantined,omitempty"`

	// stdio fields.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// http / sse fields.
	URL            string            `json:"url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	OAuthClientID  string            `json:"oauth_client_id,omitempty"`
	OAuthScopes    []string          `json:"oauth_scopes,omitempty"`

	// OAuth marks a group as requiring a bearer token even when
	// oauth_client_id is left blank, so the proxy attempts RFC 7591
	// dynamic client registration against the discovery document's
	// registration_endpoint instead of refusing to connect.
	OAuth bool `json:"oauth,omitempty"`
}

// IsStdio reports whether this group's discriminator selects the
// stdio transport (the default when Protocol is empty).
func (u *UpstreamConfig) IsStdio() bool {
	return u.Protocol == "" || u.Protocol == ProtocolStdio
}

// IsSSE reports whether this group selects the SSE transport.
func (u *UpstreamConfig) IsSSE() bool {
	return u.Protocol == ProtocolSSE
}

// IsHTTP reports whether this group selects the streamable-HTTP
// transport (either spelling).
func (u *UpstreamConfig) IsHTTP() bool {
	return u.Protocol == ProtocolHTTP || u.Protocol == ProtocolStreamableHTTP
}

// EnabledFeatures returns the group's configured features, defaulting
// to AllFeatures() when Features is nil.
func (u *UpstreamConfig) EnabledFeatures() Features {
	if u.Features == nil {
		return AllFeatures()
	}
	return *u.Features
}

// UsesOAuth reports whether this group needs a bearer token from the
// AuthStore, either because it names a pre-registered oauth_client_id
// or because it sets oauth: true and relies on dynamic client
// registration to obtain one at connect time (SPEC_FULL.md §11).
func (u *UpstreamConfig) UsesOAuth() bool {
	return (u.OAuthClientID != "" || u.OAuth) && (u.IsHTTP() || u.IsSSE())
}

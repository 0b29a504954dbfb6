package config

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Load reads path, applies one pass of ${NAME} environment
// interpolation, validates the result, and returns a ready-to-use
// Config (spec.md §4.1). Load never mutates process state beyond the
// single os.LookupEnv read per placeholder.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newLoadError(KindUnreadable, "", fmt.Errorf("reading %s: %w", path, err))
	}
	return parse(raw)
}

// LoadBytes parses content exactly as Load does, without touching the
// filesystem. Exported for tests and for callers that already have the
// file content in memory.
func LoadBytes(content []byte) (*Config, error) {
	return parse(content)
}

func parse(raw []byte) (*Config, error) {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, newLoadError(KindMalformedJSON, "", err)
	}

	logger := zap.L().Named("config")
	warn := func(name string) {
		logger.Warn("undefined environment placeholder left unsubstituted", zap.String("name", name))
	}

	interpolated := interpolateValue(generic, osLookup, warn).(map[string]interface{})

	normalized, err := json.Marshal(interpolated)
	if err != nil {
		return nil, newLoadError(KindMalformedJSON, "", err)
	}

	var cfg Config
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return nil, newLoadError(KindMalformedJSON, "", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]*UpstreamConfig{}
	}
	if cfg.CallToolTimeout == 0 {
		cfg.CallToolTimeout = Duration(DefaultCallToolTimeout)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfigPath returns $MCPPROXY_CONFIG if set, else
// dataDir/mcp_config.json, matching the program's documented fallback
// (spec.md §6).
func DefaultConfigPath(dataDir string) string {
	if p := os.Getenv("MCPPROXY_CONFIG"); p != "" {
		return p
	}
	return dataDir + "/mcp_config.json"
}

package secureenv

import (
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEnvConfig(t *testing.T) {
	cfg := DefaultEnvConfig()

	require.NotNil(t, cfg)
	assert.True(t, cfg.InheritSystemSafe)
	assert.True(t, cfg.EnhancePath)
	assert.Contains(t, cfg.AllowedSystemVars, "PATH")
	assert.Contains(t, cfg.AllowedSystemVars, "HOME")
	assert.NotNil(t, cfg.CustomVars)

	if runtime.GOOS == osWindows {
		assert.Contains(t, cfg.AllowedSystemVars, "USERPROFILE")
	} else {
		assert.Contains(t, cfg.AllowedSystemVars, "XDG_CONFIG_HOME")
	}
}

func TestNewManager(t *testing.T) {
	t.Run("nil config falls back to defaults", func(t *testing.T) {
		m := NewManager(nil)
		require.NotNil(t, m)
		assert.True(t, m.config.InheritSystemSafe)
		require.NotNil(t, m.pathDiscovery)
	})

	t.Run("custom config is kept as given", func(t *testing.T) {
		cfg := &EnvConfig{
			InheritSystemSafe: false,
			AllowedSystemVars: []string{"HOME"},
			CustomVars:        map[string]string{"FOO": "bar"},
		}
		m := NewManager(cfg)
		assert.False(t, m.config.InheritSystemSafe)
		assert.Equal(t, []string{"HOME"}, m.config.AllowedSystemVars)
	})
}

func TestIsEnvVarAllowed(t *testing.T) {
	cfg := &EnvConfig{
		AllowedSystemVars: []string{"PATH", "HOME", "LC_*"},
	}
	m := NewManager(cfg)

	tests := []struct {
		name    string
		envVar  string
		allowed bool
	}{
		{"allowed exact", "PATH=/usr/bin", true},
		{"allowed exact home", "HOME=/home/user", true},
		{"wildcard match", "LC_ALL=en_US.UTF-8", true},
		{"not allowed", "SECRET_KEY=abc123", false},
		{"malformed no equals", "NOTANASSIGNMENT", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, m.isEnvVarAllowed(tt.envVar))
		})
	}
}

func TestIsKeyAllowed(t *testing.T) {
	cfg := &EnvConfig{AllowedSystemVars: []string{"PATH", "LC_*"}}
	m := NewManager(cfg)

	assert.True(t, m.isKeyAllowed("PATH"))
	assert.True(t, m.isKeyAllowed("LC_TIME"))
	assert.False(t, m.isKeyAllowed("API_KEY"))
}

func TestBuildSecureEnvironment(t *testing.T) {
	t.Run("inheritance enabled includes allowed vars", func(t *testing.T) {
		require.NoError(t, os.Setenv("MCPPROXY_TEST_ALLOWED", "visible"))
		defer os.Unsetenv("MCPPROXY_TEST_ALLOWED")

		cfg := &EnvConfig{
			InheritSystemSafe: true,
			AllowedSystemVars: []string{"PATH", "MCPPROXY_TEST_ALLOWED"},
			CustomVars:        map[string]string{},
			EnhancePath:       false,
		}
		m := NewManager(cfg)
		env := m.BuildSecureEnvironment()

		assert.Contains(t, env, "MCPPROXY_TEST_ALLOWED=visible")
	})

	t.Run("inheritance disabled still applies custom vars", func(t *testing.T) {
		cfg := &EnvConfig{
			InheritSystemSafe: false,
			CustomVars:        map[string]string{"FOO": "bar"},
			EnhancePath:       false,
		}
		m := NewManager(cfg)
		env := m.BuildSecureEnvironment()

		assert.Contains(t, env, "FOO=bar")
		for _, e := range env {
			assert.False(t, strings.HasPrefix(e, "PATH="), "PATH should not appear when not inherited and enhancement is off")
		}
	})

	t.Run("EnhancePath false leaves inherited PATH untouched", func(t *testing.T) {
		require.NoError(t, os.Setenv("PATH", "/usr/bin:/bin"))
		cfg := &EnvConfig{
			InheritSystemSafe: true,
			AllowedSystemVars: []string{"PATH"},
			CustomVars:        map[string]string{},
			EnhancePath:       false,
		}
		m := NewManager(cfg)
		env := m.BuildSecureEnvironment()

		found := false
		for _, e := range env {
			if e == "PATH=/usr/bin:/bin" {
				found = true
			}
		}
		assert.True(t, found, "PATH should be inherited exactly, not enhanced, when EnhancePath is false")
	})
}

func TestSecurityScenarios(t *testing.T) {
	blocked := []string{
		"API_KEY", "SECRET_KEY", "AUTH_TOKEN", "ACCESS_TOKEN", "PASSWORD",
		"DB_PASSWORD", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"GITHUB_TOKEN", "STRIPE_SECRET_KEY", "OPENAI_API_KEY",
	}
	allowed := []string{"PATH", "HOME", "TMPDIR", "SHELL", "TERM", "LANG", "LC_ALL", "USER"}

	m := NewManager(DefaultEnvConfig())

	for _, key := range blocked {
		assert.False(t, m.isKeyAllowed(key), "%s must not be allowed through", key)
	}
	for _, key := range allowed {
		if runtime.GOOS == osWindows && key == "USER" {
			continue
		}
		assert.True(t, m.isKeyAllowed(key), "%s should be allowed through", key)
	}
}

func TestDiscoveredPathsExistOnDisk(t *testing.T) {
	m := NewManager(nil)
	for _, p := range m.pathDiscovery.DiscoveredPaths {
		info, err := os.Stat(p)
		assert.NoError(t, err, "discovered path should exist: %s", p)
		if err == nil {
			assert.True(t, info.IsDir())
		}
	}
}

func TestRealWorldNpxScenario(t *testing.T) {
	// An upstream configured as `command: npx, args: [-y, some-mcp-server]`
	// needs node's install directories on PATH even when the proxy was
	// started from a minimal launchd/systemd PATH.
	cfg := DefaultEnvConfig()
	m := NewManager(cfg)
	env := m.BuildSecureEnvironment()

	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
		}
	}
	assert.NotEmpty(t, path)
}

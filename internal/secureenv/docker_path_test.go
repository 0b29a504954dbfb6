package secureenv

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDockerPathEnhancement covers upstream servers launched inside a
// container with a deliberately minimal PATH — the scenario that
// motivated the EnhancePath toggle in the first place.
func TestDockerPathEnhancement(t *testing.T) {
	t.Run("disabled passes PATH through unchanged", func(t *testing.T) {
		require.NoError(t, os.Setenv("PATH", "/usr/bin:/bin"))

		cfg := &EnvConfig{
			InheritSystemSafe: true,
			AllowedSystemVars: []string{"PATH", "HOME"},
			CustomVars:        map[string]string{},
			EnhancePath:       false,
		}
		m := NewManager(cfg)
		env := m.BuildSecureEnvironment()

		envMap := toEnvMap(env)
		assert.Equal(t, "/usr/bin:/bin", envMap["PATH"], "PATH should not be enhanced when EnhancePath is false")
	})

	t.Run("enabled keeps the original PATH entries", func(t *testing.T) {
		require.NoError(t, os.Setenv("PATH", "/usr/bin:/bin"))

		cfg := &EnvConfig{
			InheritSystemSafe: true,
			AllowedSystemVars: []string{"PATH", "HOME"},
			CustomVars:        map[string]string{},
			EnhancePath:       true,
		}
		m := NewManager(cfg)
		env := m.BuildSecureEnvironment()

		envMap := toEnvMap(env)
		path := envMap["PATH"]
		assert.Contains(t, path, "/usr/bin", "enhanced PATH should still include the original entries")
	})

	t.Run("enabled with an already comprehensive PATH does not drop entries", func(t *testing.T) {
		comprehensive := strings.Join([]string{"/usr/local/bin", "/usr/bin", "/bin"}, string(os.PathListSeparator))
		require.NoError(t, os.Setenv("PATH", comprehensive))

		cfg := &EnvConfig{
			InheritSystemSafe: true,
			AllowedSystemVars: []string{"PATH", "HOME"},
			CustomVars:        map[string]string{},
			EnhancePath:       true,
		}
		m := NewManager(cfg)
		env := m.BuildSecureEnvironment()

		envMap := toEnvMap(env)
		for _, dir := range strings.Split(comprehensive, string(os.PathListSeparator)) {
			assert.Contains(t, envMap["PATH"], dir)
		}
	})
}

// TestDockerCommandScenario mirrors a group config for an npx-launched
// upstream running in a slim container image with almost no PATH.
func TestDockerCommandScenario(t *testing.T) {
	require.NoError(t, os.Setenv("PATH", "/usr/local/bin"))

	cfg := &EnvConfig{
		InheritSystemSafe: true,
		AllowedSystemVars: []string{"PATH", "HOME", "NODE_ENV"},
		CustomVars:        map[string]string{"NODE_ENV": "production"},
		EnhancePath:       true,
	}
	m := NewManager(cfg)
	env := m.BuildSecureEnvironment()

	envMap := toEnvMap(env)
	assert.Equal(t, "production", envMap["NODE_ENV"])
	assert.NotEmpty(t, envMap["PATH"])
}

func toEnvMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, e := range env {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}

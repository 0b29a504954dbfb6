// Package secureenv builds the environment handed to an MCP stdio
// upstream's child process (internal/transport/stdio.go): an
// allow-listed subset of the proxy's own environment plus a PATH wide
// enough to find the package-manager launchers (npx, uvx, node, go,
// cargo) that upstream server configs invoke, without leaking secrets
// the proxy process happens to hold (API keys, cloud credentials).
package secureenv

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	osWindows = "windows"
)

// EnvConfig controls what of the proxy's own environment an upstream
// stdio server's child process inherits.
type EnvConfig struct {
	InheritSystemSafe bool              `json:"inherit_system_safe"`
	AllowedSystemVars []string          `json:"allowed_system_vars"`
	CustomVars        map[string]string `json:"custom_vars"`
	// EnhancePath widens PATH with DiscoveredPaths on top of whatever
	// PATH is inherited/configured. Upstreams launched via a bare
	// "npx"/"uvx"/"go run" command rely on this; an upstream given an
	// absolute command path does not need it. DefaultEnvConfig turns it
	// on.
	EnhancePath bool `json:"enhance_path"`
}

// PathDiscovery holds the launcher directories found on this host,
// used to widen PATH when EnhancePath is set.
type PathDiscovery struct {
	HomePath        string
	DiscoveredPaths []string
}

// DefaultEnvConfig returns the allow-list the proxy applies to every
// stdio group's child process.
func DefaultEnvConfig() *EnvConfig {
	allowedVars := []string{
		"PATH",     // Essential for finding executables
		"HOME",     // User directory path (Unix)
		"TMPDIR",   // Temporary directory (Unix)
		"TEMP",     // Temporary directory (Windows)
		"TMP",      // Temporary directory (Windows)
		"SHELL",    // Default shell
		"TERM",     // Terminal type
		"LANG",     // Language settings
		"USER",     // Current user (Unix)
		"USERNAME", // Current user (Windows)
	}

	if runtime.GOOS == osWindows {
		allowedVars = append(allowedVars,
			"USERPROFILE",
			"APPDATA",
			"LOCALAPPDATA",
			"PROGRAMFILES",
			"SYSTEMROOT",
			"COMSPEC",
		)
	} else {
		allowedVars = append(allowedVars,
			"XDG_CONFIG_HOME",
			"XDG_DATA_HOME",
			"XDG_CACHE_HOME",
			"XDG_RUNTIME_DIR",
		)
	}

	localeVars := []string{
		"LC_ALL", "LC_CTYPE", "LC_NUMERIC", "LC_TIME", "LC_COLLATE",
		"LC_MONETARY", "LC_MESSAGES", "LC_PAPER", "LC_NAME", "LC_ADDRESS",
		"LC_TELEPHONE", "LC_MEASUREMENT", "LC_IDENTIFICATION",
	}
	allowedVars = append(allowedVars, localeVars...)

	return &EnvConfig{
		InheritSystemSafe: true,
		AllowedSystemVars: allowedVars,
		CustomVars:        make(map[string]string),
		EnhancePath:       true,
	}
}

// Manager filters the proxy's environment into the set one upstream
// stdio child process is allowed to see.
type Manager struct {
	config        *EnvConfig
	pathDiscovery *PathDiscovery
}

// NewManager builds a Manager for one group's env config, discovering
// launcher paths eagerly since every group connect needs them.
func NewManager(config *EnvConfig) *Manager {
	if config == nil {
		config = DefaultEnvConfig()
	}

	manager := &Manager{config: config}
	manager.pathDiscovery = manager.discoverPaths()
	return manager
}

// discoverPaths finds the directories that host npx/uvx/node/go/cargo
// launchers: the handful of ways an upstream's `command` field starts
// a real process. Windows additionally consults the registry PATH,
// since a service-launched proxy often starts with no PATH at all.
func (m *Manager) discoverPaths() *PathDiscovery {
	discovery := &PathDiscovery{}

	homeDir, _ := os.UserHomeDir()
	discovery.HomePath = homeDir

	var candidates []string
	if runtime.GOOS == osWindows {
		if registryPaths := discoverWindowsPathsFromRegistry(); len(registryPaths) > 0 {
			candidates = append(candidates, registryPaths...)
		} else {
			candidates = append(candidates,
				"C:\\Windows\\System32",
				"C:\\Windows",
				"C:\\Windows\\System32\\Wbem",
				"C:\\Windows\\System32\\WindowsPowerShell\\v1.0\\",
			)
		}
		candidates = append(candidates,
			"C:\\Program Files\\Git\\bin",
			"C:\\Program Files\\nodejs",
			"C:\\Program Files (x86)\\nodejs",
		)
	} else {
		candidates = append(candidates,
			"/usr/local/bin", "/usr/local/sbin",
			"/opt/homebrew/bin", "/opt/homebrew/sbin",
			"/usr/bin", "/bin", "/usr/sbin", "/sbin",
		)
		if homeDir != "" {
			candidates = append(candidates,
				filepath.Join(homeDir, ".local/bin"), // pipx/uv/pip --user
				filepath.Join(homeDir, ".cargo/bin"),
				filepath.Join(homeDir, "go/bin"),
				filepath.Join(homeDir, ".volta/bin"),
			)
		}
	}

	var existing []string
	for _, path := range candidates {
		if m.pathExists(path) {
			existing = append(existing, path)
		}
	}
	discovery.DiscoveredPaths = removeDuplicatePaths(existing)
	return discovery
}

// BuildSecureEnvironment builds the env slice (KEY=value entries)
// handed to an upstream stdio child process.
func (m *Manager) BuildSecureEnvironment() []string {
	var envVars []string

	if m.config.InheritSystemSafe {
		envVars = append(envVars, m.getFilteredSystemEnv()...)
	}

	for k, v := range m.config.CustomVars {
		envVars = append(envVars, k+"="+v)
	}

	if m.config.EnhancePath {
		envVars = m.ensureComprehensivePath(envVars)
	}

	return envVars
}

// ensureComprehensivePath widens PATH with discovered launcher
// directories, preserving whatever PATH the group already set.
func (m *Manager) ensureComprehensivePath(envVars []string) []string {
	var existingPath string
	pathIndex := -1

	for i, envVar := range envVars {
		if strings.HasPrefix(envVar, "PATH=") {
			existingPath = strings.TrimPrefix(envVar, "PATH=")
			pathIndex = i
			break
		}
	}

	enhancedPath := m.buildEnhancedPath(existingPath)

	pathVar := "PATH=" + enhancedPath
	if pathIndex >= 0 {
		envVars[pathIndex] = pathVar
	} else {
		envVars = append(envVars, pathVar)
	}

	return envVars
}

func (m *Manager) buildEnhancedPath(existingPath string) string {
	var pathComponents []string
	pathComponents = append(pathComponents, m.pathDiscovery.DiscoveredPaths...)

	if existingPath != "" {
		for _, component := range strings.Split(existingPath, string(os.PathListSeparator)) {
			component = strings.TrimSpace(component)
			if component != "" && !containsPath(pathComponents, component) {
				pathComponents = append(pathComponents, component)
			}
		}
	}

	validPaths := make([]string, 0, len(pathComponents))
	seen := make(map[string]bool)
	for _, path := range pathComponents {
		if path != "" && !seen[path] && m.pathExists(path) {
			validPaths = append(validPaths, path)
			seen[path] = true
		}
	}

	return strings.Join(validPaths, string(os.PathListSeparator))
}

// getFilteredSystemEnv returns the proxy's own environment, keeping
// only the allow-listed keys.
func (m *Manager) getFilteredSystemEnv() []string {
	var filtered []string
	for _, envVar := range os.Environ() {
		if m.isEnvVarAllowed(envVar) {
			filtered = append(filtered, envVar)
		}
	}
	return filtered
}

// isEnvVarAllowed checks a raw KEY=value pair against the allow-list.
func (m *Manager) isEnvVarAllowed(envVar string) bool {
	parts := strings.SplitN(envVar, "=", 2)
	if len(parts) != 2 {
		return false
	}
	return m.isKeyAllowed(parts[0])
}

// isKeyAllowed checks if a key is in the allow-list, supporting a
// trailing "*" wildcard for variable families like LC_*.
func (m *Manager) isKeyAllowed(key string) bool {
	for _, allowedVar := range m.config.AllowedSystemVars {
		if key == allowedVar {
			return true
		}
		if strings.HasSuffix(allowedVar, "*") {
			prefix := strings.TrimSuffix(allowedVar, "*")
			if strings.HasPrefix(key, prefix) {
				return true
			}
		}
	}
	return false
}

// pathExists reports whether path is a directory.
func (m *Manager) pathExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func removeDuplicatePaths(paths []string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, path := range paths {
		if path != "" && !seen[path] {
			unique = append(unique, path)
			seen[path] = true
		}
	}
	return unique
}

func containsPath(paths []string, target string) bool {
	for _, path := range paths {
		if path == target {
			return true
		}
	}
	return false
}

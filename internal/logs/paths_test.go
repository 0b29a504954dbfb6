package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogDir(t *testing.T) {
	logDir, err := GetLogDir()
	require.NoError(t, err)
	require.NotEmpty(t, logDir)

	assert.Contains(t, logDir, "mcpproxy")
	assert.True(t, filepath.IsAbs(logDir))
}

func TestOSSpecificLogDirs(t *testing.T) {
	tests := []struct {
		name     string
		os       string
		expected []string
	}{
		{name: "Windows", os: "windows", expected: []string{"mcpproxy", "logs"}},
		{name: "macOS", os: "darwin", expected: []string{"Library", "Logs", "mcpproxy"}},
		{name: "Linux", os: "linux", expected: []string{"mcpproxy", "logs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if runtime.GOOS != tt.os {
				t.Skipf("skipping %s test on %s", tt.name, runtime.GOOS)
			}

			logDir, err := GetLogDir()
			require.NoError(t, err)

			for _, component := range tt.expected {
				assert.Contains(t, logDir, component)
			}
		})
	}
}

func TestGetWindowsLogDir(t *testing.T) {
	originalLocalAppData := os.Getenv("LOCALAPPDATA")
	originalUserProfile := os.Getenv("USERPROFILE")

	defer func() {
		if originalLocalAppData != "" {
			os.Setenv("LOCALAPPDATA", originalLocalAppData)
		} else {
			os.Unsetenv("LOCALAPPDATA")
		}
		if originalUserProfile != "" {
			os.Setenv("USERPROFILE", originalUserProfile)
		} else {
			os.Unsetenv("USERPROFILE")
		}
	}()

	t.Run("with LOCALAPPDATA", func(t *testing.T) {
		testPath := filepath.Join("C:", "Users", "testuser", "AppData", "Local")
		os.Setenv("LOCALAPPDATA", testPath)

		logDir, err := getWindowsLogDir()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(testPath, "mcpproxy", "logs"), logDir)
	})

	t.Run("with USERPROFILE fallback", func(t *testing.T) {
		os.Unsetenv("LOCALAPPDATA")
		testUserProfile := filepath.Join("C:", "Users", "testuser")
		os.Setenv("USERPROFILE", testUserProfile)

		logDir, err := getWindowsLogDir()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(testUserProfile, "AppData", "Local", "mcpproxy", "logs"), logDir)
	})

	t.Run("fallback to default", func(t *testing.T) {
		os.Unsetenv("LOCALAPPDATA")
		os.Unsetenv("USERPROFILE")

		logDir, err := getWindowsLogDir()
		require.NoError(t, err)
		assert.Contains(t, logDir, "mcpproxy")
	})
}

func TestGetMacOSLogDir(t *testing.T) {
	logDir, err := getMacOSLogDir()
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(logDir, filepath.Join("Library", "Logs", "mcpproxy")))
}

func TestGetLinuxLogDir(t *testing.T) {
	originalXDGStateHome := os.Getenv("XDG_STATE_HOME")
	defer func() {
		if originalXDGStateHome != "" {
			os.Setenv("XDG_STATE_HOME", originalXDGStateHome)
		} else {
			os.Unsetenv("XDG_STATE_HOME")
		}
	}()

	t.Run("regular user with XDG_STATE_HOME", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("skipping regular user test when running as root")
		}

		testStateDir := "/tmp/test-xdg-state"
		os.Setenv("XDG_STATE_HOME", testStateDir)

		logDir, err := getLinuxLogDir()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(testStateDir, "mcpproxy", "logs"), logDir)
	})

	t.Run("regular user without XDG_STATE_HOME", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("skipping regular user test when running as root")
		}

		os.Unsetenv("XDG_STATE_HOME")

		logDir, err := getLinuxLogDir()
		require.NoError(t, err)

		assert.Contains(t, logDir, ".local")
		assert.Contains(t, logDir, "state")
		assert.Contains(t, logDir, "mcpproxy")
		assert.Contains(t, logDir, "logs")
	})
}

func TestEnsureLogDir(t *testing.T) {
	tempDir := t.TempDir()
	testLogDir := filepath.Join(tempDir, "test", "logs")

	_, err := os.Stat(testLogDir)
	assert.True(t, os.IsNotExist(err))

	err = EnsureLogDir(testLogDir)
	require.NoError(t, err)

	info, err := os.Stat(testLogDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}
}

func TestGetLogFilePathWithDir(t *testing.T) {
	t.Run("explicit dir is used as given", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "custom")
		path, err := GetLogFilePathWithDir(dir, "test.log")
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, "test.log"), path)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("empty dir falls back to the OS standard directory", func(t *testing.T) {
		path, err := GetLogFilePathWithDir("", "test.log")
		require.NoError(t, err)

		assert.True(t, filepath.IsAbs(path))
		assert.True(t, strings.HasSuffix(path, "test.log"))
		assert.Contains(t, path, "mcpproxy")
	})

	t.Run("leading ~/ expands to the home directory", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		sub := ".mcpproxy-test-" + filepath.Base(t.TempDir())
		defer os.RemoveAll(filepath.Join(home, sub))

		path, err := GetLogFilePathWithDir("~/"+sub, "test.log")
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(home, sub, "test.log"), path)
	})
}

func BenchmarkGetLogDir(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := GetLogDir(); err != nil {
			b.Fatal(err)
		}
	}
}

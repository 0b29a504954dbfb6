package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	osWindows = "windows"
	osDarwin  = "darwin"
	osLinux   = "linux"

	appDirName = "mcpproxy"
)

// GetLogDir returns the standard log directory for the current OS,
// used when neither the logging config nor --log-dir names a directory.
func GetLogDir() (string, error) {
	switch runtime.GOOS {
	case osWindows:
		return getWindowsLogDir()
	case osDarwin:
		return getMacOSLogDir()
	case osLinux:
		return getLinuxLogDir()
	default:
		return getDefaultLogDir()
	}
}

// getWindowsLogDir uses %LOCALAPPDATA%\mcpproxy\logs, falling back to
// %USERPROFILE%\AppData\Local when a minimal service launch context
// leaves LOCALAPPDATA unset.
func getWindowsLogDir() (string, error) {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return getDefaultLogDir()
		}
		localAppData = filepath.Join(userProfile, "AppData", "Local")
	}
	return filepath.Join(localAppData, appDirName, "logs"), nil
}

// getMacOSLogDir uses ~/Library/Logs/mcpproxy.
func getMacOSLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return getDefaultLogDir()
	}
	return filepath.Join(homeDir, "Library", "Logs", appDirName), nil
}

// getLinuxLogDir follows the XDG Base Directory Specification:
// $XDG_STATE_HOME/mcpproxy/logs, or /var/log/mcpproxy when running as
// root (the common case for a systemd-managed install).
func getLinuxLogDir() (string, error) {
	if os.Getuid() == 0 {
		return filepath.Join("/var/log", appDirName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return getDefaultLogDir()
	}

	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		stateDir = filepath.Join(homeDir, ".local", "state")
	}

	return filepath.Join(stateDir, appDirName, "logs"), nil
}

// getDefaultLogDir is the fallback for unrecognized GOOS values and
// for the case UserHomeDir itself fails.
func getDefaultLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName, "logs"), nil
	}
	return filepath.Join(homeDir, "."+appDirName, "logs"), nil
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir(logDir string) error {
	return os.MkdirAll(logDir, 0o755)
}

// GetLogFilePathWithDir resolves filename inside logDir, expanding a
// leading "~/" and falling back to the OS standard directory when
// logDir is empty (config.LogConfig.LogDir unset, --log-dir not
// passed).
func GetLogFilePathWithDir(logDir, filename string) (string, error) {
	if logDir == "" {
		resolved, err := GetLogDir()
		if err != nil {
			return "", err
		}
		logDir = resolved
	} else if strings.HasPrefix(logDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		logDir = filepath.Join(homeDir, logDir[2:])
	}

	if err := EnsureLogDir(logDir); err != nil {
		return "", err
	}

	return filepath.Join(logDir, filename), nil
}

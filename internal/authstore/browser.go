package authstore

import (
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// openBrowser launches authURL in the system default browser, keyed
// by runtime.GOOS the same way the teacher's upstream connection
// package dispatches open/xdg-open/rundll32. If launching fails the
// caller falls back to printing the URL.
func openBrowser(authURL string, logger *zap.Logger) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd, args = "rundll32", []string{"url.dll,FileProtocolHandler", authURL}
	case "darwin":
		cmd, args = "open", []string{authURL}
	default:
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return fmt.Errorf("xdg-open not found in PATH: %w", err)
		}
		cmd, args = "xdg-open", []string{authURL}
	}

	logger.Debug("launching browser for oauth authorization", zap.String("command", cmd))
	return exec.Command(cmd, args...).Start()
}

//go:build !windows

package transport

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// newProcessGroupCommandFunc returns a gotransport.CommandFunc that
// places the spawned child in its own POSIX process group (setpgid),
// so the whole process tree it forks can be signaled on Close
// (spec.md §4.2). The captured pgid is reported back through capture.
func newProcessGroupCommandFunc(logger *zap.Logger, capture func(pgid int)) func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
	return func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

		go func() {
			for i := 0; i < 100 && cmd.Process == nil; i++ {
				time.Sleep(5 * time.Millisecond)
			}
			if cmd.Process == nil {
				return
			}
			if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
				capture(pgid)
			} else {
				logger.Warn("failed to resolve process group id", zap.Error(err))
			}
		}()

		return cmd, nil
	}
}

// killProcessGroup sends SIGTERM to the whole process group, waits up
// to grace for it to exit, then escalates to SIGKILL.
func killProcessGroup(pgid int, logger *zap.Logger, grace time.Duration) {
	if pgid <= 0 {
		return
	}
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		logger.Debug("SIGTERM to process group failed (likely already exited)", zap.Int("pgid", pgid), zap.Error(err))
	}

	time.Sleep(grace)

	if err := syscall.Kill(-pgid, 0); err == nil {
		logger.Warn("process group still alive after grace period, sending SIGKILL", zap.Int("pgid", pgid))
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	}
}

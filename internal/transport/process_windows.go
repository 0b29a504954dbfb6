//go:build windows

package transport

import (
	"context"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// newProcessGroupCommandFunc places the spawned child in a new
// console process group (CREATE_NEW_PROCESS_GROUP) so the entire tree
// can be signaled on Close (spec.md §4.2). Windows has no SIGTERM, so
// Close asks the tree to exit with a plain taskkill, waits out the
// grace period, then forces termination, using the captured PID in
// place of a process group id.
func newProcessGroupCommandFunc(logger *zap.Logger, capture func(pgid int)) func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
	return func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}

		go func() {
			for i := 0; i < 100 && cmd.Process == nil; i++ {
				time.Sleep(5 * time.Millisecond)
			}
			if cmd.Process != nil {
				capture(cmd.Process.Pid)
			}
		}()

		return cmd, nil
	}
}

// killProcessGroup terminates the child process. Windows lacks POSIX
// process groups; CREATE_NEW_PROCESS_GROUP at spawn time lets
// taskkill's /T flag reach descendants.
func killProcessGroup(pgid int, logger *zap.Logger, grace time.Duration) {
	if pgid <= 0 {
		return
	}
	pid := strconv.Itoa(pgid)
	_ = exec.Command("taskkill", "/PID", pid, "/T").Run()

	time.Sleep(grace)

	if err := exec.Command("taskkill", "/PID", pid, "/T", "/F").Run(); err != nil {
		logger.Debug("forceful taskkill returned error (likely already exited)", zap.Error(err))
	}
}

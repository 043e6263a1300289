//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcAttr enables process group creation so a supervised agent's
// children (MCP servers, language tooling it shells out to, etc.) can be
// killed together with it. It also makes context cancellation send SIGTERM
// to the group instead of exec's default SIGKILL to the direct child, so
// the hard kill only comes after the supervisor's grace period.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return terminateProcessGroup(cmd.Process.Pid)
	}
}

// terminateProcessGroup sends SIGTERM to the entire process group. On
// Unix the process group id equals the leader's pid; a negative pid
// signals the whole group.
func terminateProcessGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killProcessGroup sends SIGKILL to the entire process group.
func killProcessGroup(pid int) error {
	if pid <= 0 {
		return nil
	}
	return syscall.Kill(-pid, syscall.SIGKILL)
}

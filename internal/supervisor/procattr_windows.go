//go:build windows

package supervisor

import "os/exec"

// setProcAttr is a no-op on Windows; context cancellation plus Process.Kill
// adequately terminates the direct child.
func setProcAttr(cmd *exec.Cmd) {
}

// terminateProcessGroup is a no-op on Windows; there is no POSIX process
// group to target.
func terminateProcessGroup(pid int) error {
	return nil
}

// killProcessGroup is a no-op on Windows.
func killProcessGroup(pid int) error {
	return nil
}

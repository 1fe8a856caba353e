//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup places the child in its own process group so that
// signals reach the whole tree it spawns.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// signalGroup sends SIGTERM (graceful) or SIGKILL to the process group,
// falling back to the single process when the group cannot be signalled.
func signalGroup(cmd *exec.Cmd, graceful bool) error {
	if cmd.Process == nil {
		return nil
	}
	sig := syscall.SIGKILL
	if graceful {
		sig = syscall.SIGTERM
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// signalGroup uses taskkill for the whole tree; Windows has no SIGTERM.
func signalGroup(cmd *exec.Cmd, graceful bool) error {
	if cmd.Process == nil {
		return nil
	}
	args := []string{"/T", "/PID", fmt.Sprintf("%d", cmd.Process.Pid)}
	if !graceful {
		args = append([]string{"/F"}, args...)
	}
	if err := exec.Command("taskkill", args...).Run(); err != nil {
		if graceful {
			return err
		}
		return cmd.Process.Kill()
	}
	return nil
}

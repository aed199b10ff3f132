//go:build windows

package procsup

import "os/exec"

func configureCommandProcess(cmd *exec.Cmd) {}

func killProcessGroup(pid int) {}

func terminateCommandProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

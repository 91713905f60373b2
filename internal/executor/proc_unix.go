//go:build unix

package executor

import (
	"os/exec"
	"syscall"
	"time"
)

// killGroup runs the interpreter in its own process group and kills the whole
// group on cancellation, so children spawned by the script go with it.
func killGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
}

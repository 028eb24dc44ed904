//go:build !windows

package process

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// isolateStep starts the step in its own process group and kills the whole
// group on cancellation. Killing only the interpreter would leave its
// children holding the stdout pipe, and Run would wait them out.
func isolateStep(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil || cmd.Process.Pid <= 0 {
			return nil
		}
		// Negative pid addresses the group.
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		return cmd.Process.Kill()
	}
}

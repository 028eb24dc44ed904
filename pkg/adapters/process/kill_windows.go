//go:build windows

package process

import "os/exec"

// isolateStep is a no-op on Windows, where there is no process group to
// kill; WaitDelay alone unblocks Run when a child keeps the pipe open.
func isolateStep(cmd *exec.Cmd) {}

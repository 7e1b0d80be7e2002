//go:build unix && !linux

package process

import (
	"os/exec"
	"syscall"
)

// No parent death signal outside of linux: the engine survives an abnormal
// exit of the supervisor.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

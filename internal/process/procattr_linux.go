package process

import (
	"os/exec"
	"syscall"
)

// setProcAttr puts the engine into its own process group and has the kernel
// SIGKILL it when the spawning thread dies, so a crashed or killed
// supervisor does not leave the engine running. The Go runtime retires a
// thread only when a goroutine exits while locked to it: Spawn must not be
// called from such a goroutine.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

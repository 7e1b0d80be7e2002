//go:build unix

package process

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func signalGroup(p *os.Process, sig unix.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func stopTree(p *os.Process) error {
	return signalGroup(p, unix.SIGTERM)
}

func killTree(ctx context.Context, p *os.Process) error {
	killDescendants(ctx, p.Pid)
	return signalGroup(p, unix.SIGKILL)
}

func reapGroup(p *os.Process) {
	_ = signalGroup(p, unix.SIGKILL)
}

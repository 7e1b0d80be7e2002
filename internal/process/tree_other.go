//go:build !unix

package process

import (
	"context"
	"os"
	"os/exec"
)

func setProcAttr(*exec.Cmd) {}

func stopTree(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

func killTree(ctx context.Context, p *os.Process) error {
	killDescendants(ctx, p.Pid)
	return p.Kill()
}

func reapGroup(*os.Process) {}

package process

import (
	"context"

	gopsprocess "github.com/shirou/gopsutil/v4/process"
)

// Descendants walks the process table breadth first and returns every
// live descendant of pid. Workers that moved to their own session or
// process group are still found here as long as their parent is alive.
func Descendants(ctx context.Context, pid int) []*gopsprocess.Process {
	root, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil
	}
	var out []*gopsprocess.Process
	queue := []*gopsprocess.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}

func killDescendants(ctx context.Context, pid int) {
	// leaves first, so a dying parent can't respawn them
	procs := Descendants(ctx, pid)
	for i := len(procs) - 1; i >= 0; i-- {
		_ = procs[i].KillWithContext(ctx)
	}
}

package sampler

import (
	"context"
	"fmt"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/process"
)

// TreeProbe sums CPU, memory and I/O over a process and all its
// descendants. CPU percent is measured between two consecutive calls, so
// the per-pid gopsutil handles are kept across samples.
type TreeProbe struct {
	procs map[int32]*gopsprocess.Process
}

func NewTreeProbe() *TreeProbe {
	return &TreeProbe{procs: make(map[int32]*gopsprocess.Process)}
}

func (p *TreeProbe) Sample(ctx context.Context, pid int) (model.ResourceSnapshot, error) {
	root, err := p.lookup(ctx, int32(pid))
	if err != nil {
		return model.ResourceSnapshot{}, fmt.Errorf("pid %d: %w", pid, err)
	}

	tree := append([]*gopsprocess.Process{root}, process.Descendants(ctx, pid)...)
	seen := make(map[int32]struct{}, len(tree))
	snap := model.ResourceSnapshot{Time: time.Now().UTC()}
	for _, proc := range tree {
		if known, ok := p.procs[proc.Pid]; ok {
			proc = known
		} else {
			p.procs[proc.Pid] = proc
		}
		seen[proc.Pid] = struct{}{}

		mem, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			// exited between listing and reading
			continue
		}
		snap.Procs++
		snap.RSS += mem.RSS
		if cpu, err := proc.PercentWithContext(ctx, 0); err == nil {
			snap.CPUPercent += cpu
		}
		if io, err := proc.IOCountersWithContext(ctx); err == nil {
			snap.ReadBytes += io.ReadBytes
			snap.WriteBytes += io.WriteBytes
		}
	}
	for pid := range p.procs {
		if _, ok := seen[pid]; !ok {
			delete(p.procs, pid)
		}
	}
	if snap.Procs == 0 {
		return model.ResourceSnapshot{}, fmt.Errorf("pid %d: %w", pid, ErrGone)
	}
	return snap, nil
}

func (p *TreeProbe) lookup(ctx context.Context, pid int32) (*gopsprocess.Process, error) {
	if known, ok := p.procs[pid]; ok {
		return known, nil
	}
	proc, err := gopsprocess.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	p.procs[pid] = proc
	return proc, nil
}

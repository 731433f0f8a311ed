package browser

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/shirou/gopsutil/v4/process"
)

// killProcessTree kills pid and its descendants if they are still running.
// A process that is already gone is not an error.
func killProcessTree(ctx context.Context, pid int) error {
	if pid <= 0 {
		return nil
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return eris.Wrapf(err, "browser: find process %d", pid)
	}

	var errs []error
	for _, c := range descendants(ctx, p) {
		if err := c.KillWithContext(ctx); err != nil && !notRunning(ctx, c) {
			errs = append(errs, eris.Wrapf(err, "browser: kill child %d", c.Pid))
		}
	}
	if running, _ := p.IsRunningWithContext(ctx); running {
		if err := p.KillWithContext(ctx); err != nil && !notRunning(ctx, p) {
			errs = append(errs, eris.Wrapf(err, "browser: kill %d", pid))
		}
	}
	return errors.Join(errs...)
}

func descendants(ctx context.Context, p *process.Process) []*process.Process {
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return nil
	}
	out := children
	for _, c := range children {
		out = append(out, descendants(ctx, c)...)
	}
	return out
}

func notRunning(ctx context.Context, p *process.Process) bool {
	running, err := p.IsRunningWithContext(ctx)
	return err == nil && !running
}

// processRSS returns the resident memory of pid and its descendants in bytes.
func processRSS(ctx context.Context, pid int) uint64 {
	if pid <= 0 {
		return 0
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0
	}
	procs := append([]*process.Process{p}, descendants(ctx, p)...)
	var total uint64
	for _, proc := range procs {
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			total += mem.RSS
		}
	}
	return total
}

package detector

import (
	"context"
	"fmt"
	"slices"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// SystemTable reads the live process table through gopsutil.
type SystemTable struct{}

// List returns every process whose name can be read. Processes that exit
// while the table is being walked, or that we may not inspect, are skipped.
// Zombies are skipped too: an exited but unreaped daemon is not running.
func (SystemTable) List(ctx context.Context) ([]ProcessEntry, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make([]ProcessEntry, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if st, err := p.StatusWithContext(ctx); err == nil && slices.Contains(st, gopsproc.Zombie) {
			continue
		}
		// kernel threads and restricted processes have no readable cmdline
		cmdline, _ := p.CmdlineWithContext(ctx)
		out = append(out, ProcessEntry{PID: p.Pid, Name: name, Cmdline: cmdline})
	}
	return out, nil
}

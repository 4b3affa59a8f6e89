package supervisor

import (
	"context"
	"log/slog"

	"github.com/loykin/svcpanel/internal/detector"
	"github.com/loykin/svcpanel/internal/registry"
)

// State is the probed condition of a service.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	// StateUnknown is reported for services that expose no probe.
	StateUnknown State = "unknown"
)

// Prober answers whether registry services are running.
type Prober struct {
	table detector.ProcessTable
	log   *slog.Logger
}

func NewProber(table detector.ProcessTable, log *slog.Logger) *Prober {
	if table == nil {
		table = detector.SystemTable{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Prober{table: table, log: log}
}

// Probe reports the state of d. A failed table query reads as stopped.
func (p *Prober) Probe(ctx context.Context, d registry.Descriptor) State {
	if !d.Probed() {
		return StateUnknown
	}
	return stateOf(p.snapshot(ctx), d)
}

// ProbeAll reports every descriptor against a single process table snapshot.
func (p *Prober) ProbeAll(ctx context.Context, ds []registry.Descriptor) map[string]State {
	out := make(map[string]State, len(ds))
	var entries []detector.ProcessEntry
	listed := false
	for _, d := range ds {
		if !d.Probed() {
			out[d.Name] = StateUnknown
			continue
		}
		if !listed {
			entries = p.snapshot(ctx)
			listed = true
		}
		out[d.Name] = stateOf(entries, d)
	}
	return out
}

func (p *Prober) snapshot(ctx context.Context) []detector.ProcessEntry {
	entries, err := p.table.List(ctx)
	if err != nil {
		p.log.Debug("process table unavailable", "error", err)
		return nil
	}
	return entries
}

func stateOf(entries []detector.ProcessEntry, d registry.Descriptor) State {
	if detector.Alive(entries, d.Probe) {
		return StateRunning
	}
	return StateStopped
}

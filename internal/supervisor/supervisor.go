package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/svcpanel/internal/detector"
	"github.com/loykin/svcpanel/internal/history"
	"github.com/loykin/svcpanel/internal/metrics"
	"github.com/loykin/svcpanel/internal/process"
	"github.com/loykin/svcpanel/internal/registry"
)

// Sampler produces host resource snapshots.
type Sampler interface {
	Sample(ctx context.Context) metrics.ResourceSnapshot
}

// Options wires a Supervisor. Nil fields fall back to the real OS.
type Options struct {
	Registry *registry.Registry
	Table    detector.ProcessTable
	Runner   process.Runner
	Sampler  Sampler
	// Health enables reachability checks in Status; nil disables them.
	Health *HealthChecker
	Logger *slog.Logger
}

// Status is a side-effect free view of the host and its services.
type Status struct {
	Resources metrics.ResourceSnapshot `json:"resources"`
	Services  map[string]State         `json:"services"`
	Health    map[string]Reachability  `json:"health,omitempty"`
}

// Supervisor is the single entry point for status queries and control actions.
// Actions are serialised; Status takes no lock.
type Supervisor struct {
	reg     *registry.Registry
	prober  *Prober
	exec    *Executor
	sampler Sampler
	health  *HealthChecker
	log     *slog.Logger

	actionMu sync.Mutex

	sinkMu sync.RWMutex
	sinks  []history.Sink
}

func New(opts Options) *Supervisor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New(registry.DefaultOptions())
	}
	table := opts.Table
	if table == nil {
		table = detector.SystemTable{}
	}
	runner := opts.Runner
	if runner == nil {
		runner = process.NewOS(table, process.Config{Logger: log})
	}
	sampler := opts.Sampler
	if sampler == nil {
		sampler = metrics.NewHostSampler(nil, metrics.SamplerConfig{}, log)
	}
	return &Supervisor{
		reg:     reg,
		prober:  NewProber(table, log),
		exec:    NewExecutor(reg, runner, log),
		sampler: sampler,
		health:  opts.Health,
		log:     log,
	}
}

// SetHistorySinks configures sinks that receive one event per executed action.
// Passing no sinks clears the list.
func (s *Supervisor) SetHistorySinks(sinks ...history.Sink) {
	s.sinkMu.Lock()
	s.sinks = append([]history.Sink(nil), sinks...)
	s.sinkMu.Unlock()
}

// Services returns the registry descriptors in order.
func (s *Supervisor) Services() []registry.Descriptor { return s.reg.All() }

// Probe reports the state of one named service.
func (s *Supervisor) Probe(ctx context.Context, name string) (State, error) {
	d, err := s.reg.Lookup(name)
	if err != nil {
		return StateUnknown, err
	}
	return s.prober.Probe(ctx, d), nil
}

// Status samples host resources while probing every service and, when
// enabled, checking their listeners.
func (s *Supervisor) Status(ctx context.Context) Status {
	var (
		wg     sync.WaitGroup
		snap   metrics.ResourceSnapshot
		health map[string]Reachability
	)
	services := s.reg.All()
	wg.Add(1)
	go func() {
		defer wg.Done()
		snap = s.sampler.Sample(ctx)
	}()
	if s.health != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			health = s.health.CheckAll(ctx, services)
		}()
	}
	states := s.prober.ProbeAll(ctx, services)
	wg.Wait()

	metrics.SetHostUsage(snap)
	for name, st := range states {
		if st != StateUnknown {
			metrics.SetServiceUp(name, st == StateRunning)
		}
	}
	return Status{Resources: snap, Services: states, Health: health}
}

// Execute runs the action named by id. It never fails: the outcome, including
// unknown ids, is reported in the result.
func (s *Supervisor) Execute(ctx context.Context, id string) ActionResult {
	s.actionMu.Lock()
	res := s.exec.Execute(ctx, id)
	s.actionMu.Unlock()
	s.record(ctx, res)
	return res
}

// Run executes a parsed action.
func (s *Supervisor) Run(ctx context.Context, a Action) ActionResult {
	s.actionMu.Lock()
	res := s.exec.Run(ctx, a)
	s.actionMu.Unlock()
	s.record(ctx, res)
	return res
}

func (s *Supervisor) record(ctx context.Context, res ActionResult) {
	if res.Succeeded {
		s.log.Info("action completed", "action", res.Action, "id", res.ID, "duration", res.Duration)
	} else {
		s.log.Warn("action failed", "action", res.Action, "id", res.ID, "message", res.Message)
	}
	metrics.ObserveAction(metricLabel(res.Action), res.Succeeded, res.Duration.Seconds())

	s.sinkMu.RLock()
	sinks := append([]history.Sink(nil), s.sinks...)
	s.sinkMu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	evt := history.Event{
		ID:         res.ID,
		Action:     res.Action,
		Succeeded:  res.Succeeded,
		Message:    res.Message,
		OccurredAt: res.StartedAt.UTC(),
		Duration:   res.Duration,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, sink := range sinks {
		if err := sink.Send(ctx, evt); err != nil {
			s.log.Warn("history sink failed", "action", res.Action, "error", err)
		}
	}
}

// metricLabel keeps arbitrary request ids out of metric label values.
func metricLabel(action string) string {
	if _, err := ParseAction(action); err != nil {
		return "unknown"
	}
	return action
}

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/svcpanel/internal/process"
	"github.com/loykin/svcpanel/internal/registry"
)

// ActionResult is the outcome of one Execute call. Message is always set.
// Rejected marks an id that names no action; nothing was run for it.
type ActionResult struct {
	ID        string        `json:"id"`
	Action    string        `json:"action"`
	Rejected  bool          `json:"rejected,omitempty"`
	Succeeded bool          `json:"succeeded"`
	Message   string        `json:"message"`
	Steps     []StepResult  `json:"steps,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Executor turns actions into ordered OS steps against the registry.
type Executor struct {
	reg    *registry.Registry
	runner process.Runner
	log    *slog.Logger
	now    func() time.Time
}

func NewExecutor(reg *registry.Registry, runner process.Runner, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{reg: reg, runner: runner, log: log, now: time.Now}
}

// Execute parses id and runs it. Ids that name no action fail without any OS call.
func (e *Executor) Execute(ctx context.Context, id string) ActionResult {
	a, err := ParseAction(id)
	if err != nil {
		return e.unknown(id)
	}
	return e.Run(ctx, a)
}

// Run executes a parsed action. Once planned it runs to completion even if
// ctx is cancelled.
func (e *Executor) Run(ctx context.Context, a Action) ActionResult {
	ctx = context.WithoutCancel(ctx)
	steps, err := e.plan(a)
	if err != nil {
		return e.unknown(a.ID())
	}
	start := e.now()
	res := ActionResult{ID: uuid.NewString(), Action: a.ID(), StartedAt: start}
	results, failed, err := runSteps(ctx, steps)
	res.Steps = results
	res.Duration = e.now().Sub(start)
	if err != nil {
		if failed == a.ID() {
			res.Message = fmt.Sprintf("%s failed: %v", a.ID(), err)
		} else {
			res.Message = fmt.Sprintf("%s failed at %s: %v", a.ID(), failed, err)
		}
		return res
	}
	res.Succeeded = true
	res.Message = successMessage(a)
	return res
}

func (e *Executor) unknown(id string) ActionResult {
	return ActionResult{
		ID:        uuid.NewString(),
		Action:    id,
		Rejected:  true,
		Message:   ErrUnknownAction.Error(),
		StartedAt: e.now(),
	}
}

func (e *Executor) plan(a Action) ([]step, error) {
	switch a := a.(type) {
	case Start:
		d, err := e.reg.Lookup(a.Service)
		if err != nil {
			return nil, err
		}
		var steps []step
		if d.StopBeforeStart {
			steps = append(steps, e.stopStep(d, true))
		}
		return append(steps, e.startStep(d)), nil
	case Stop:
		d, err := e.reg.Lookup(a.Service)
		if err != nil {
			return nil, err
		}
		return []step{e.stopStep(d, false)}, nil
	case RestartAll:
		ssh, err := e.reg.Lookup(registry.SSH)
		if err != nil {
			return nil, err
		}
		web, err := e.reg.Lookup(registry.Web)
		if err != nil {
			return nil, err
		}
		wake, err := e.reg.Lookup(registry.WakeLock)
		if err != nil {
			return nil, err
		}
		return []step{
			e.stopStep(ssh, true),
			e.stopStep(web, true),
			e.startStep(ssh),
			e.startStep(web),
			e.startStep(wake),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

func (e *Executor) startStep(d registry.Descriptor) step {
	return step{
		name: Start{d.Name}.ID(),
		run:  func(ctx context.Context) error { return e.apply(ctx, d.Name, d.Start) },
	}
}

func (e *Executor) stopStep(d registry.Descriptor, ignoreFailure bool) step {
	return step{
		name:          Stop{d.Name}.ID(),
		ignoreFailure: ignoreFailure,
		run:           func(ctx context.Context) error { return e.apply(ctx, d.Name, d.Stop) },
	}
}

func (e *Executor) apply(ctx context.Context, name string, cmd registry.Command) error {
	e.log.Debug("service command", "service", name, "command", cmd.String())
	switch cmd.Kind {
	case registry.Invoke:
		return e.runner.Run(ctx, cmd.Argv)
	case registry.Spawn:
		return e.runner.Spawn(ctx, process.Spec{
			Name:     name,
			Argv:     cmd.Argv,
			WorkDir:  cmd.WorkDir,
			Env:      cmd.Env,
			Detached: true,
		})
	case registry.Terminate:
		return e.runner.Terminate(ctx, cmd.Match)
	default:
		return fmt.Errorf("unsupported command kind %s", cmd.Kind)
	}
}

func successMessage(a Action) string {
	switch a := a.(type) {
	case Start:
		if a.Service == registry.WakeLock {
			return "wake-lock acquired"
		}
		return a.Service + " started"
	case Stop:
		if a.Service == registry.WakeLock {
			return "wake-lock released"
		}
		return a.Service + " stopped"
	case RestartAll:
		return "all services restarted"
	default:
		return a.ID() + " done"
	}
}

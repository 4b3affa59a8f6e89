package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/svcpanel/internal/detector"
	"github.com/loykin/svcpanel/internal/env"
	"github.com/loykin/svcpanel/internal/logger"
)

var (
	// ErrNoMatch is returned by Terminate when no process satisfied the detector.
	ErrNoMatch = errors.New("no matching process")
	// ErrEmptyCommand is returned when an argument vector is empty.
	ErrEmptyCommand = errors.New("empty command")
)

// maxOutput bounds how much command output is folded into an error message.
const maxOutput = 256

// Spec describes a service process started in the background.
type Spec struct {
	Name     string        `json:"name"`
	Argv     []string      `json:"argv"`
	WorkDir  string        `json:"work_dir"`
	Env      []string      `json:"env"` // extra KEY=VALUE entries on top of the current environment
	Detached bool          `json:"detached"`
	Log      logger.Config `json:"log"`
}

// Runner is the OS capability the supervisor acts through. Everything that
// touches real processes goes through it so the supervisor can be tested
// against fakes.
type Runner interface {
	// Run invokes argv and waits for it to exit.
	Run(ctx context.Context, argv []string) error
	// Spawn starts spec in the background and returns once it has launched.
	Spawn(ctx context.Context, spec Spec) error
	// Terminate sends SIGTERM to every process matching d.
	Terminate(ctx context.Context, d detector.Detector) error
}

// Config tunes the OS runner.
type Config struct {
	// Timeout bounds Run. Zero means no timeout.
	Timeout time.Duration
	// ProcessLog is used for spawned processes whose Spec.Log is empty.
	ProcessLog logger.Config
	Logger     *slog.Logger
}

// OS is the Runner backed by os/exec and signals.
type OS struct {
	table   detector.ProcessTable
	timeout time.Duration
	procLog logger.Config
	log     *slog.Logger
	self    int32
}

func NewOS(table detector.ProcessTable, cfg Config) *OS {
	if table == nil {
		table = detector.SystemTable{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &OS{
		table:   table,
		timeout: cfg.Timeout,
		procLog: cfg.ProcessLog,
		log:     log,
		self:    int32(os.Getpid()),
	}
}

// Run executes argv to completion. Once issued the command is not revocable:
// cancellation of ctx is ignored and only the configured timeout applies.
func (o *OS) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 || argv[0] == "" {
		return ErrEmptyCommand
	}
	ctx = context.WithoutCancel(ctx)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	// #nosec G204 -- argv comes from the fixed service registry
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := trimOutput(out); msg != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// Spawn starts spec and reaps it in the background. Success only means the
// process launched; it may still exit right after. ctx is not consulted: the
// child outlives the request that started it.
func (o *OS) Spawn(ctx context.Context, spec Spec) error {
	if len(spec.Argv) == 0 || spec.Argv[0] == "" {
		return ErrEmptyCommand
	}
	// #nosec G204 -- argv comes from the fixed service registry
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.WorkDir
	if len(spec.Env) > 0 {
		cmd.Env = env.Merge(os.Environ(), spec.Env...)
	}
	configureSysProcAttr(cmd, spec)

	logCfg := spec.Log
	if logCfg.File == (logger.FileConfig{}) {
		logCfg = o.procLog
	}
	if logCfg.File.Dir != "" {
		_ = os.MkdirAll(logCfg.File.Dir, 0o750)
	}
	outW, errW, _ := logCfg.ProcessWriters(spec.Name)
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}

	if err := cmd.Start(); err != nil {
		closeAll(outW, errW)
		return fmt.Errorf("spawn %s: %w", spec.Argv[0], err)
	}
	pid := cmd.Process.Pid
	o.log.Debug("process spawned", "name", spec.Name, "pid", pid, "argv", spec.Argv, "dir", spec.WorkDir)
	go func() {
		err := cmd.Wait()
		closeAll(outW, errW)
		o.log.Debug("spawned process exited", "name", spec.Name, "pid", pid, "error", err)
	}()
	return nil
}

// Terminate signals every process matching d except the supervisor itself.
// It fails with ErrNoMatch when nothing was signalled, mirroring pkill's
// non-zero exit in that case. Like Run it ignores cancellation of ctx.
func (o *OS) Terminate(ctx context.Context, d detector.Detector) error {
	if d == nil {
		return fmt.Errorf("%w: no detector", ErrNoMatch)
	}
	entries, err := o.table.List(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	var (
		signalled int
		errs      []error
	)
	for _, e := range detector.Matching(entries, d) {
		if e.PID <= 0 || e.PID == o.self {
			continue
		}
		if err := terminate(int(e.PID)); err != nil {
			if isGone(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("signal pid %d: %w", e.PID, err))
			continue
		}
		signalled++
		o.log.Debug("sent SIGTERM", "pid", e.PID, "name", e.Name, "detector", d.Describe())
	}
	switch {
	case signalled == 0 && len(errs) == 0:
		return fmt.Errorf("%w: %s", ErrNoMatch, d.Describe())
	case signalled == 0:
		return errors.Join(errs...)
	case len(errs) > 0:
		o.log.Warn("some processes could not be signalled", "detector", d.Describe(), "error", errors.Join(errs...))
	}
	return nil
}

func trimOutput(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxOutput {
		s = s[:maxOutput] + "..."
	}
	return s
}

func closeAll(cs ...io.Closer) {
	for _, c := range cs {
		if c != nil {
			_ = c.Close()
		}
	}
}

package supervisor

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/loykin/svcpanel/internal/detector"
	"github.com/loykin/svcpanel/internal/history"
	"github.com/loykin/svcpanel/internal/metrics"
	"github.com/loykin/svcpanel/internal/process"
)

// fakeOS is a process table and runner sharing one in-memory process list.
// Terminate removes matching entries; every runner call is recorded. Runner
// calls made with a cancelled context fail the way a cancelled exec would.
type fakeOS struct {
	mu      sync.Mutex
	procs   []detector.ProcessEntry
	nextPID int32
	calls   []string
	fail    map[string]error // keyed by call string
	listErr error
	lists   int
}

func newFakeOS(names ...string) *fakeOS {
	f := &fakeOS{nextPID: 100, fail: map[string]error{}}
	for _, n := range names {
		f.add(n, n)
	}
	return f
}

func (f *fakeOS) add(name, cmdline string) {
	f.nextPID++
	f.procs = append(f.procs, detector.ProcessEntry{PID: f.nextPID, Name: name, Cmdline: cmdline})
}

func (f *fakeOS) List(ctx context.Context) ([]detector.ProcessEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.procs), nil
}

func (f *fakeOS) record(ctx context.Context, call string) error {
	f.calls = append(f.calls, call)
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.fail[call]
}

func (f *fakeOS) Run(ctx context.Context, argv []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := "run " + strings.Join(argv, " ")
	if err := f.record(ctx, call); err != nil {
		return err
	}
	if len(argv) > 0 && argv[0] == "sshd" {
		f.add("sshd", "sshd")
	}
	return nil
}

func (f *fakeOS) Spawn(ctx context.Context, spec process.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := "spawn " + strings.Join(spec.Argv, " ")
	if err := f.record(ctx, call); err != nil {
		return err
	}
	f.add(spec.Argv[0], strings.Join(spec.Argv, " "))
	return nil
}

func (f *fakeOS) Terminate(ctx context.Context, d detector.Detector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := "terminate " + d.Describe()
	if err := f.record(ctx, call); err != nil {
		return err
	}
	kept := f.procs[:0]
	matched := false
	for _, p := range f.procs {
		if d.Match(p) {
			matched = true
			continue
		}
		kept = append(kept, p)
	}
	f.procs = kept
	if !matched {
		return process.ErrNoMatch
	}
	return nil
}

func (f *fakeOS) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type fixedSampler struct{ snap metrics.ResourceSnapshot }

func (s fixedSampler) Sample(ctx context.Context) metrics.ResourceSnapshot { return s.snap }

type memorySink struct {
	mu     sync.Mutex
	events []history.Event
	err    error
}

func (m *memorySink) Send(ctx context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

var errSinkDown = errors.New("sink down")

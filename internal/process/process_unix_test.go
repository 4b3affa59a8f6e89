//go:build !windows

package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/loykin/svcpanel/internal/detector"
	"github.com/loykin/svcpanel/internal/logger"
)

type fakeTable struct {
	entries []detector.ProcessEntry
	err     error
}

func (f fakeTable) List(context.Context) ([]detector.ProcessEntry, error) {
	return f.entries, f.err
}

func TestRunSuccessAndFailure(t *testing.T) {
	o := NewOS(fakeTable{}, Config{})
	ctx := context.Background()
	if err := o.Run(ctx, []string{"true"}); err != nil {
		t.Fatalf("true should succeed: %v", err)
	}
	err := o.Run(ctx, []string{"false"})
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if err := o.Run(ctx, nil); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestRunFoldsOutputIntoError(t *testing.T) {
	o := NewOS(fakeTable{}, Config{})
	err := o.Run(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 3"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected output in error, got %v", err)
	}
}

func TestRunTimeout(t *testing.T) {
	o := NewOS(fakeTable{}, Config{Timeout: 100 * time.Millisecond})
	start := time.Now()
	if err := o.Run(context.Background(), []string{"sleep", "5"}); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout not enforced, took %v", time.Since(start))
	}
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	o := NewOS(fakeTable{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.Run(ctx, []string{"true"}); err != nil {
		t.Fatalf("issued commands are not revocable, got %v", err)
	}
}

func TestSpawnWritesProcessLogs(t *testing.T) {
	dir := t.TempDir()
	o := NewOS(fakeTable{}, Config{ProcessLog: logger.Config{File: logger.FileConfig{Dir: dir}}})
	err := o.Spawn(context.Background(), Spec{
		Name:     "echo",
		Argv:     []string{"sh", "-c", "echo $GREETING"},
		Env:      []string{"GREETING=hi"},
		Detached: true,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	path := filepath.Join(dir, "echo.stdout.log")
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(path); err == nil && strings.Contains(string(b), "hi") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("spawned output not written to %s", path)
}

func TestSpawnLaunchErrors(t *testing.T) {
	o := NewOS(fakeTable{}, Config{})
	ctx := context.Background()
	if err := o.Spawn(ctx, Spec{Name: "x"}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
	err := o.Spawn(ctx, Spec{Name: "x", Argv: []string{"true"}, WorkDir: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Fatalf("expected error for missing workdir")
	}
	if err := o.Spawn(ctx, Spec{Name: "x", Argv: []string{"__definitely_not_exists__"}}); err == nil {
		t.Fatalf("expected error for missing binary")
	}
}

func TestTerminateSignalsMatchingProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	defer func() { _ = cmd.Process.Kill() }()

	table := fakeTable{entries: []detector.ProcessEntry{
		{PID: int32(cmd.Process.Pid), Name: "sleep", Cmdline: "sleep 30"},
	}}
	o := NewOS(table, Config{})
	if err := o.Terminate(context.Background(), detector.NameDetector{Name: "sleep"}); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	err := cmd.Wait()
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected signalled exit, got %v", err)
	}
	ws, ok := ee.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() || ws.Signal() != syscall.SIGTERM {
		t.Fatalf("expected SIGTERM, got %v", ee)
	}
}

func TestTerminateNoMatch(t *testing.T) {
	o := NewOS(fakeTable{entries: []detector.ProcessEntry{{PID: 1, Name: "init"}}}, Config{})
	err := o.Terminate(context.Background(), detector.NameDetector{Name: "sshd"})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "name:sshd") {
		t.Fatalf("error should name the detector: %v", err)
	}
}

func TestTerminateNeverSignalsSelf(t *testing.T) {
	self := detector.ProcessEntry{PID: int32(os.Getpid()), Name: "svcpanel", Cmdline: "python -m http.server"}
	o := NewOS(fakeTable{entries: []detector.ProcessEntry{self}}, Config{})
	err := o.Terminate(context.Background(), detector.CmdlineDetector{Substring: "http.server"})
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch when only self matches, got %v", err)
	}
}

func TestTerminateTableError(t *testing.T) {
	boom := errors.New("permission denied")
	o := NewOS(fakeTable{err: boom}, Config{})
	if err := o.Terminate(context.Background(), detector.NameDetector{Name: "sshd"}); !errors.Is(err, boom) {
		t.Fatalf("expected table error, got %v", err)
	}
}

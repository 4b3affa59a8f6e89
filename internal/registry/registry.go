// Package registry holds the fixed set of services the panel controls.
package registry

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/loykin/svcpanel/internal/detector"
)

// ErrNotFound is returned by Lookup for names outside the fixed registry.
var ErrNotFound = errors.New("service not found")

// Service names. The set never changes while the process runs.
const (
	SSH      = "ssh"
	Web      = "web"
	PM2      = "pm2"
	WakeLock = "wake-lock"
)

// WebServerMarker identifies the HTTP file server in a process command line.
const WebServerMarker = "http.server"

var names = []string{SSH, Web, PM2, WakeLock}

// Names returns the service names in registry order.
func Names() []string { return slices.Clone(names) }

// Known reports whether name is one of the registry's services.
func Known(name string) bool { return slices.Contains(names, name) }

// CommandKind selects how a Command is carried out.
type CommandKind int

const (
	// Invoke runs Argv and waits for it.
	Invoke CommandKind = iota
	// Spawn starts Argv detached in WorkDir.
	Spawn
	// Terminate signals every process matched by Match.
	Terminate
)

func (k CommandKind) String() string {
	switch k {
	case Invoke:
		return "invoke"
	case Spawn:
		return "spawn"
	case Terminate:
		return "terminate"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Command is one start or stop operation of a service.
type Command struct {
	Kind    CommandKind
	Argv    []string
	WorkDir string
	Env     []string // extra KEY=VALUE entries for Spawn
	Match   detector.Detector
}

func (c Command) String() string {
	if c.Kind == Terminate && c.Match != nil {
		return c.Kind.String() + " " + c.Match.Describe()
	}
	return c.Kind.String() + " " + strings.Join(c.Argv, " ")
}

func (c Command) clone() Command {
	c.Argv = slices.Clone(c.Argv)
	c.Env = slices.Clone(c.Env)
	return c
}

// CheckKind selects how a service's listener is reached.
type CheckKind int

const (
	NoCheck CheckKind = iota
	// TCPCheck succeeds when Target (host:port) accepts a connection.
	TCPCheck
	// HTTPCheck succeeds when a GET of Target (a URL) answers 200.
	HTTPCheck
)

func (k CheckKind) String() string {
	switch k {
	case NoCheck:
		return "none"
	case TCPCheck:
		return "tcp"
	case HTTPCheck:
		return "http"
	default:
		return "check(" + strconv.Itoa(int(k)) + ")"
	}
}

// HealthCheck describes an optional reachability check of a service.
type HealthCheck struct {
	Kind   CheckKind
	Target string
}

// Descriptor is the static description of one controllable service.
type Descriptor struct {
	Name  string
	Probe detector.Detector // nil when the service exposes no state
	Start Command
	Stop  Command
	// StopBeforeStart makes a standalone start first stop any leftover
	// instance, so a respawn does not collide on its port.
	StopBeforeStart bool
	Health          HealthCheck
}

// Probed reports whether the service state can be queried.
func (d Descriptor) Probed() bool { return d.Probe != nil }

// Checked reports whether the service has a reachability check.
func (d Descriptor) Checked() bool { return d.Health.Kind != NoCheck }

func (d Descriptor) clone() Descriptor {
	d.Start = d.Start.clone()
	d.Stop = d.Stop.clone()
	return d
}

// Options are the few knobs fixed when the registry is built.
type Options struct {
	WebPort int
	WebDir  string
	Python  string
	WebEnv  []string
	// SSHPort is where sshd listens; Termux uses 8022.
	SSHPort int
	// CheckHost is the address health checks connect to.
	CheckHost string
}

// DefaultOptions mirrors the stock Termux setup.
func DefaultOptions() Options {
	return Options{
		WebPort:   8000,
		WebDir:    "~/storage/shared/termux-projects/my-website",
		Python:    "python",
		SSHPort:   8022,
		CheckHost: "127.0.0.1",
	}
}

// Registry is the immutable, ordered service list.
type Registry struct {
	entries []Descriptor
	index   map[string]int
}

// New builds the registry. Zero option fields take their defaults.
func New(opts Options) *Registry {
	def := DefaultOptions()
	if opts.WebPort <= 0 {
		opts.WebPort = def.WebPort
	}
	if opts.WebDir == "" {
		opts.WebDir = def.WebDir
	}
	if opts.Python == "" {
		opts.Python = def.Python
	}
	if opts.SSHPort <= 0 {
		opts.SSHPort = def.SSHPort
	}
	if opts.CheckHost == "" {
		opts.CheckHost = def.CheckHost
	}
	sshAddr := net.JoinHostPort(opts.CheckHost, strconv.Itoa(opts.SSHPort))
	webURL := "http://" + net.JoinHostPort(opts.CheckHost, strconv.Itoa(opts.WebPort)) + "/"

	sshd := detector.NameDetector{Name: "sshd"}
	httpServer := detector.CmdlineDetector{Substring: WebServerMarker}
	entries := []Descriptor{
		{
			Name:   SSH,
			Probe:  sshd,
			Start:  Command{Kind: Invoke, Argv: []string{"sshd"}},
			Stop:   Command{Kind: Terminate, Match: sshd},
			Health: HealthCheck{Kind: TCPCheck, Target: sshAddr},
		},
		{
			Name:  Web,
			Probe: httpServer,
			Start: Command{
				Kind:    Spawn,
				Argv:    []string{opts.Python, "-m", WebServerMarker, strconv.Itoa(opts.WebPort)},
				WorkDir: opts.WebDir,
				Env:     slices.Clone(opts.WebEnv),
			},
			Stop:            Command{Kind: Terminate, Match: httpServer},
			StopBeforeStart: true,
			Health:          HealthCheck{Kind: HTTPCheck, Target: webURL},
		},
		{
			Name:  PM2,
			Probe: detector.NamePatternDetector{Pattern: "pm2"},
			Start: Command{Kind: Invoke, Argv: []string{"pm2", "resurrect"}},
			Stop:  Command{Kind: Invoke, Argv: []string{"pm2", "kill"}},
		},
		{
			Name:  WakeLock,
			Start: Command{Kind: Invoke, Argv: []string{"termux-wake-lock"}},
			Stop:  Command{Kind: Invoke, Argv: []string{"termux-wake-unlock"}},
		},
	}
	r := &Registry{entries: entries, index: make(map[string]int, len(entries))}
	for i, d := range entries {
		r.index[d.Name] = i
	}
	return r
}

// All returns copies of every descriptor in registry order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.entries))
	for i, d := range r.entries {
		out[i] = d.clone()
	}
	return out
}

// Lookup returns a copy of the named descriptor.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return r.entries[i].clone(), nil
}

package svcpanel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/svcpanel/internal/config"
	"github.com/loykin/svcpanel/internal/detector"
	"github.com/loykin/svcpanel/internal/history"
	"github.com/loykin/svcpanel/internal/history/factory"
	"github.com/loykin/svcpanel/internal/logger"
	"github.com/loykin/svcpanel/internal/metrics"
	"github.com/loykin/svcpanel/internal/process"
	"github.com/loykin/svcpanel/internal/registry"
	iapi "github.com/loykin/svcpanel/internal/server"
	"github.com/loykin/svcpanel/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Status = supervisor.Status

type State = supervisor.State

type Reachability = supervisor.Reachability

type ActionResult = supervisor.ActionResult

type StepResult = supervisor.StepResult

type Action = supervisor.Action

type ResourceSnapshot = metrics.ResourceSnapshot

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Descriptor = registry.Descriptor

var ErrUnknownAction = supervisor.ErrUnknownAction

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

func ParseAction(id string) (Action, error) { return supervisor.ParseAction(id) }

// ActionIDs lists the action ids accepted by the panel endpoints.
func ActionIDs() []string { return supervisor.BoundaryIDs() }

// Panel is the supervisor wired to the real OS, logging, metrics and history.
type Panel struct {
	cfg     *Config
	sup     *supervisor.Supervisor
	log     *slog.Logger
	closers []io.Closer
	reader  history.Reader
}

// Open builds a Panel from c. Close releases log files and history connections.
func Open(c *Config) (*Panel, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	log, logCloser, err := logger.New(c.Log)
	if err != nil {
		return nil, err
	}
	p := &Panel{cfg: c, log: log, closers: []io.Closer{logCloser}}

	regOpts, err := c.RegistryOptions()
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("web env: %w", err)
	}
	table := detector.SystemTable{}
	p.sup = supervisor.New(supervisor.Options{
		Registry: registry.New(regOpts),
		Table:    table,
		Runner: process.NewOS(table, process.Config{
			Timeout:    c.CommandTimeout,
			ProcessLog: c.Log,
			Logger:     log,
		}),
		Sampler: metrics.NewHostSampler(nil, c.Sampler, log),
		Health:  healthChecker(c, log),
		Logger:  log,
	})

	if c.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	if c.History.DSN != "" {
		sink, err := factory.NewSinkFromDSN(c.History.DSN)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		p.sup.SetHistorySinks(sink)
		if cl, ok := sink.(io.Closer); ok {
			p.closers = append(p.closers, cl)
		}
		if r, ok := sink.(history.Reader); ok {
			p.reader = r
		}
	}
	return p, nil
}

func (p *Panel) Status(ctx context.Context) Status { return p.sup.Status(ctx) }

func (p *Panel) Execute(ctx context.Context, id string) ActionResult {
	return p.sup.Execute(ctx, id)
}

func (p *Panel) Run(ctx context.Context, a Action) ActionResult { return p.sup.Run(ctx, a) }

func (p *Panel) Services() []Descriptor { return p.sup.Services() }

func (p *Panel) Logger() *slog.Logger { return p.log }

// Handler returns the panel HTTP API.
func (p *Panel) Handler() http.Handler { return p.router().Handler() }

// NewHTTPServer returns an unstarted server for the configured listen address.
func (p *Panel) NewHTTPServer() *http.Server {
	return iapi.NewServer(p.cfg.Server.Listen, p.router())
}

func (p *Panel) router() *iapi.Router {
	r := iapi.NewRouter(p.sup, p.cfg.Server.BasePath).WithMetrics(p.cfg.Metrics.Enabled)
	if p.reader != nil {
		r = r.WithHistory(p.reader)
	}
	return r
}

// Close releases resources in reverse order of acquisition.
func (p *Panel) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

func healthChecker(c *Config, log *slog.Logger) *supervisor.HealthChecker {
	if !c.Health.Enabled {
		return nil
	}
	return supervisor.NewHealthChecker(c.Health.Timeout, log)
}

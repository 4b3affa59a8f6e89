package metrics

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	DefaultCPUWindow = 800 * time.Millisecond
	DefaultCeiling   = time.Second
	DefaultDiskPath  = "/"
)

// ResourceSnapshot is one reading of host utilisation. Every percentage is
// within [0, 100]; 0 also stands in for a reading that was unavailable.
type ResourceSnapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	TakenAt       time.Time `json:"taken_at"`
}

// HostSource reads raw host counters.
type HostSource interface {
	// CPUPercent averages CPU usage over window.
	CPUPercent(ctx context.Context, window time.Duration) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskPercent(ctx context.Context, path string) (float64, error)
}

// GopsutilSource is the HostSource backed by gopsutil.
type GopsutilSource struct{}

func (GopsutilSource) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	vals, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, errors.New("cpu: no samples")
	}
	return vals[0], nil
}

func (GopsutilSource) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (GopsutilSource) DiskPercent(ctx context.Context, path string) (float64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return u.UsedPercent, nil
}

// SamplerConfig bounds a host sample.
type SamplerConfig struct {
	CPUWindow time.Duration `mapstructure:"cpu_window"`
	Ceiling   time.Duration `mapstructure:"ceiling"`
	DiskPath  string        `mapstructure:"disk_path"`
}

// HostSampler produces ResourceSnapshots. It never fails: metrics are for
// display only and must not hold up service control.
type HostSampler struct {
	src HostSource
	cfg SamplerConfig
	log *slog.Logger
	now func() time.Time
}

// NewHostSampler fills zero config fields with defaults. The ceiling is
// raised above the CPU window when needed so the CPU reading can finish.
func NewHostSampler(src HostSource, cfg SamplerConfig, log *slog.Logger) *HostSampler {
	if src == nil {
		src = GopsutilSource{}
	}
	if cfg.CPUWindow <= 0 {
		cfg.CPUWindow = DefaultCPUWindow
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.Ceiling <= cfg.CPUWindow {
		cfg.Ceiling = cfg.CPUWindow + 200*time.Millisecond
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = DefaultDiskPath
	}
	if log == nil {
		log = slog.Default()
	}
	return &HostSampler{src: src, cfg: cfg, log: log, now: time.Now}
}

type reading struct {
	resource string
	value    float64
	err      error
}

// Sample reads CPU, memory and disk concurrently and returns within the
// configured ceiling. Readings that fail or do not arrive in time are 0.
func (s *HostSampler) Sample(ctx context.Context) ResourceSnapshot {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Ceiling)
	defer cancel()

	ch := make(chan reading, 3)
	go func() {
		v, err := s.src.CPUPercent(ctx, s.cfg.CPUWindow)
		ch <- reading{"cpu", v, err}
	}()
	go func() {
		v, err := s.src.MemoryPercent(ctx)
		ch <- reading{"memory", v, err}
	}()
	go func() {
		v, err := s.src.DiskPercent(ctx, s.cfg.DiskPath)
		ch <- reading{"disk", v, err}
	}()

	var snap ResourceSnapshot
collect:
	for pending := 3; pending > 0; pending-- {
		select {
		case r := <-ch:
			if r.err != nil {
				s.log.Debug("host metric unavailable", "resource", r.resource, "error", r.err)
				continue
			}
			v := clampPercent(r.value)
			switch r.resource {
			case "cpu":
				snap.CPUPercent = v
			case "memory":
				snap.MemoryPercent = v
			case "disk":
				snap.DiskPercent = v
			}
		case <-ctx.Done():
			s.log.Debug("host sample hit ceiling", "ceiling", s.cfg.Ceiling, "missing", pending)
			break collect
		}
	}
	snap.TakenAt = s.now()
	return snap
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/loykin/svcpanel/internal/registry"
)

// Reachability is the advisory outcome of a service health check. It is
// reported next to the probed State and never changes it.
type Reachability string

const (
	Reachable   Reachability = "reachable"
	Unreachable Reachability = "unreachable"
)

// DefaultHealthTimeout bounds a single check when none is configured.
const DefaultHealthTimeout = time.Second

// HealthChecker dials the listeners of services that declare a health check.
type HealthChecker struct {
	timeout time.Duration
	client  *http.Client
	log     *slog.Logger
}

func NewHealthChecker(timeout time.Duration, log *slog.Logger) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &HealthChecker{
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log,
	}
}

// Check reports whether d answers. ok is false when d has no check.
func (h *HealthChecker) Check(ctx context.Context, d registry.Descriptor) (r Reachability, ok bool) {
	if !d.Checked() {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var err error
	switch d.Health.Kind {
	case registry.TCPCheck:
		err = h.dial(ctx, d.Health.Target)
	case registry.HTTPCheck:
		err = h.get(ctx, d.Health.Target)
	default:
		return "", false
	}
	if err != nil {
		h.log.Debug("health check failed", "service", d.Name, "kind", d.Health.Kind, "target", d.Health.Target, "error", err)
		return Unreachable, true
	}
	return Reachable, true
}

// CheckAll runs the checks of ds concurrently. Services without a check are
// absent from the result.
func (h *HealthChecker) CheckAll(ctx context.Context, ds []registry.Descriptor) map[string]Reachability {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]Reachability, len(ds))
	)
	for _, d := range ds {
		if !d.Checked() {
			continue
		}
		wg.Add(1)
		go func(d registry.Descriptor) {
			defer wg.Done()
			if r, ok := h.Check(ctx, d); ok {
				mu.Lock()
				out[d.Name] = r
				mu.Unlock()
			}
		}(d)
	}
	wg.Wait()
	return out
}

func (h *HealthChecker) dial(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

type statusError int

func (e statusError) Error() string { return "unexpected status " + strconv.Itoa(int(e)) }

func (h *HealthChecker) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	return nil
}

package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "svcpanel",
			Subsystem: "supervisor",
			Name:      "actions_total",
			Help:      "Number of executed control actions by outcome.",
		}, []string{"action", "succeeded"},
	)
	actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "svcpanel",
			Subsystem: "supervisor",
			Name:      "action_duration_seconds",
			Help:      "Wall time spent executing a control action.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "svcpanel",
			Subsystem: "service",
			Name:      "up",
			Help:      "Last probed state per service (1 = running, 0 = stopped).",
		}, []string{"service"},
	)
	hostUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "svcpanel",
			Subsystem: "host",
			Name:      "usage_percent",
			Help:      "Last sampled host utilisation per resource.",
		}, []string{"resource"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{actionsTotal, actionDuration, serviceUp, hostUsage}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveAction(action string, succeeded bool, seconds float64) {
	if regOK.Load() {
		actionsTotal.WithLabelValues(action, strconv.FormatBool(succeeded)).Inc()
		actionDuration.WithLabelValues(action).Observe(seconds)
	}
}

func SetServiceUp(service string, up bool) {
	if regOK.Load() {
		var v float64
		if up {
			v = 1
		}
		serviceUp.WithLabelValues(service).Set(v)
	}
}

func SetHostUsage(s ResourceSnapshot) {
	if regOK.Load() {
		hostUsage.WithLabelValues("cpu").Set(s.CPUPercent)
		hostUsage.WithLabelValues("memory").Set(s.MemoryPercent)
		hostUsage.WithLabelValues("disk").Set(s.DiskPercent)
	}
}

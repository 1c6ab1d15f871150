// Package metrics exposes heaptrace counters through Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all heaptrace metrics.
type Registry struct {
	// Shim traffic
	AllocationsTotal prometheus.Counter
	FreesTotal       prometheus.Counter
	ReallocsTotal    prometheus.Counter

	// Corruption detection
	GuardViolations *prometheus.CounterVec
	UseAfterFree    prometheus.Counter
	InvalidPointers prometheus.Counter

	// Tracking state
	TrackedAllocations prometheus.Gauge
	QuarantineSize     prometheus.Gauge
	LeakedAllocations  prometheus.Gauge
	LeakedBytes        prometheus.Gauge
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.AllocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heaptrace_allocations_total",
		Help: "Total allocations passing through the debug shims",
	})

	r.FreesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heaptrace_frees_total",
		Help: "Total frees passing through the debug shims",
	})

	r.ReallocsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heaptrace_reallocs_total",
		Help: "Total reallocations passing through the debug shims",
	})

	r.GuardViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heaptrace_guard_violations_total",
		Help: "Guard bytes found corrupted, by guard position",
	}, []string{"guard"})

	r.UseAfterFree = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heaptrace_use_after_free_total",
		Help: "Quarantined allocations modified after free",
	})

	r.InvalidPointers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heaptrace_invalid_pointers_total",
		Help: "Free or realloc calls on pointers the layer never handed out",
	})

	r.TrackedAllocations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heaptrace_tracked_allocations",
		Help: "Live allocations currently tracked",
	})

	r.QuarantineSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heaptrace_quarantine_size",
		Help: "Freed allocations held in the free-track quarantine",
	})

	r.LeakedAllocations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heaptrace_leaked_allocations",
		Help: "Allocations never freed, counted at shutdown",
	})

	r.LeakedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heaptrace_leaked_bytes",
		Help: "Bytes never freed, counted at shutdown",
	})

	return r
}

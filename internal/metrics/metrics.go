// Package metrics is the process-wide Prometheus registry: verb
// outcome counts and latency, lock wait time, and events appended by
// type. A nil *Registry is valid everywhere it is threaded through —
// every method on it no-ops, so metrics stay fully optional for
// callers (tests, one-shot CLI invocations) that never construct one.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the four verb/lock/event counters and histograms.
type Registry struct {
	VerbTotal      *prometheus.CounterVec
	VerbDuration   *prometheus.HistogramVec
	LockWait       *prometheus.HistogramVec
	EventsAppended *prometheus.CounterVec
}

// New registers a fresh set of metrics against reg and returns the
// Registry wrapping them. Pass prometheus.NewRegistry() for test
// isolation, or DefaultRegisterer() for the long-lived process
// registry.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		VerbTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_verb_total",
			Help: "Total verb invocations by verb and result.",
		}, []string{"verb", "result"}),
		VerbDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lattice_verb_duration_seconds",
			Help:    "Verb execution latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"verb"}),
		LockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lattice_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a resource lock.",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource"}),
		EventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_events_appended_total",
			Help: "Total events appended by event type.",
		}, []string{"type"}),
	}
	reg.MustRegister(r.VerbTotal, r.VerbDuration, r.LockWait, r.EventsAppended)
	return r
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// DefaultRegisterer returns the process-wide Registry, registered
// against prometheus.DefaultRegisterer exactly once regardless of how
// many times it is called (cmd/lattice's serve-http and serve-mcp
// paths, plus doctor/rebuild, all share it).
func DefaultRegisterer() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New(prometheus.DefaultRegisterer)
	})
	return defaultReg
}

// Handler serves the default registry in the Prometheus exposition
// format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveVerb is a no-op on a nil Registry.
func (r *Registry) ObserveVerb(verb, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.VerbTotal.WithLabelValues(verb, result).Inc()
	r.VerbDuration.WithLabelValues(verb).Observe(d.Seconds())
}

// ObserveLockWait is a no-op on a nil Registry.
func (r *Registry) ObserveLockWait(resource string, d time.Duration) {
	if r == nil {
		return
	}
	r.LockWait.WithLabelValues(resource).Observe(d.Seconds())
}

// IncEventsAppended is a no-op on a nil Registry.
func (r *Registry) IncEventsAppended(eventType string) {
	if r == nil {
		return
	}
	r.EventsAppended.WithLabelValues(eventType).Inc()
}

// Timer measures elapsed wall time for a single verb or lock-wait
// observation, mirroring the example pool's own metrics timer helper.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() Timer { return Timer{start: time.Now()} }

// Elapsed returns the time since NewTimer was called.
func (t Timer) Elapsed() time.Duration { return time.Since(t.start) }

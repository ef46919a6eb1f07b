package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
)

// SessionMetricsOptions configures the session core collectors.
type SessionMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// SessionMetrics exposes Prometheus collectors for the session lifecycle, the token refresher
// and the request cache.
type SessionMetrics struct {
	SignIns          *prometheus.CounterVec
	ForcedLogouts    *prometheus.CounterVec
	RevocationEvents *prometheus.CounterVec
	SignedIn         prometheus.Gauge
	Refreshes        *prometheus.CounterVec
	RefreshDuration  prometheus.Histogram
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	Fetches          *prometheus.CounterVec
	FetchErrors      *prometheus.CounterVec
}

// NewSessionMetrics constructs the collectors and registers them with the provided registerer.
// Collectors that are already registered are reused.
func NewSessionMetrics(opts SessionMetricsOptions) (*SessionMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "hrms"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	}

	counter := func(subsystem, name, help string, labels ...string) (*prometheus.CounterVec, error) {
		return Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels))
	}

	var (
		m   SessionMetrics
		err error
	)

	if m.SignIns, err = counter("session", "sign_ins_total", "Sign-in attempts partitioned by outcome.", "outcome"); err != nil {
		return nil, err
	}
	if m.ForcedLogouts, err = counter("session", "forced_logouts_total", "Forced logouts partitioned by reason.", "reason"); err != nil {
		return nil, err
	}
	if m.RevocationEvents, err = counter("session", "revocation_events_total", "Profile revocation signals partitioned by source and decision.", "source", "decision"); err != nil {
		return nil, err
	}
	if m.Refreshes, err = counter("token", "refreshes_total", "Access token refresh attempts partitioned by outcome.", "outcome"); err != nil {
		return nil, err
	}
	if m.CacheHits, err = counter("cache", "hits_total", "Request cache hits partitioned by resource.", "resource"); err != nil {
		return nil, err
	}
	if m.CacheMisses, err = counter("cache", "misses_total", "Request cache misses partitioned by resource.", "resource"); err != nil {
		return nil, err
	}
	if m.Fetches, err = counter("cache", "fetches_total", "Fetches issued after a cache miss partitioned by resource.", "resource"); err != nil {
		return nil, err
	}
	if m.FetchErrors, err = counter("cache", "fetch_errors_total", "Failed fetches partitioned by resource.", "resource"); err != nil {
		return nil, err
	}

	if m.SignedIn, err = Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "signed_in",
		Help:      "1 while the local client holds an active session.",
	})); err != nil {
		return nil, err
	}

	if m.RefreshDuration, err = Register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "token",
		Name:      "refresh_duration_seconds",
		Help:      "Latency of access token refresh calls in seconds.",
		Buckets:   buckets,
	})); err != nil {
		return nil, err
	}

	return &m, nil
}

// Register registers collector, returning the already registered instance when an equal one exists.
func Register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

func (m *SessionMetrics) IncSignIn(outcome string) {
	m.SignIns.WithLabelValues(outcome).Inc()
}

func (m *SessionMetrics) IncForcedLogout(reason domain.LogoutReason) {
	m.ForcedLogouts.WithLabelValues(string(reason)).Inc()
}

func (m *SessionMetrics) IncRevocationEvent(source domain.RevocationSource, decision domain.RevocationDecision) {
	m.RevocationEvents.WithLabelValues(string(source), string(decision)).Inc()
}

func (m *SessionMetrics) SetSignedIn(signedIn bool) {
	if signedIn {
		m.SignedIn.Set(1)
		return
	}
	m.SignedIn.Set(0)
}

func (m *SessionMetrics) IncRefresh(outcome string) {
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func (m *SessionMetrics) ObserveRefreshDuration(duration time.Duration) {
	m.RefreshDuration.Observe(duration.Seconds())
}

func (m *SessionMetrics) IncCacheHit(resource string) {
	m.CacheHits.WithLabelValues(resource).Inc()
}

func (m *SessionMetrics) IncCacheMiss(resource string) {
	m.CacheMisses.WithLabelValues(resource).Inc()
}

func (m *SessionMetrics) IncFetch(resource string) {
	m.Fetches.WithLabelValues(resource).Inc()
}

func (m *SessionMetrics) IncFetchError(resource string) {
	m.FetchErrors.WithLabelValues(resource).Inc()
}

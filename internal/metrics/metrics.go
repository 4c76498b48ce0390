// Package metrics provides Prometheus metrics for token sessions and the
// development authorization provider.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ebu/cpa-go/pkg/cpa"
)

const namespace = "cpa"

// Mode labels.
const (
	ModeClient = "client"
	ModeUser   = "user"
)

// Registry owns the collectors of one process. Separate registries keep
// tests and embedded providers independent of the global default.
type Registry struct {
	reg *prometheus.Registry

	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	sessionsActive   prometheus.Gauge
	pollAttempts     *prometheus.CounterVec

	providerRequests *prometheus.CounterVec
	grantsApproved   prometheus.Counter
}

// NewRegistry creates a registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		sessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "started_total",
				Help:      "Total number of token sessions started",
			},
			[]string{"domain", "mode"},
		),
		sessionsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "finished_total",
				Help:      "Total number of token sessions finished, by final state",
			},
			[]string{"domain", "state"},
		),
		sessionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "duration_seconds",
				Help:      "Time from session start to its final state",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
			},
			[]string{"state"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Number of token sessions in progress",
			},
		),
		pollAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "poll_attempts_total",
				Help:      "Total number of token endpoint polls, by outcome",
			},
			[]string{"domain", "outcome"},
		),

		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "devprovider",
				Name:      "requests_total",
				Help:      "Total number of requests served by the development provider",
			},
			[]string{"endpoint", "code"},
		),
		grantsApproved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "devprovider",
				Name:      "grants_approved_total",
				Help:      "Total number of device grants approved",
			},
		),
	}

	r.reg.MustRegister(
		r.sessionsStarted,
		r.sessionsFinished,
		r.sessionDuration,
		r.sessionsActive,
		r.pollAttempts,
		r.providerRequests,
		r.grantsApproved,
	)
	return r
}

// Gatherer exposes the registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Observer returns a cpa.Observer recording into the registry.
func (r *Registry) Observer() cpa.Observer {
	return &observer{r: r}
}

// RecordProviderRequest counts one request served by the development provider.
func (r *Registry) RecordProviderRequest(endpoint string, code int) {
	r.providerRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// RecordGrantApproved counts one approved device grant.
func (r *Registry) RecordGrantApproved() {
	r.grantsApproved.Inc()
}

type observer struct {
	r *Registry
}

func (o *observer) SessionStarted(domain string, authenticated bool) {
	mode := ModeClient
	if authenticated {
		mode = ModeUser
	}
	o.r.sessionsStarted.WithLabelValues(domain, mode).Inc()
	o.r.sessionsActive.Inc()
}

func (o *observer) PollAttempt(domain string, outcome cpa.PollOutcome) {
	o.r.pollAttempts.WithLabelValues(domain, outcome.String()).Inc()
}

func (o *observer) SessionFinished(domain string, state cpa.SessionState, elapsed time.Duration) {
	o.r.sessionsFinished.WithLabelValues(domain, state.String()).Inc()
	o.r.sessionDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
	o.r.sessionsActive.Dec()
}

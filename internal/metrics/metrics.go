// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus collectors for the overlay daemon.
// Collectors live on a private registry so tests can create as many
// Recorders as they like.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lockoverlay"

// Recorder holds every collector. It satisfies overlay.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	activations   prometheus.Counter
	dismissals    *prometheus.CounterVec
	pinAttempts   *prometheus.CounterVec
	lockouts      prometheus.Counter
	overlayActive prometheus.Gauge

	subscribers     prometheus.Gauge
	wsConnections   prometheus.Gauge
	wsMessages      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	rateLimitDenied prometheus.Counter
}

// New creates a Recorder on a fresh registry. Go runtime and process
// collectors are included when withRuntime is true.
func New(withRuntime bool) *Recorder {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r := &Recorder{
		registry: reg,
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "activations_total",
			Help:      "Overlay sessions started.",
		}),
		dismissals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "dismissals_total",
			Help:      "Overlay sessions ended, by reason.",
		}, []string{"reason"}),
		pinAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pin",
			Name:      "attempts_total",
			Help:      "PIN dismissal attempts, by result (match, mismatch, blocked).",
		}, []string{"result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pin",
			Name:      "lockouts_total",
			Help:      "Sessions that exhausted their PIN attempts.",
		}),
		overlayActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "overlay",
			Name:      "active",
			Help:      "1 while an overlay session is showing.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "subscribers",
			Help:      "Current status channel subscribers.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active event stream connections.",
		}),
		wsMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Status envelopes written to event streams, by encoding.",
		}, []string{"encoding"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Control API requests, by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Control API request latency.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"route"}),
		rateLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Dismiss requests refused by the rate limiter.",
		}),
	}

	reg.MustRegister(
		r.activations, r.dismissals, r.pinAttempts, r.lockouts, r.overlayActive,
		r.subscribers, r.wsConnections, r.wsMessages,
		r.httpRequests, r.httpDuration, r.rateLimitDenied,
	)
	return r
}


// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// =============================================================================
// OVERLAY LIFECYCLE
// =============================================================================

func (r *Recorder) Activated()               { r.activations.Inc() }
func (r *Recorder) Dismissed(reason string)  { r.dismissals.WithLabelValues(reason).Inc() }
func (r *Recorder) PINAttempt(result string) { r.pinAttempts.WithLabelValues(result).Inc() }
func (r *Recorder) LockedOut()               { r.lockouts.Inc() }

// OverlayActive sets the active gauge.
func (r *Recorder) OverlayActive(active bool) {
	if active {
		r.overlayActive.Set(1)
		return
	}
	r.overlayActive.Set(0)
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Subscribers sets the status subscriber gauge. It matches the
// status.WithSubscriberHook signature.
func (r *Recorder) Subscribers(n int) { r.subscribers.Set(float64(n)) }

// StreamOpened and StreamClosed track event stream connections.
func (r *Recorder) StreamOpened() { r.wsConnections.Inc() }
func (r *Recorder) StreamClosed() { r.wsConnections.Dec() }

// MessageSent counts one envelope written in encoding.
func (r *Recorder) MessageSent(encoding string) { r.wsMessages.WithLabelValues(encoding).Inc() }

// Request records one control API request.
func (r *Recorder) Request(route, code string, seconds float64) {
	r.httpRequests.WithLabelValues(route, code).Inc()
	r.httpDuration.WithLabelValues(route).Observe(seconds)
}

// RateLimited counts one refused dismiss request.
func (r *Recorder) RateLimited() { r.rateLimitDenied.Inc() }

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the campaigner service.
type Metrics struct {
	// Dispatch counters
	EmailsSentTotal     *prometheus.CounterVec
	EmailsFailedTotal   *prometheus.CounterVec
	CampaignsTotal      *prometheus.CounterVec
	RecipientsDropped   *prometheus.CounterVec
	SafetyBlockedTotal  prometheus.Counter
	DispatchDurationSec *prometheus.HistogramVec

	// Tracking counters
	TrackingEventsTotal *prometheus.CounterVec

	// Duration cache
	DurationRefreshTotal *prometheus.CounterVec
	DurationCacheHits    prometheus.Counter
	DurationCacheMisses  prometheus.Counter

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_emails_sent_total",
				Help: "Total number of successfully submitted campaign emails",
			},
			[]string{"campaign"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_emails_failed_total",
				Help: "Total number of campaign emails whose transport call failed",
			},
			[]string{"campaign"},
		),
		CampaignsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_campaigns_total",
				Help: "Total number of campaign dispatch runs by outcome",
			},
			[]string{"outcome"},
		),
		RecipientsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_recipients_dropped_total",
				Help: "Recipients removed before dispatch",
			},
			[]string{"reason"},
		),
		SafetyBlockedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaigner_safety_blocked_total",
				Help: "Campaign sends refused by the safety gate",
			},
		),
		DispatchDurationSec: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaigner_dispatch_duration_seconds",
				Help:    "Wall-clock duration of campaign dispatch runs",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"outcome"},
		),

		TrackingEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_tracking_events_total",
				Help: "Open and click tracking events recorded",
			},
			[]string{"kind", "unique"},
		),

		DurationRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_duration_refresh_total",
				Help: "Video duration refresh attempts by result",
			},
			[]string{"result"},
		),
		DurationCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaigner_duration_cache_hits_total",
				Help: "Duration lookups answered from cache",
			},
		),
		DurationCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "campaigner_duration_cache_misses_total",
				Help: "Duration lookups requiring an upstream fetch",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigner_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaigner_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.CampaignsTotal,
		m.RecipientsDropped,
		m.SafetyBlockedTotal,
		m.DispatchDurationSec,
		m.TrackingEventsTotal,
		m.DurationRefreshTotal,
		m.DurationCacheHits,
		m.DurationCacheMisses,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance.
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance, or nil if unset.
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncEmailsSent increments the per-campaign sent counter.
func IncEmailsSent(campaignID string) {
	if m := Global(); m != nil {
		m.EmailsSentTotal.WithLabelValues(campaignID).Inc()
	}
}

// IncEmailsFailed increments the per-campaign failure counter.
func IncEmailsFailed(campaignID string) {
	if m := Global(); m != nil {
		m.EmailsFailedTotal.WithLabelValues(campaignID).Inc()
	}
}

// IncCampaigns records the outcome of one dispatch run.
func IncCampaigns(outcome string) {
	if m := Global(); m != nil {
		m.CampaignsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncRecipientsDropped counts recipients removed before dispatch.
func IncRecipientsDropped(reason string, n int) {
	if m := Global(); m != nil {
		m.RecipientsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// IncSafetyBlocked counts sends refused by the safety gate.
func IncSafetyBlocked() {
	if m := Global(); m != nil {
		m.SafetyBlockedTotal.Inc()
	}
}

// ObserveDispatchDuration records how long a dispatch run took.
func ObserveDispatchDuration(outcome string, seconds float64) {
	if m := Global(); m != nil {
		m.DispatchDurationSec.WithLabelValues(outcome).Observe(seconds)
	}
}

// IncTrackingEvent records an open or click event.
func IncTrackingEvent(kind string, unique bool) {
	if m := Global(); m != nil {
		u := "repeat"
		if unique {
			u = "first"
		}
		m.TrackingEventsTotal.WithLabelValues(kind, u).Inc()
	}
}

// IncDurationRefresh records one video duration refresh attempt.
func IncDurationRefresh(result string) {
	if m := Global(); m != nil {
		m.DurationRefreshTotal.WithLabelValues(result).Inc()
	}
}

// IncDurationCacheHit counts a cache-answered duration lookup.
func IncDurationCacheHit() {
	if m := Global(); m != nil {
		m.DurationCacheHits.Inc()
	}
}

// IncDurationCacheMiss counts a lookup that had to go upstream.
func IncDurationCacheMiss() {
	if m := Global(); m != nil {
		m.DurationCacheMisses.Inc()
	}
}

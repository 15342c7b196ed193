package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

// MetricsService owns the Prometheus registry for HTTP, cache and workflow collectors.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	submissions     *prometheus.CounterVec
	reviewDecisions *prometheus.CounterVec
	partialFailures *prometheus.CounterVec
	pointsAwarded   *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_submissions_total",
		Help: "Evidence submissions accepted, by submission type",
	}, []string{"type", "resubmission"})

	reviewDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "review_decisions_total",
		Help: "Review decisions applied, by decision and whether state changed",
	}, []string{"decision", "changed"})

	partialFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "review_partial_failures_total",
		Help: "Review operations that failed after an earlier step was persisted",
	}, []string{"step"})

	pointsAwarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grit_points_awarded_total",
		Help: "GRIT points credited on approval",
	}, []string{"type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		submissions, reviewDecisions, partialFailures, pointsAwarded, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		submissions:     submissions,
		reviewDecisions: reviewDecisions,
		partialFailures: partialFailures,
		pointsAwarded:   pointsAwarded,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request duration and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup outcome.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSubmission counts an accepted submission.
func (m *MetricsService) RecordSubmission(kind models.SubmissionType, resubmission bool) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(kind), fmt.Sprintf("%t", resubmission)).Inc()
}

// RecordReviewDecision counts an applied review decision.
func (m *MetricsService) RecordReviewDecision(decision string, changed bool) {
	if m == nil {
		return
	}
	m.reviewDecisions.WithLabelValues(decision, fmt.Sprintf("%t", changed)).Inc()
}

// RecordPartialFailure counts a review that stopped at step after persisting earlier steps.
func (m *MetricsService) RecordPartialFailure(step string) {
	if m == nil {
		return
	}
	m.partialFailures.WithLabelValues(step).Inc()
}

// RecordPointsAwarded adds credited points.
func (m *MetricsService) RecordPointsAwarded(kind models.SubmissionType, points int) {
	if m == nil || points <= 0 {
		return
	}
	m.pointsAwarded.WithLabelValues(string(kind)).Add(float64(points))
}

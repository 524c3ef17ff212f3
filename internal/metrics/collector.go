// Package metrics exposes Prometheus metrics for the compliance tracker
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
	"github.com/aegisshield/compliance-tracker/internal/store"
)

const namespace = "compliance_tracker"

// Store operation results
const (
	ResultSuccess  = "success"
	ResultNotFound = "not_found"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Collector manages Prometheus metrics for the compliance tracker
type Collector struct {
	gatherer prometheus.Gatherer

	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec

	analysesTotal *prometheus.CounterVec
	riskScore     prometheus.Histogram
	openGaps      *prometheus.CounterVec

	eventsTotal *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector and registers its metrics with reg. A nil
// reg uses a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		gatherer: reg,

		storeOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of document store operations",
			},
			[]string{"operation", "collection", "result"},
		),
		storeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of document store operations",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"operation", "collection"},
		),

		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gap_analyses_total",
				Help:      "Total number of gap analyses by resulting risk level",
			},
			[]string{"risk_level"},
		),
		riskScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_score",
				Help:      "Distribution of computed risk scores",
				Buckets:   prometheus.LinearBuckets(0, 25, 5),
			},
		),
		openGaps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gaps_found_total",
				Help:      "Total number of gaps found by severity",
			},
			[]string{"severity"},
		),

		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of domain events emitted",
			},
			[]string{"type"},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

// Handler serves the registered metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// RecordStoreOperation records one store call
func (c *Collector) RecordStoreOperation(operation, collection string, err error, duration time.Duration) {
	c.storeOperations.WithLabelValues(operation, collection, resultOf(err)).Inc()
	c.storeDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
}

// ObserveAnalysis records a completed gap analysis
func (c *Collector) ObserveAnalysis(result *compliance.GapAnalysisResult) {
	if result == nil {
		return
	}
	c.analysesTotal.WithLabelValues(string(result.RiskLevel)).Inc()
	c.riskScore.Observe(float64(result.RiskScore))
	c.openGaps.WithLabelValues(string(compliance.SeverityCritical)).Add(float64(result.CriticalGapsCount))
	c.openGaps.WithLabelValues(string(compliance.SeverityHigh)).Add(float64(result.HighGapsCount))
	c.openGaps.WithLabelValues(string(compliance.SeverityMedium)).Add(float64(result.MediumGapsCount))
	c.openGaps.WithLabelValues(string(compliance.SeverityLow)).Add(float64(result.LowGapsCount))
}

// Publish counts domain events. It implements compliance.EventSink and never fails.
func (c *Collector) Publish(_ context.Context, event compliance.Event) error {
	c.eventsTotal.WithLabelValues(string(event.Type)).Inc()
	return nil
}

// RecordHTTPRequest records one HTTP request
func (c *Collector) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, store.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, store.ErrVersionConflict), errors.Is(err, store.ErrAlreadyExists):
		return ResultConflict
	}
	return ResultError
}

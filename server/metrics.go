package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "minhash"

// Metrics holds the HTTP and domain collectors registered on one registry.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	proofs   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Index gauges read live values
// from sigs at scrape time.
func NewMetrics(reg prometheus.Registerer, sigs Signatures) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		proofs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "proofs_total",
			Help:      "Proof issue attempts by outcome.",
		}, []string{"outcome"}),
	}
	if sigs != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "index_keys",
			Help:      "Keys held by the in-memory similarity index.",
		}, func() float64 { return float64(sigs.IndexLen()) })
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "index_failures_total",
			Help:      "Records persisted but not indexed until the next rehydration.",
		}, func() float64 { return float64(sigs.IndexFailures()) })
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "ready",
			Help:      "1 once the index has been rehydrated.",
		}, func() float64 {
			if sigs.Ready() {
				return 1
			}
			return 0
		})
	}
	return m
}

func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route, method).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) proofOutcome(outcome string) {
	m.proofs.WithLabelValues(outcome).Inc()
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
)

const namespace = "gatekeeper"

// Collector exposes gateway counters to Prometheus. It registers on the
// registry it is given so tests and multiple gateways never collide on the
// global default registry.
type Collector struct {
	gatherer        prometheus.Gatherer
	rateLimitChecks *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
	wafViolations   *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ ports.SecurityMetrics = (*Collector)(nil)

func NewCollector(registry *prometheus.Registry) (*Collector, error) {
	c := &Collector{
		gatherer: registry,
		rateLimitChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rate_limit", Name: "checks_total",
			Help: "Rate limit checks by limit class and outcome.",
		}, []string{"class", "outcome"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rate_limit", Name: "store_errors_total",
			Help: "Counter store failures that were admitted open.",
		}, []string{"backend"}),
		wafViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "waf", Name: "violations_total",
			Help: "WAF rule matches by rule, category and severity.",
		}, []string{"rule", "category", "severity"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "rejections_total",
			Help: "Requests refused by a pipeline stage.",
		}, []string{"stage", "code"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "requests_total",
			Help: "Requests handled by route and status code.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "request_duration_seconds",
			Help:    "Time from entering the gateway to the response being written.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	for _, col := range []prometheus.Collector{
		c.rateLimitChecks, c.storeErrors, c.wafViolations, c.rejections, c.requests, c.requestDuration,
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors alongside the gateway's own.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (c *Collector) RecordRateLimit(class domain.LimitClass, limited bool) {
	outcome := "allowed"
	if limited {
		outcome = "limited"
	}
	c.rateLimitChecks.WithLabelValues(string(class), outcome).Inc()
}

func (c *Collector) RecordStoreError(backend string) {
	c.storeErrors.WithLabelValues(backend).Inc()
}

func (c *Collector) RecordViolation(v domain.WAFViolation) {
	c.wafViolations.WithLabelValues(v.RuleID, string(v.Category), string(v.Severity)).Inc()
}

func (c *Collector) RecordRejection(stage string, code domain.ErrorCode) {
	c.rejections.WithLabelValues(stage, string(code)).Inc()
}

func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

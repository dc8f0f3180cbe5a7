package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SaleFinalizeTotal counts finalize attempts by channel and outcome.
	SaleFinalizeTotal *prometheus.CounterVec
	// PaymentTotal counts tenders recorded against sales.
	PaymentTotal *prometheus.CounterVec
	// BackendRequestDuration records backend API latency in milliseconds.
	BackendRequestDuration *prometheus.HistogramVec
	// CatalogCacheTotal counts availability cache hits and misses.
	CatalogCacheTotal *prometheus.CounterVec
	// RateLimitTotal counts rate limit decisions by limiter and result.
	RateLimitTotal *prometheus.CounterVec
	// JournalQueryDuration records sale journal query latency in milliseconds.
	JournalQueryDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SaleFinalizeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_finalize_total",
			Help:      "Count of sale finalize attempts by outcome.",
		}, []string{"channel", "result"})
		PaymentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_total",
			Help:      "Count of tenders recorded by method and outcome.",
		}, []string{"method", "result"})
		BackendRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_ms",
			Help:      "Latency of backend API calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "status"})
		CatalogCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Product availability cache lookups by result.",
		}, []string{"result"})

		RateLimitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limit decisions by limiter and result.",
		}, []string{"limiter", "result"})
		JournalQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "journal_query_duration_ms",
			Help:      "Latency of sale journal queries in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"operation", "result"})

		mustRegisterCollector(reg, SaleFinalizeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SaleFinalizeTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentTotal = v
			}
		})
		mustRegisterCollector(reg, BackendRequestDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				BackendRequestDuration = v
			}
		})
		mustRegisterCollector(reg, CatalogCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogCacheTotal = v
			}
		})
		mustRegisterCollector(reg, RateLimitTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RateLimitTotal = v
			}
		})
		mustRegisterCollector(reg, JournalQueryDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				JournalQueryDuration = v
			}
		})
	})
}

// ObserveFinalize records a finalize outcome when domain metrics are registered.
func ObserveFinalize(channel, result string) {
	if SaleFinalizeTotal != nil {
		SaleFinalizeTotal.WithLabelValues(channel, result).Inc()
	}
}

// ObservePayment records a tender outcome when domain metrics are registered.
func ObservePayment(method, result string) {
	if PaymentTotal != nil {
		PaymentTotal.WithLabelValues(method, result).Inc()
	}
}

// ObserveBackend records a backend call latency when domain metrics are registered.
func ObserveBackend(operation, status string, millis float64) {
	if BackendRequestDuration != nil {
		BackendRequestDuration.WithLabelValues(operation, status).Observe(millis)
	}
}

// ObserveCatalogCache records a cache hit or miss when domain metrics are registered.
func ObserveCatalogCache(result string) {
	if CatalogCacheTotal != nil {
		CatalogCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRateLimit records a rate limit decision when domain metrics are registered.
func ObserveRateLimit(limiter, result string) {
	if RateLimitTotal != nil {
		RateLimitTotal.WithLabelValues(limiter, result).Inc()
	}
}

// ObserveJournalQuery records a journal query latency when domain metrics are registered.
func ObserveJournalQuery(operation, result string, millis float64) {
	if JournalQueryDuration != nil {
		JournalQueryDuration.WithLabelValues(operation, result).Observe(millis)
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

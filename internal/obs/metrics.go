package obs

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Surfaces group gateway routes for metric labels.
const (
	SurfacePOS       = "pos"
	SurfaceSelfOrder = "self_order"
	SurfaceAuth      = "auth"
	SurfaceCatalog   = "catalog"
	SurfaceOps       = "ops"
	SurfaceOther     = "other"
)

// DefaultLatencyBuckets covers local handlers through slow backend submissions.
var DefaultLatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// HTTPMetrics groups the gateway request collectors.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	InFlight *prometheus.GaugeVec
}

// NewHTTPMetrics registers the request collectors on reg, reusing collectors
// a previous call already registered.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = DefaultLatencyBuckets
	}
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Requests served by the gateway by surface, route and status.",
		}, []string{"surface", "method", "route", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_ms",
			Help:      "Gateway request latency in milliseconds.",
			Buckets:   buckets,
		}, []string{"surface", "method", "route"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "in_flight_requests",
			Help:      "Requests currently being served by surface.",
		}, []string{"surface"}),
	}
	mustRegisterCollector(reg, m.Requests, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Requests = v
		}
	})
	mustRegisterCollector(reg, m.Latency, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.HistogramVec); ok {
			m.Latency = v
		}
	})
	mustRegisterCollector(reg, m.InFlight, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.GaugeVec); ok {
			m.InFlight = v
		}
	})
	return m
}

// HTTPObs records request metrics per gateway surface.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

// Middleware counts and times every request. The in-flight gauge is keyed by
// the path surface since the route pattern is only known after routing.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	if o.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathSurface := Surface(r.URL.Path)
		inFlight := o.Metrics.InFlight.WithLabelValues(pathSurface)
		inFlight.Inc()
		defer inFlight.Dec()

		recorder := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)

		route := routeOf(r, "unknown")
		surface := Surface(route)
		o.Metrics.Requests.WithLabelValues(surface, r.Method, route, strconv.Itoa(recorder.Status())).Inc()
		o.Metrics.Latency.WithLabelValues(surface, r.Method, route).Observe(DurationMillis(time.Since(start)))
	})
}

// Surface classifies a route pattern or path into one of the Surface constants.
func Surface(route string) string {
	switch {
	case strings.Contains(route, "/self-order/"):
		return SurfaceSelfOrder
	case strings.Contains(route, "/pos/"):
		return SurfacePOS
	case strings.Contains(route, "/auth"):
		return SurfaceAuth
	case strings.HasSuffix(route, "/products"):
		return SurfaceCatalog
	case strings.HasPrefix(route, "/health"), strings.HasPrefix(route, "/metrics"), strings.HasPrefix(route, "/debug"):
		return SurfaceOps
	default:
		return SurfaceOther
	}
}

// ParseBuckets reads comma-separated millisecond boundaries. The result is
// sorted and deduplicated; an empty input yields nil.
func ParseBuckets(csv string) ([]float64, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}
	seen := map[float64]struct{}{}
	out := []float64{}
	for _, part := range strings.Split(csv, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("latency bucket %q: %w", trimmed, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("latency bucket %q must be positive", trimmed)
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out, nil
}

// DurationMillis converts a duration to fractional milliseconds.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

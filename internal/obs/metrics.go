package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dac_ready",
		Help: "1 when the service passed its readiness probe.",
	})
)

// Метрики движка управления.
var (
	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dac_actions_total",
			Help: "Applied actions by name and result.",
		},
		[]string{"action", "result"},
	)

	actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dac_action_duration_seconds",
			Help:    "Action latency including the storage transaction.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	escalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dac_escalations_total",
		Help: "Proposals escalated to custodial vote.",
	})

	announcementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dac_announcements_total",
			Help: "Announcements posted by kind.",
		},
		[]string{"kind"},
	)
)

var initOnce sync.Once

// Регистрация метрик в default-регистре.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
			actionsTotal, actionDuration, escalationsTotal, announcementsTotal,
		)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ObserveAction records one applied action.
func ObserveAction(action, result string, d time.Duration) {
	actionsTotal.WithLabelValues(action, result).Inc()
	actionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// IncEscalations counts a proposal escalated to custodial vote.
func IncEscalations() {
	escalationsTotal.Inc()
}

// IncAnnouncements counts a posted announcement.
func IncAnnouncements(kind string) {
	announcementsTotal.WithLabelValues(kind).Inc()
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// routeShapes maps the first path segment under /v1 to the placeholder
// names of its trailing segments.
var routeShapes = map[string][]string{
	"actions":   {":name"},
	"supply":    {":symbol"},
	"stats":     {":symbol"},
	"balances":  {":owner", ":symbol"},
	"members":   {":account"},
	"proposals": {":id"},
	"votes":     {":voter", ":id"},
	"usage":     {":payer"},
}

// CanonicalPath collapses identifiers in known routes so metric labels stay
// bounded. Unknown shapes are returned unchanged.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return raw
	}
	shape, ok := routeShapes[parts[1]]
	if !ok || len(parts)-2 > len(shape) {
		return raw
	}
	out := []string{"", "v1", parts[1]}
	out = append(out, shape[:len(parts)-2]...)
	return strings.Join(out, "/")
}

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

package handlers

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"whatsapp-router/internal/utils"
)

// HTTPMetrics instruments the API and tracks open operator sessions.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	sessions prometheus.Gauge
	log      zerolog.Logger
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_http_requests_total",
			Help: "Total count of HTTP requests received.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_http_request_duration_seconds",
			Help:    "Histogram of request durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_http_inflight_requests",
			Help: "Number of requests currently being handled.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_ws_sessions",
			Help: "Operator websocket sessions currently open.",
		}),
		log: utils.Component("http"),
	}
	reg.MustRegister(m.requests, m.duration, m.inFlight, m.sessions)
	return m
}

// SetSessions matches the signature of wsnotify.Hub.OnSessionsChanged.
func (m *HTTPMetrics) SetSessions(count int) {
	m.sessions.Set(float64(count))
}

// Instrument is a mux middleware. Routes are labelled by their template so
// conversation ids never become label values.
func (m *HTTPMetrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := routeTemplate(r)
		labels := []string{r.Method, route, strconv.Itoa(rec.status)}
		m.requests.WithLabelValues(labels...).Inc()
		m.duration.WithLabelValues(labels...).Observe(elapsed.Seconds())

		m.log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Str("client_ip", utils.ClientIP(r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP"), r.RemoteAddr)).
			Msg("requisição atendida")
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// statusRecorder captures the final status code. It keeps Hijack working
// for the websocket upgrade.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("statusRecorder: underlying ResponseWriter does not support hijacking")
}

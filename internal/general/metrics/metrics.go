package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/ports"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "driver_agent"

// Metrics holds the agent's Prometheus collectors.
type Metrics struct {
	reg prometheus.Gatherer

	OffersReceived    prometheus.Counter
	OffersDropped     *prometheus.CounterVec
	RidesCompleted    prometheus.Counter
	RidesCancelled    prometheus.Counter
	Transitions       *prometheus.CounterVec
	ChannelReconnects prometheus.Counter
	LocationSamples   prometheus.Counter
	LocationErrors    prometheus.Counter
	SessionActive     prometheus.Gauge
	NoDriversFound    prometheus.Counter

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	_ ports.TransitionObserver = (*Metrics)(nil)
	_ ports.SampleObserver     = (*Metrics)(nil)
	_ ports.SessionObserver    = (*Metrics)(nil)
)

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWith(reg, reg)
}

// NewWith registers all collectors on reg and serves them from gatherer.
func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: gatherer,
		OffersReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "offers_received_total",
			Help: "Ride offers received from dispatch",
		}),
		OffersDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "offers_dropped_total",
			Help: "Ride offers not surfaced to the driver",
		}, []string{"reason"}),
		RidesCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rides_completed_total",
			Help: "Rides completed",
		}),
		RidesCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rides_cancelled_total",
			Help: "Active rides cancelled by a server error",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transitions_total",
			Help: "Applied offer and ride transitions",
		}, []string{"to"}),
		ChannelReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "channel_reconnects_total",
			Help: "Dispatch channel reconnects",
		}),
		LocationSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "location_samples_total",
			Help: "Location samples forwarded to dispatch",
		}),
		LocationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "location_errors_total",
			Help: "Position acquisition errors",
		}),
		SessionActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "session_active",
			Help: "1 while a dispatch session is running",
		}),
		NoDriversFound: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "no_drivers_found_total",
			Help: "no-drivers-found notices received",
		}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Local API requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Local API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// OnTransition counts every applied transition.
func (m *Metrics) OnTransition(_ context.Context, t ride.Transition) {
	m.Transitions.WithLabelValues(string(t.Event)).Inc()
	switch t.Event {
	case ride.EventOfferReceived:
		m.OffersReceived.Inc()
	case ride.EventRideCompleted:
		m.RidesCompleted.Inc()
	case ride.EventRideCancelled:
		m.RidesCancelled.Inc()
	}
}

// OfferDropped counts an offer that was not surfaced, by reason.
func (m *Metrics) OfferDropped(reason string) {
	m.OffersDropped.WithLabelValues(reason).Inc()
}

// NoDrivers counts a no-drivers-found notice.
func (m *Metrics) NoDrivers() {
	m.NoDriversFound.Inc()
}

// LocationError counts a position acquisition error.
func (m *Metrics) LocationError(error) {
	m.LocationErrors.Inc()
}

// Reconnected counts a dispatch channel reconnect.
func (m *Metrics) Reconnected() {
	m.ChannelReconnects.Inc()
}

// OnSample counts forwarded samples.
func (m *Metrics) OnSample(context.Context, string, *string, geo.Sample) {
	m.LocationSamples.Inc()
}

// OnSessionStart raises the session gauge.
func (m *Metrics) OnSessionStart(context.Context, string) {
	m.SessionActive.Set(1)
}

// OnSessionEnd lowers the session gauge.
func (m *Metrics) OnSessionEnd(context.Context, string) {
	m.SessionActive.Set(0)
}

// Middleware records request count and latency per mux route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Includes provider time for event routes.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap calls by endpoint (geocode, weather) and status.
	ProviderCallsTotal *prometheus.CounterVec

	// OpenWeatherMap latency. No client timeout by default, so watch p99 for hung calls.
	ProviderDuration *prometheus.HistogramVec

	// Provider errors by endpoint and category (client.CategorizeError).
	ProviderErrorsTotal *prometheus.CounterVec

	// Widget workflows by kind (city, coordinates, units, geolocation) and outcome.
	// outcome=superseded counts results discarded because a newer workflow started.
	WidgetWorkflowsTotal *prometheus.CounterVec

	// Workflows skipped because no usable API key was configured.
	CredentialMissingTotal prometheus.Counter

	// City searches (allow-list; others go to "other").
	CityQueriesTotal *prometheus.CounterVec

	// Live widget sessions held by this process.
	ActiveSessions prometheus.Gauge

	// Session store failures by operation (load, save).
	SessionStoreErrorsTotal *prometheus.CounterVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"endpoint", "status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)
	ProviderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerErrorsTotal",
			Help: "OpenWeatherMap errors by endpoint and category",
		},
		[]string{"endpoint", "category"},
	)
	WidgetWorkflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetWorkflowsTotal",
			Help: "Widget lookups by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	CredentialMissingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credentialMissingTotal",
			Help: "Lookups skipped because the API key was missing or a placeholder",
		},
	)
	CityQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityQueriesTotal",
			Help: "City searches by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "activeSessions",
			Help: "Widget sessions currently held in memory",
		},
	)
	SessionStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionStoreErrorsTotal",
			Help: "Session store failures by operation",
		},
		[]string{"op"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderDuration, ProviderErrorsTotal,
		WidgetWorkflowsTotal, CredentialMissingTotal, CityQueriesTotal,
		ActiveSessions, SessionStoreErrorsTotal,
	)
}

// SetTrackedCities sets the allow-list for city metrics. Non-tracked cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordCityQuery records a city search.
func RecordCityQuery(city string) {
	label := MetricCityLabel(city)
	CityQueriesTotal.WithLabelValues(label).Inc()
}

// MetricCityLabel returns the normalized city when tracked, else "other".
func MetricCityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c] // nil map read is safe in Go
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Package metrics exposes the service's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leafcare"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	dueTasks       prometheus.Gauge
	notifications  *prometheus.CounterVec
	completions    *prometheus.CounterVec
	externalCalls  *prometheus.CounterVec
	catalogEntries prometheus.Gauge
	catalogSyncs   *prometheus.CounterVec
}

// New registers every collector on a fresh registry, alongside the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"method", "route", "code"}),
		dueTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "due_tasks",
			Help:      "Care tasks due at the last check.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Reminder notifications by outcome.",
		}, []string{"result"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_completions_total",
			Help:      "Completed care tasks by type.",
		}, []string{"type"}),
		externalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Calls to the identification and image services by outcome.",
		}, []string{"service", "result"}),
		catalogEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_entries",
			Help:      "Care guides in the catalog.",
		}),
		catalogSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_syncs_total",
			Help:      "Catalog syncs by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.dueTasks,
		m.notifications,
		m.completions,
		m.externalCalls,
		m.catalogEntries,
		m.catalogSyncs,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) SetDueTasks(n int) {
	if m == nil {
		return
	}
	m.dueTasks.Set(float64(n))
}

// Notification records a dispatch outcome: sent, duplicate or failed.
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) TaskCompleted(taskType string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(taskType).Inc()
}

// ExternalCall records an identify or wiki call; err == nil counts as ok.
func (m *Metrics) ExternalCall(service string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.externalCalls.WithLabelValues(service, result).Inc()
}

func (m *Metrics) CatalogSynced(entries int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.catalogSyncs.WithLabelValues("error").Inc()
		return
	}
	m.catalogSyncs.WithLabelValues("ok").Inc()
	m.catalogEntries.Set(float64(entries))
}

// Package metrics содержит счётчики Prometheus для клиента API и синхронизации кеша.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты сверки категории с сервером.
const (
	OutcomeUnchanged = "unchanged"
	OutcomeReplaced  = "replaced"
	OutcomeFailed    = "failed"
)

// Metrics объединяет все метрики приложения.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	reconcileTotal  *prometheus.CounterVec
	subscribers     prometheus.Gauge
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tourism_api_requests_total",
				Help: "Total number of requests to the tourism API",
			},
			[]string{"resource", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tourism_api_request_duration_seconds",
				Help:    "Duration of requests to the tourism API",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		reconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_reconcile_total",
				Help: "Results of comparing cached categories with the server",
			},
			[]string{"category", "outcome"},
		),
		subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "live_query_subscribers",
				Help: "Number of active live query subscriptions",
			},
		),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.reconcileTotal, m.subscribers)
	return m
}

// ObserveRequest учитывает один запрос к API. Безопасен для nil.
func (m *Metrics) ObserveRequest(resource, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(resource, outcome).Inc()
	m.requestDuration.WithLabelValues(resource).Observe(d.Seconds())
}

// ObserveReconcile учитывает результат сверки категории. Безопасен для nil.
func (m *Metrics) ObserveReconcile(category, outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(category, outcome).Inc()
}

// SubscriberStarted и SubscriberStopped отслеживают число живых подписок. Безопасны для nil.
func (m *Metrics) SubscriberStarted() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberStopped() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

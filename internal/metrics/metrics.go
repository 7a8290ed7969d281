package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP метрики
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Метрики проверки транзакций
	ChainVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_verifications_total",
			Help: "Total number of on-chain payment verifications by outcome",
		},
		[]string{"chain", "outcome"},
	)
	ChainQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_query_duration_seconds",
			Help:    "Duration of explorer/RPC queries in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"chain"},
	)
	ChainQueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_query_errors_total",
			Help: "Total number of failed explorer/RPC queries",
		},
		[]string{"chain"},
	)

	// Подписки
	SubscriptionActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Total number of plans activated by confirmed payments",
		},
		[]string{"plan", "chain"},
	)
	PaymentIntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_total",
			Help: "Total number of payment intents created",
		},
		[]string{"plan", "chain"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsInFlight)

	prometheus.MustRegister(ChainVerificationsTotal)
	prometheus.MustRegister(ChainQueryDuration)
	prometheus.MustRegister(ChainQueryErrorsTotal)

	prometheus.MustRegister(SubscriptionActivationsTotal)
	prometheus.MustRegister(PaymentIntentsTotal)
}

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests     *prometheus.CounterVec
	remoteErrors *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pip_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		remoteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pip_remote_errors_total",
			Help: "Classified remote model failures.",
		}, []string{"class"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pip_flow_duration_seconds",
			Help:    "End-to-end duration of one flow invocation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"flow"}),
	}
}

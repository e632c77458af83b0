package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "outreach_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MessagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "outreach_messages_sent_total", Help: "Messages delivered"},
	)
	MessagesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "outreach_messages_failed_total", Help: "Message delivery failures"},
	)
	MessagesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "outreach_messages_skipped_total", Help: "Recipients skipped (no address or excluded)"},
	)
	DispatchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "outreach_dispatch_runs_total", Help: "Dispatch runs executed"},
		[]string{"origin"},
	)
	DispatchRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outreach_dispatch_run_duration_seconds",
			Help:    "Time spent executing a dispatch run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	DispatchBusyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "outreach_dispatch_busy_total", Help: "Dispatch requests rejected because a run was in flight"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration,
		MessagesSentTotal, MessagesFailedTotal, MessagesSkippedTotal,
		DispatchRunsTotal, DispatchRunDuration, DispatchBusyTotal,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

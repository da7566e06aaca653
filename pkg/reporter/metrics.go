package reporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

const prometheusMetricNamespace = "usage_reporter"

var (
	refreshTotalCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "refreshes_total",
			Help:      "Number of report refreshes attempted.",
		},
	)

	refreshFailedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "refreshes_failed_total",
			Help:      "Number of report refreshes that failed.",
		},
	)

	refreshDurationHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration to refresh the report.",
			Buckets:   []float64{1.0, 5.0, 15.0, 60.0, 300.0},
		},
	)

	skippedRowsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "skipped_rows_total",
			Help:      "Rows left out of a report, by reason.",
		},
		[]string{"reason"},
	)

	lastRefreshGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		},
	)

	tierUsersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "tier_users",
			Help:      "Users per engagement tier in the latest report.",
		},
		[]string{"tier"},
	)

	funnelUsersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "funnel_stage_users",
			Help:      "Users per funnel stage in the latest report.",
		},
		[]string{"stage"},
	)

	apiRequestsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "api_requests_total",
			Help:      "HTTP API requests by status code and method.",
		},
		[]string{"code", "method"},
	)

	apiRequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "api_request_duration_seconds",
			Help:      "Duration of HTTP API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"code", "method"},
	)
)

func init() {
	prometheus.MustRegister(refreshTotalCounter)
	prometheus.MustRegister(refreshFailedCounter)
	prometheus.MustRegister(refreshDurationHistogram)
	prometheus.MustRegister(skippedRowsCounter)
	prometheus.MustRegister(lastRefreshGauge)
	prometheus.MustRegister(tierUsersGauge)
	prometheus.MustRegister(funnelUsersGauge)
	prometheus.MustRegister(apiRequestsCounter)
	prometheus.MustRegister(apiRequestDurationHistogram)
}

func observeReport(report *engagement.Report) {
	observeQuality(report.Quality)
	lastRefreshGauge.Set(float64(report.GeneratedAt.Unix()))
	for _, s := range report.Segments {
		tierUsersGauge.WithLabelValues(s.Tier.String()).Set(float64(s.Users))
	}
	for _, s := range report.Funnel {
		funnelUsersGauge.WithLabelValues(s.Stage.String()).Set(float64(s.Users))
	}
}

func observeQuality(q usage.DataQuality) {
	skippedRowsCounter.WithLabelValues("malformed").Add(float64(q.MalformedRows))
	skippedRowsCounter.WithLabelValues("duplicate").Add(float64(q.DuplicateRows))
	skippedRowsCounter.WithLabelValues("out_of_window").Add(float64(q.OutOfWindowRows))
}

// Package metrics exposes Prometheus collectors for the relay and pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AskRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crimescope_ask_requests_total",
		Help: "Total /ask requests by response status",
	}, []string{"status"})
	EngineDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crimescope_engine_duration_ms",
		Help:    "Engine call duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"provider"})
	ViewBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crimescope_view_builds_total",
		Help: "Total choropleth view builds by output",
	}, []string{"output"})
	JoinDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crimescope_join_dropped_total",
		Help: "Rows dropped by the region join, by side",
	}, []string{"side"})
	HoverIssuesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crimescope_hover_issues_total",
		Help: "Hover lookups that did not resolve to exactly one record",
	})
	SourceLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crimescope_source_loads_total",
		Help: "Dataset and boundary loads by source and result",
	}, []string{"source", "result"})
)

func init() {
	prometheus.MustRegister(AskRequestsTotal)
	prometheus.MustRegister(EngineDurationMs)
	prometheus.MustRegister(ViewBuildsTotal)
	prometheus.MustRegister(JoinDroppedTotal)
	prometheus.MustRegister(HoverIssuesTotal)
	prometheus.MustRegister(SourceLoadsTotal)
}

// Handler serves the default registry on /metrics.
func Handler() http.Handler { return promhttp.Handler() }

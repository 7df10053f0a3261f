package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SearchTotal counts answered queries by the path that produced the answer.
	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockwise",
			Name:      "search_total",
			Help:      "Total search queries by answer path",
		},
		[]string{"path"},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stockwise",
			Name:      "search_duration_seconds",
			Help:      "Search query duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"path"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockwise",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations requested by the language model",
		},
		[]string{"tool", "status"},
	)

	ModelLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockwise",
			Name:      "model_loads_total",
			Help:      "Total model load attempts",
		},
		[]string{"model", "status"},
	)

	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stockwise",
			Name:      "prediction_duration_seconds",
			Help:      "Model prediction duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"model"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSearch records a completed search on the given path (llm or fallback).
func RecordSearch(path string, durationSec float64) {
	SearchTotal.WithLabelValues(path).Inc()
	SearchDuration.WithLabelValues(path).Observe(durationSec)
}

// RecordToolCall records one tool dispatch.
func RecordToolCall(tool, status string) {
	ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordModelLoad records a load attempt; err nil counts as success.
func RecordModelLoad(model string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ModelLoadsTotal.WithLabelValues(model, status).Inc()
}

// RecordPrediction records model prediction time
func RecordPrediction(model string, durationSec float64) {
	PredictionDuration.WithLabelValues(model).Observe(durationSec)
}

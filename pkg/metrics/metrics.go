// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "insights_engine_build_info",
		Help: "Build information of the insights engine",
	}, []string{"version"})

	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_engine_chat_requests_total", Help: "Processed chat messages by outcome and question type.",
	}, []string{"outcome", "question_type"})
	ChatDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_engine_chat_duration_seconds",
		Help:    "End-to-end chat message latency.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "insights_engine_stage_duration_seconds",
		Help:    "Latency of individual pipeline stages.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	SQLAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_engine_sql_attempts_total", Help: "SQL generation attempts by result.",
	}, []string{"result"})

	SchemaCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_engine_schema_cache_total", Help: "Schema cache lookups by result.",
	}, []string{"result"})
	SchemaTables = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insights_engine_schema_tables", Help: "Number of tables in the cached schema snapshot.",
	})

	OracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_engine_oracle_calls_total", Help: "Oracle calls by result and error type.",
	}, []string{"result", "error_type"})
	OracleRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insights_engine_oracle_transport_retries_total", Help: "Transport-level oracle retries.",
	})
	OracleCircuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "insights_engine_oracle_circuit_state", Help: "Oracle circuit breaker state (0 closed, 1 open, 2 half-open).",
	})

	UsageLogWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "insights_engine_usage_log_writes_total", Help: "Usage log inserts by result.",
	}, []string{"result"})
)

// Stage labels for StageDuration.
const (
	StageSchema         = "schema"
	StageClassification = "classification"
	StageGeneration     = "generation"
	StageExecution      = "execution"
	StageExplanation    = "explanation"
)

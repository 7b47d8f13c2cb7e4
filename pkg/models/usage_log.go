package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageLogEntry records one top-level pipeline invocation.
// Pointer fields are NULL in the store when the stage did not run.
type UsageLogEntry struct {
	ID            int64
	SessionID     uuid.UUID
	QueryID       *uuid.UUID
	TranslationID *uuid.UUID
	SchemaID      *uuid.UUID

	UserMessage string
	Timestamp   time.Time
	UserAgent   string
	IPAddress   string

	SQLQuery        *string
	CleanedSQLQuery *string
	QueryType       *string

	TotalExecutionTimeMs int64
	QueryExecutionTimeMs *int64
	TranslationTimeMs    *int64
	SchemaFetchTimeMs    *int64

	Success      bool
	RowCount     *int
	ErrorMessage *string
	ErrorCode    *string
	ErrorDetails map[string]any

	AssetsFound       int
	RetryCount        int
	IsGeneralQuestion bool

	SystemPromptLength *int
	SchemaTablesCount  *int

	Metadata map[string]any
}

// HourlyUsage is one row of the hourly usage roll-up.
type HourlyUsage struct {
	HourBucket           time.Time `json:"hour_bucket"`
	TotalRequests        int64     `json:"total_requests"`
	SuccessfulRequests   int64     `json:"successful_requests"`
	FailedRequests       int64     `json:"failed_requests"`
	SuccessRate          float64   `json:"success_rate"`
	AvgExecutionTimeMs   float64   `json:"avg_execution_time_ms"`
	AvgQueryTimeMs       float64   `json:"avg_query_time_ms"`
	AvgTranslationTimeMs float64   `json:"avg_translation_time_ms"`
	AvgRowCount          float64   `json:"avg_row_count"`
	AvgAssetsFound       float64   `json:"avg_assets_found"`
	AvgRetryCount        float64   `json:"avg_retry_count"`
	UniqueSessions       int64     `json:"unique_sessions"`
}

// ErrorBreakdown aggregates failures by code and message.
type ErrorBreakdown struct {
	ErrorCode          string    `json:"error_code"`
	ErrorMessage       string    `json:"error_message"`
	ErrorCount         int64     `json:"error_count"`
	AvgExecutionTimeMs float64   `json:"avg_execution_time_before_error"`
	FirstOccurrence    time.Time `json:"first_occurrence"`
	LastOccurrence     time.Time `json:"last_occurrence"`
}

// QueryTypePerformance aggregates invocations by classified query type.
type QueryTypePerformance struct {
	QueryType          string  `json:"query_type"`
	TotalQueries       int64   `json:"total_queries"`
	SuccessfulQueries  int64   `json:"successful_queries"`
	SuccessRate        float64 `json:"success_rate"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
	AvgQueryTimeMs     float64 `json:"avg_query_time_ms"`
	AvgRowCount        float64 `json:"avg_row_count"`
}

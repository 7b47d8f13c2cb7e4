// Package repositories provides data access for the usage log store.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// DBTX is the subset of *pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UsageLogRepository provides data access for pipeline usage logs.
type UsageLogRepository interface {
	Create(ctx context.Context, entry *models.UsageLogEntry) error
	HourlyUsage(ctx context.Context, since time.Time) ([]models.HourlyUsage, error)
	ErrorBreakdown(ctx context.Context, limit int) ([]models.ErrorBreakdown, error)
	QueryTypePerformance(ctx context.Context) ([]models.QueryTypePerformance, error)
}

type usageLogRepository struct {
	db DBTX
}

// NewUsageLogRepository creates a repository over db.
func NewUsageLogRepository(db DBTX) UsageLogRepository {
	return &usageLogRepository{db: db}
}

var _ UsageLogRepository = (*usageLogRepository)(nil)

func (r *usageLogRepository) Create(ctx context.Context, entry *models.UsageLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	errorDetailsJSON, err := marshalJSONB(entry.ErrorDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal error_details: %w", err)
	}
	metadataJSON, err := marshalJSONB(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if metadataJSON == nil {
		metadataJSON = []byte("{}")
	}

	query := `
		INSERT INTO t_usage_logs (
			session_id, query_id, translation_id, schema_id,
			user_message, timestamp, user_agent, ip_address,
			sql_query, cleaned_sql_query, query_type,
			total_execution_time_ms, query_execution_time_ms, translation_time_ms, schema_fetch_time_ms,
			success, row_count, error_message, error_code, error_details,
			assets_found, retry_count, is_general_question,
			system_prompt_length, schema_tables_count, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		RETURNING id`

	err = r.db.QueryRow(ctx, query,
		entry.SessionID,
		entry.QueryID,
		entry.TranslationID,
		entry.SchemaID,
		entry.UserMessage,
		entry.Timestamp,
		nullIfEmpty(entry.UserAgent),
		parseIP(entry.IPAddress),
		entry.SQLQuery,
		entry.CleanedSQLQuery,
		entry.QueryType,
		entry.TotalExecutionTimeMs,
		entry.QueryExecutionTimeMs,
		entry.TranslationTimeMs,
		entry.SchemaFetchTimeMs,
		entry.Success,
		entry.RowCount,
		entry.ErrorMessage,
		entry.ErrorCode,
		errorDetailsJSON,
		entry.AssetsFound,
		entry.RetryCount,
		entry.IsGeneralQuestion,
		entry.SystemPromptLength,
		entry.SchemaTablesCount,
		metadataJSON,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to create usage log entry: %w", err)
	}

	return nil
}

func (r *usageLogRepository) HourlyUsage(ctx context.Context, since time.Time) ([]models.HourlyUsage, error) {
	query := `
		SELECT hour_bucket, total_requests, successful_requests, failed_requests,
			COALESCE(success_rate, 0)::float8,
			COALESCE(avg_execution_time_ms, 0)::float8,
			COALESCE(avg_query_time_ms, 0)::float8,
			COALESCE(avg_translation_time_ms, 0)::float8,
			COALESCE(avg_row_count, 0)::float8,
			COALESCE(avg_assets_found, 0)::float8,
			COALESCE(avg_retry_count, 0)::float8,
			unique_sessions
		FROM v_usage_analytics
		WHERE hour_bucket >= DATE_TRUNC('hour', $1::timestamptz)
		ORDER BY hour_bucket DESC`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly usage: %w", err)
	}
	defer rows.Close()

	result := make([]models.HourlyUsage, 0)
	for rows.Next() {
		var h models.HourlyUsage
		if err := rows.Scan(
			&h.HourBucket, &h.TotalRequests, &h.SuccessfulRequests, &h.FailedRequests,
			&h.SuccessRate, &h.AvgExecutionTimeMs, &h.AvgQueryTimeMs, &h.AvgTranslationTimeMs,
			&h.AvgRowCount, &h.AvgAssetsFound, &h.AvgRetryCount, &h.UniqueSessions,
		); err != nil {
			return nil, fmt.Errorf("failed to scan hourly usage: %w", err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hourly usage: %w", err)
	}

	return result, nil
}

func (r *usageLogRepository) ErrorBreakdown(ctx context.Context, limit int) ([]models.ErrorBreakdown, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT COALESCE(error_code, ''), COALESCE(error_message, ''), error_count,
			COALESCE(avg_execution_time_before_error, 0)::float8,
			first_occurrence, last_occurrence
		FROM v_error_analysis
		ORDER BY error_count DESC, last_occurrence DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query error breakdown: %w", err)
	}
	defer rows.Close()

	result := make([]models.ErrorBreakdown, 0)
	for rows.Next() {
		var e models.ErrorBreakdown
		if err := rows.Scan(
			&e.ErrorCode, &e.ErrorMessage, &e.ErrorCount,
			&e.AvgExecutionTimeMs, &e.FirstOccurrence, &e.LastOccurrence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan error breakdown: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error breakdown: %w", err)
	}

	return result, nil
}

func (r *usageLogRepository) QueryTypePerformance(ctx context.Context) ([]models.QueryTypePerformance, error) {
	query := `
		SELECT query_type, total_queries, successful_queries,
			COALESCE(success_rate, 0)::float8,
			COALESCE(avg_execution_time_ms, 0)::float8,
			COALESCE(avg_query_time_ms, 0)::float8,
			COALESCE(avg_row_count, 0)::float8
		FROM v_query_type_performance
		ORDER BY total_queries DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query query type performance: %w", err)
	}
	defer rows.Close()

	result := make([]models.QueryTypePerformance, 0)
	for rows.Next() {
		var q models.QueryTypePerformance
		if err := rows.Scan(
			&q.QueryType, &q.TotalQueries, &q.SuccessfulQueries,
			&q.SuccessRate, &q.AvgExecutionTimeMs, &q.AvgQueryTimeMs, &q.AvgRowCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan query type performance: %w", err)
		}
		result = append(result, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query type performance: %w", err)
	}

	return result, nil
}

// marshalJSONB marshals a map to JSON bytes, returning nil for nil or empty maps.
func marshalJSONB(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseIP returns nil for addresses the inet column would reject.
// IPv4-mapped IPv6 addresses are stored as IPv4.
func parseIP(s string) *netip.Addr {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil
	}
	addr = addr.Unmap().WithZone("")
	return &addr
}

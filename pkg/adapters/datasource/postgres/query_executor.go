package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
	"github.com/ekaya-inc/insights-engine/pkg/logging"
	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// QueryExecutor provides PostgreSQL query execution.
type QueryExecutor struct {
	pool    Querier
	timeout time.Duration
	logger  *zap.Logger
}

// NewQueryExecutor creates an executor. A positive timeout bounds every statement on
// the client side in addition to the server's statement_timeout.
func NewQueryExecutor(pool Querier, timeout time.Duration, logger *zap.Logger) *QueryExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryExecutor{
		pool:    pool,
		timeout: timeout,
		logger:  logger.Named("query-executor"),
	}
}

// Execute runs sqlQuery once and returns its rows or the engine's diagnostics.
func (e *QueryExecutor) Execute(ctx context.Context, sqlQuery string) *models.ExecutionResult {
	start := time.Now()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	fail := func(err error) *models.ExecutionResult {
		failure := failureFromError(err, e.timeout)
		failure.ExecutionTimeMs = time.Since(start).Milliseconds()
		e.logger.Info("Query failed",
			zap.String("code", failure.Code),
			zap.String("message", failure.Message),
			zap.String("sql", logging.SanitizeQuery(sqlQuery)),
			zap.Int64("elapsed_ms", failure.ExecutionTimeMs))
		return models.Failed(failure)
	}

	rows, err := e.pool.Query(ctx, sqlQuery)
	if err != nil {
		return fail(err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	names := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		names[i] = fd.Name
	}
	columns := uniqueColumns(names)

	resultRows := make([]models.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return fail(err)
		}

		var row models.Row
		for i, name := range names {
			row.Set(name, models.FromDriver(values[i]))
		}
		resultRows = append(resultRows, row)
	}

	if err := rows.Err(); err != nil {
		return fail(err)
	}

	elapsed := time.Since(start).Milliseconds()
	e.logger.Debug("Query succeeded",
		zap.Int("rows", len(resultRows)),
		zap.Int64("elapsed_ms", elapsed))

	return models.Succeeded(&models.QuerySuccess{
		Rows:            resultRows,
		Columns:         columns,
		RowCount:        len(resultRows),
		ExecutionTimeMs: elapsed,
	})
}

// uniqueColumns keeps the first occurrence of each name. Rows hold one value per name,
// so a repeated column shows the value of its last occurrence.
func uniqueColumns(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// failureFromError maps driver errors to the diagnostic fed back into regeneration.
// Fields the engine does not report stay empty.
func failureFromError(err error, timeout time.Duration) *models.QueryFailure {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &models.QueryFailure{
			Message:  pgErr.Message,
			Code:     pgErr.Code,
			Detail:   pgErr.Detail,
			Hint:     pgErr.Hint,
			Position: pgErr.Position,
			Routine:  pgErr.Routine,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		msg := "canceling statement due to client timeout"
		if timeout > 0 {
			msg = fmt.Sprintf("canceling statement due to client timeout after %s", timeout)
		}
		return &models.QueryFailure{Message: msg, Code: apperrors.CodeTimeout}
	}

	if errors.Is(err, context.Canceled) {
		return &models.QueryFailure{Message: "canceling statement due to user request", Code: apperrors.CodeTimeout}
	}

	return &models.QueryFailure{Message: err.Error()}
}

var _ datasource.QueryExecutor = (*QueryExecutor)(nil)

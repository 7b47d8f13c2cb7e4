package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
	"github.com/ekaya-inc/insights-engine/pkg/logging"
	"github.com/ekaya-inc/insights-engine/pkg/metrics"
	"github.com/ekaya-inc/insights-engine/pkg/models"
	sqlutil "github.com/ekaya-inc/insights-engine/pkg/sql"
)

// DefaultMaxRetries is the number of extra attempts after the first failure.
const DefaultMaxRetries = 3

// maxEchoedRawText bounds how much rejected oracle output is echoed into a correction prompt.
const maxEchoedRawText = 2000

// LoopState is a state of the generate-execute-repair loop.
type LoopState int

const (
	StateAttempting LoopState = iota
	StateSucceeded
	StateFailedExhausted
)

func (s LoopState) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateSucceeded:
		return "succeeded"
	case StateFailedExhausted:
		return "failed_exhausted"
	}
	return "unknown"
}

// LoopOutcome is the terminal state of a QueryLoop run.
type LoopOutcome struct {
	State    LoopState
	Attempts []models.GeneratedQuery

	// Result is the last execution result, nil when the last attempt never reached the executor.
	Result *models.ExecutionResult
	// Failure is the last failure when State is StateFailedExhausted.
	Failure *models.QueryFailure
	// Err is set when the final attempt failed before execution (generation or validation).
	Err error

	GenerationTime     time.Duration
	ExecutionTime      time.Duration
	SystemPromptLength int
}

// RetryCount is the number of attempts after the first.
func (o *LoopOutcome) RetryCount() int {
	if len(o.Attempts) == 0 {
		return 0
	}
	return len(o.Attempts) - 1
}

// LastAttempt returns the final generated query, if any.
func (o *LoopOutcome) LastAttempt() (models.GeneratedQuery, bool) {
	if len(o.Attempts) == 0 {
		return models.GeneratedQuery{}, false
	}
	return o.Attempts[len(o.Attempts)-1], true
}

// QueryLoop runs Generator -> Sanitizer -> Executor until a statement succeeds
// or the attempt budget is spent.
type QueryLoop interface {
	Run(ctx context.Context, question string, schema *models.SchemaSnapshot) *LoopOutcome
}

// QueryLoopConfig bounds the loop.
type QueryLoopConfig struct {
	MaxRetries int // Extra attempts after the first; negative means none
	RowLimit   int // Appended when a statement has no limit
}

type queryLoop struct {
	generator SQLGenerator
	executor  datasource.QueryExecutor
	cfg       QueryLoopConfig
	logger    *zap.Logger
}

func NewQueryLoop(generator SQLGenerator, executor datasource.QueryExecutor, cfg QueryLoopConfig, logger *zap.Logger) QueryLoop {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RowLimit <= 0 {
		cfg.RowLimit = sqlutil.DefaultRowLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &queryLoop{
		generator: generator,
		executor:  executor,
		cfg:       cfg,
		logger:    logger.Named("query-loop"),
	}
}

var _ QueryLoop = (*queryLoop)(nil)

// attempt is the Attempting(n) state. prior is the failure of Attempting(n-1).
type attempt struct {
	n     int
	prior *PriorAttempt
}

func (l *queryLoop) Run(ctx context.Context, question string, schema *models.SchemaSnapshot) *LoopOutcome {
	outcome := &LoopOutcome{State: StateAttempting}

	next := &attempt{n: 0}
	for next != nil {
		next = l.step(ctx, question, schema, next, outcome)
	}
	return outcome
}

// step runs one attempt and returns the next state, or nil once outcome is terminal.
func (l *queryLoop) step(ctx context.Context, question string, schema *models.SchemaSnapshot, cur *attempt, outcome *LoopOutcome) *attempt {
	final := cur.n >= l.cfg.MaxRetries
	query := models.GeneratedQuery{AttemptIndex: cur.n}

	genStart := time.Now()
	gen, err := l.generator.Generate(ctx, question, schema, cur.prior)
	outcome.GenerationTime += time.Since(genStart)
	metrics.StageDuration.WithLabelValues(metrics.StageGeneration).Observe(time.Since(genStart).Seconds())

	var failure *models.QueryFailure
	if err != nil {
		failure = &models.QueryFailure{Message: err.Error(), Code: apperrors.CodeGeneration}
	} else {
		query.RawText = gen.RawText
		outcome.SystemPromptLength = gen.SystemPromptLength

		cleaned, cleanErr := sqlutil.Clean(gen.RawText, l.cfg.RowLimit)
		if cleanErr != nil {
			err = cleanErr
			failure = &models.QueryFailure{Message: cleanErr.Error(), Code: apperrors.CodeValidation}
		} else {
			query.CleanedSQL = cleaned
		}
	}
	outcome.Attempts = append(outcome.Attempts, query)

	if failure == nil {
		result := l.executor.Execute(ctx, query.CleanedSQL)
		outcome.Result = result
		outcome.ExecutionTime += time.Duration(result.ElapsedMs()) * time.Millisecond
		metrics.StageDuration.WithLabelValues(metrics.StageExecution).Observe(float64(result.ElapsedMs()) / 1000)

		if result.OK() {
			metrics.SQLAttempts.WithLabelValues("success").Inc()
			outcome.State = StateSucceeded
			l.logger.Info("Query succeeded",
				zap.Int("attempt", cur.n),
				zap.Int("rows", result.Success.RowCount))
			return nil
		}
		failure = result.Failure
		if failure == nil {
			failure = &models.QueryFailure{Message: "executor returned no result"}
		}
	} else {
		outcome.Result = nil
	}

	metrics.SQLAttempts.WithLabelValues(attemptResultLabel(failure)).Inc()
	l.logger.Warn("Query attempt failed",
		zap.Int("attempt", cur.n),
		zap.Bool("final", final),
		zap.String("code", failure.Code),
		zap.String("message", logging.SanitizeMessage(failure.Message)),
		zap.String("sql", logging.SanitizeQuery(query.CleanedSQL)))

	if final || ctx.Err() != nil {
		outcome.State = StateFailedExhausted
		outcome.Failure = failure
		outcome.Err = err
		return nil
	}

	failedSQL := query.CleanedSQL
	if failedSQL == "" {
		// Validation rejected the output; show the oracle what it actually returned.
		failedSQL = logging.TruncateString(strings.TrimSpace(query.RawText), maxEchoedRawText)
	}
	return &attempt{
		n:     cur.n + 1,
		prior: &PriorAttempt{SQL: failedSQL, Failure: failure},
	}
}

func attemptResultLabel(f *models.QueryFailure) string {
	switch {
	case errors.Is(f, apperrors.ErrGeneration):
		return "generation_error"
	case errors.Is(f, apperrors.ErrValidation):
		return "validation_error"
	default:
		return "execution_error"
	}
}

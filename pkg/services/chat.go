// Package services implements the question-to-query pipeline.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
	"github.com/ekaya-inc/insights-engine/pkg/metrics"
	"github.com/ekaya-inc/insights-engine/pkg/models"
	sqlutil "github.com/ekaya-inc/insights-engine/pkg/sql"
)

// User-facing failure messages. Diagnostics go to the usage log.
const (
	MessageQueryFailed   = "I couldn't execute that query. Please try rephrasing your question."
	MessageEmptyQuestion = "Please enter a question."
)

// metricKeywords select metric columns for GetAvailableMetrics.
var metricKeywords = []string{
	"spend", "impression", "click", "conversion", "purchase", "revenue",
	"cost", "ctr", "cvr", "cpa", "roas",
}

var defaultSuggestions = []string{
	"Show me top performing campaigns this month",
	"What's our total spend across all platforms?",
	"Compare performance between different ad formats",
	"Which campaigns have the highest conversion rate?",
	"Show me daily spend trends over the last 30 days",
	"What's our average cost per acquisition?",
	"Which ads are generating the most impressions?",
	"Show me platform performance comparison",
	"What's our return on ad spend (ROAS)?",
	"Which campaigns are underperforming?",
}

var fallbackSuggestions = []string{
	"Show me top performing campaigns",
	"What's our total spend?",
	"Compare platform performance",
}

// ChatService is the pipeline entry point used by the HTTP layer.
type ChatService interface {
	// ProcessMessage answers one user message. It never returns an error;
	// failures are reported in the result.
	ProcessMessage(ctx context.Context, text string, info models.RequestInfo) *models.ChatResult

	// GetSchema returns the cached schema snapshot.
	GetSchema(ctx context.Context) *models.SchemaSnapshot

	// GetAvailableMetrics lists "table.column" names of metric-like columns in schema order.
	GetAvailableMetrics(ctx context.Context) []string

	// GenerateSuggestions returns example questions.
	GenerateSuggestions(ctx context.Context) []string

	// RunSelectOnly executes a caller-supplied statement once. Anything that does not
	// start with SELECT is rejected with apperrors.ErrNotSelect.
	RunSelectOnly(ctx context.Context, sqlQuery string) (*models.ExecutionResult, error)
}

// ChatDeps are the collaborators of the chat service.
type ChatDeps struct {
	Schema     SchemaCache
	Classifier QuestionClassifier
	Loop       QueryLoop
	Executor   datasource.QueryExecutor
	Assets     AssetExtractor
	Explainer  ResultExplainer
	Usage      UsageService
	// Model is recorded in usage metadata.
	Model string
}

type chatService struct {
	deps   ChatDeps
	logger *zap.Logger
}

func NewChatService(deps ChatDeps, logger *zap.Logger) ChatService {
	if deps.Assets == nil {
		deps.Assets = NewAssetExtractor()
	}
	if deps.Usage == nil {
		deps.Usage = NewUsageService(nil, 0, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &chatService{
		deps:   deps,
		logger: logger.Named("chat"),
	}
}

var _ ChatService = (*chatService)(nil)

func (s *chatService) ProcessMessage(ctx context.Context, text string, info models.RequestInfo) *models.ChatResult {
	start := time.Now()
	question := strings.TrimSpace(text)

	entry := &models.UsageLogEntry{
		SessionID:   uuid.New(),
		UserMessage: question,
		Timestamp:   start,
		UserAgent:   info.UserAgent,
		IPAddress:   info.IPAddress,
		Metadata:    map[string]any{},
	}
	if s.deps.Model != "" {
		entry.Metadata["model"] = s.deps.Model
	}

	var result *models.ChatResult
	questionType := models.QuestionSQL
	switch {
	case question == "":
		result = s.failure(entry, &models.QueryFailure{
			Message: "message is required",
			Code:    apperrors.CodeValidation,
		}, MessageEmptyQuestion)
	default:
		questionType = s.deps.Classifier.Classify(ctx, question)
		if questionType == models.QuestionGeneral {
			result = s.answerGeneral(ctx, question, entry)
		} else {
			result = s.answerWithData(ctx, question, entry)
		}
	}

	elapsed := time.Since(start)
	result.SessionID = entry.SessionID
	result.ExecutionTimeMs = elapsed.Milliseconds()
	entry.TotalExecutionTimeMs = result.ExecutionTimeMs

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.ChatRequests.WithLabelValues(outcome, string(questionType)).Inc()
	metrics.ChatDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	s.logger.Info("Processed chat message",
		zap.String("session_id", entry.SessionID.String()),
		zap.String("question_type", string(questionType)),
		zap.Bool("success", result.Success),
		zap.Int("retry_count", entry.RetryCount),
		zap.Int("rows", result.RowCount),
		zap.Int64("elapsed_ms", result.ExecutionTimeMs))

	s.deps.Usage.Log(ctx, entry)
	return result
}

func (s *chatService) answerGeneral(ctx context.Context, question string, entry *models.UsageLogEntry) *models.ChatResult {
	answerStart := time.Now()
	answer := s.deps.Explainer.Answer(ctx, question)
	translationMs := time.Since(answerStart).Milliseconds()

	queryType := "general"
	rowCount := 0
	entry.QueryType = &queryType
	entry.IsGeneralQuestion = true
	entry.Success = true
	entry.RowCount = &rowCount
	entry.TranslationTimeMs = &translationMs

	return &models.ChatResult{
		Success:           true,
		Data:              []models.Row{},
		Explanation:       answer,
		Columns:           []string{},
		AssetURLs:         []models.AssetReference{},
		IsGeneralQuestion: true,
	}
}

func (s *chatService) answerWithData(ctx context.Context, question string, entry *models.UsageLogEntry) *models.ChatResult {
	schemaStart := time.Now()
	schema := s.deps.Schema.Get(ctx)
	schemaMs := time.Since(schemaStart).Milliseconds()
	metrics.StageDuration.WithLabelValues(metrics.StageSchema).Observe(time.Since(schemaStart).Seconds())

	tables := schema.TableCount()
	entry.SchemaFetchTimeMs = &schemaMs
	entry.SchemaTablesCount = &tables
	entry.SchemaID = snapshotID(schema)
	translationID := uuid.New()
	entry.TranslationID = &translationID

	outcome := s.deps.Loop.Run(ctx, question, schema)

	generationMs := outcome.GenerationTime.Milliseconds()
	executionMs := outcome.ExecutionTime.Milliseconds()
	promptLen := outcome.SystemPromptLength
	entry.TranslationTimeMs = &generationMs
	entry.QueryExecutionTimeMs = &executionMs
	entry.SystemPromptLength = &promptLen
	entry.RetryCount = outcome.RetryCount()
	entry.Metadata["attempts"] = len(outcome.Attempts)

	var cleaned string
	if last, ok := outcome.LastAttempt(); ok {
		if last.RawText != "" {
			raw := last.RawText
			entry.SQLQuery = &raw
		}
		if last.CleanedSQL != "" {
			cleaned = last.CleanedSQL
			entry.CleanedSQLQuery = &cleaned
			queryType := sqlutil.ClassifyQueryType(cleaned)
			entry.QueryType = &queryType
		}
	}

	if outcome.State != StateSucceeded {
		failure := outcome.Failure
		if failure == nil {
			failure = &models.QueryFailure{Message: "query could not be generated", Code: apperrors.CodeGeneration}
		}
		return s.failure(entry, failure, MessageQueryFailed)
	}

	success := outcome.Result.Success
	queryID := uuid.New()
	entry.QueryID = &queryID

	assets := s.deps.Assets.Extract(success.Rows, question)
	explanation := s.deps.Explainer.Explain(ctx, question, success)

	rowCount := success.RowCount
	entry.Success = true
	entry.RowCount = &rowCount
	entry.AssetsFound = len(assets)

	return &models.ChatResult{
		Success:     true,
		Data:        success.Rows,
		Explanation: explanation,
		SQLQuery:    &cleaned,
		RowCount:    rowCount,
		Columns:     success.Columns,
		AssetURLs:   assets,
		RetryCount:  entry.RetryCount,
	}
}

func (s *chatService) failure(entry *models.UsageLogEntry, failure *models.QueryFailure, userMessage string) *models.ChatResult {
	msg := failure.Message
	entry.Success = false
	entry.ErrorMessage = &msg
	if failure.Code != "" {
		code := failure.Code
		entry.ErrorCode = &code
	}

	details := failure.Details()
	if len(details) == 0 {
		details = nil
	}
	entry.ErrorDetails = details

	return &models.ChatResult{
		Success:      false,
		Error:        failure.Message,
		ErrorCode:    failure.Code,
		ErrorDetails: details,
		Message:      userMessage,
	}
}

func (s *chatService) GetSchema(ctx context.Context) *models.SchemaSnapshot {
	return s.deps.Schema.Get(ctx)
}

func (s *chatService) GetAvailableMetrics(ctx context.Context) []string {
	schema := s.deps.Schema.Get(ctx)

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, table := range schema.Tables() {
		for _, col := range table.Columns {
			if !containsAny(strings.ToLower(col.Name), metricKeywords) {
				continue
			}
			name := table.Name + "." + col.Name
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func (s *chatService) GenerateSuggestions(ctx context.Context) []string {
	if s.deps.Schema.Get(ctx).IsEmpty() {
		return append([]string(nil), fallbackSuggestions...)
	}
	return append([]string(nil), defaultSuggestions...)
}

func (s *chatService) RunSelectOnly(ctx context.Context, sqlQuery string) (*models.ExecutionResult, error) {
	if !sqlutil.IsSelectOnly(sqlQuery) {
		return nil, apperrors.ErrNotSelect
	}
	return s.deps.Executor.Execute(ctx, sqlQuery), nil
}

// snapshotID identifies a schema snapshot by its fetch time. Nil for the empty schema.
func snapshotID(schema *models.SchemaSnapshot) *uuid.UUID {
	if schema.IsEmpty() {
		return nil
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(schema.FetchedAt().UTC().Format(time.RFC3339Nano)))
	return &id
}

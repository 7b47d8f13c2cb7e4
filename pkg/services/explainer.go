package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/llm"
	"github.com/ekaya-inc/insights-engine/pkg/metrics"
	"github.com/ekaya-inc/insights-engine/pkg/models"
	"github.com/ekaya-inc/insights-engine/pkg/prompts"
)

const (
	explanationTemperature = 0.7
	explanationMaxTokens   = 200
	generalAnswerMaxTokens = 500
)

// GeneralAnswerFallback is returned when a general question cannot be answered.
const GeneralAnswerFallback = "I'm not able to answer that right now. Please try again in a moment."

// ResultExplainer turns results into short business prose.
type ResultExplainer interface {
	// Explain summarizes a successful result. It never fails; oracle errors
	// yield prompts.FallbackExplanation.
	Explain(ctx context.Context, question string, result *models.QuerySuccess) string

	// Answer responds to a question that needs no data. It never fails; oracle
	// errors yield GeneralAnswerFallback.
	Answer(ctx context.Context, question string) string
}

type resultExplainer struct {
	oracle llm.LLMClient
	logger *zap.Logger
}

func NewResultExplainer(oracle llm.LLMClient, logger *zap.Logger) ResultExplainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &resultExplainer{
		oracle: oracle,
		logger: logger.Named("result-explainer"),
	}
}

var _ ResultExplainer = (*resultExplainer)(nil)

func (e *resultExplainer) Explain(ctx context.Context, question string, result *models.QuerySuccess) string {
	rowCount := 0
	if result != nil {
		rowCount = result.RowCount
	}

	text, err := e.complete(ctx,
		prompts.BuildExplanationPrompt(question, result),
		prompts.ExplanationSystemMessage(),
		explanationMaxTokens)
	if err != nil {
		e.logger.Warn("Explanation failed, using fallback", zap.Error(err))
		return prompts.FallbackExplanation(rowCount)
	}
	return text
}

func (e *resultExplainer) Answer(ctx context.Context, question string) string {
	text, err := e.complete(ctx, question, prompts.GeneralSystemMessage(), generalAnswerMaxTokens)
	if err != nil {
		e.logger.Warn("General answer failed, using fallback", zap.Error(err))
		return GeneralAnswerFallback
	}
	return text
}

func (e *resultExplainer) complete(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(metrics.StageExplanation).Observe(time.Since(start).Seconds())
	}()

	resp, err := e.oracle.GenerateResponse(ctx, prompt, system, explanationTemperature, maxTokens)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", llm.NewError(llm.ErrorTypeResponse, "empty completion", false, nil)
	}
	return text, nil
}

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
	classificationTemperature = 0.0
	classificationMaxTokens   = 10
)

// QuestionClassifier decides whether a question needs the database.
type QuestionClassifier interface {
	// Classify never fails. Oracle errors and unclear answers yield QuestionSQL.
	Classify(ctx context.Context, question string) models.QuestionType
}

type questionClassifier struct {
	oracle llm.LLMClient
	logger *zap.Logger
}

func NewQuestionClassifier(oracle llm.LLMClient, logger *zap.Logger) QuestionClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &questionClassifier{
		oracle: oracle,
		logger: logger.Named("question-classifier"),
	}
}

var _ QuestionClassifier = (*questionClassifier)(nil)

func (c *questionClassifier) Classify(ctx context.Context, question string) models.QuestionType {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(metrics.StageClassification).Observe(time.Since(start).Seconds())
	}()

	resp, err := c.oracle.GenerateResponse(ctx,
		prompts.BuildClassificationPrompt(question),
		prompts.ClassificationSystemMessage(),
		classificationTemperature, classificationMaxTokens)
	if err != nil {
		c.logger.Warn("Classification failed, defaulting to sql",
			zap.String("error_type", string(llm.GetErrorType(err))),
			zap.Error(err))
		return models.QuestionSQL
	}

	qt := parseClassification(resp.Content)
	c.logger.Debug("Classified question", zap.String("type", string(qt)))
	return qt
}

// parseClassification accepts "general" only when the answer names it and not sql.
func parseClassification(answer string) models.QuestionType {
	words := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return r < 'a' || r > 'z'
	})
	var sawSQL, sawGeneral bool
	for _, w := range words {
		switch w {
		case "sql":
			sawSQL = true
		case "general":
			sawGeneral = true
		}
	}
	if sawGeneral && !sawSQL {
		return models.QuestionGeneral
	}
	return models.QuestionSQL
}

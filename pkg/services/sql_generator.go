package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
	"github.com/ekaya-inc/insights-engine/pkg/llm"
	"github.com/ekaya-inc/insights-engine/pkg/models"
	"github.com/ekaya-inc/insights-engine/pkg/prompts"
)

const (
	sqlGenerationTemperature = 0.1
	sqlGenerationMaxTokens   = 1000
)

// PriorAttempt is the failed attempt fed back into the next generation.
// SQL holds the rejected raw output when validation failed, and is empty after a generation error.
type PriorAttempt struct {
	SQL     string
	Failure *models.QueryFailure
}

// Generation is the raw output of one oracle call.
type Generation struct {
	RawText            string
	SystemPromptLength int
}

// SQLGenerator turns a question into candidate SQL text.
type SQLGenerator interface {
	// Generate makes exactly one oracle call. When prior is set the user turn asks
	// for a correction of the failed statement. Errors wrap apperrors.ErrGeneration.
	Generate(ctx context.Context, question string, schema *models.SchemaSnapshot, prior *PriorAttempt) (*Generation, error)
}

type sqlGenerator struct {
	oracle  llm.LLMClient
	profile *prompts.Profile
	logger  *zap.Logger
}

// NewSQLGenerator creates a generator. A nil profile uses the embedded default.
func NewSQLGenerator(oracle llm.LLMClient, profile *prompts.Profile, logger *zap.Logger) SQLGenerator {
	if profile == nil {
		profile = prompts.DefaultProfile()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sqlGenerator{
		oracle:  oracle,
		profile: profile,
		logger:  logger.Named("sql-generator"),
	}
}

var _ SQLGenerator = (*sqlGenerator)(nil)

func (g *sqlGenerator) Generate(ctx context.Context, question string, schema *models.SchemaSnapshot, prior *PriorAttempt) (*Generation, error) {
	systemPrompt := prompts.BuildSQLSystemPrompt(schema, g.profile)

	userPrompt := question
	if prior != nil && prior.Failure != nil {
		userPrompt = prompts.BuildCorrectionPrompt(question, prior.SQL, prior.Failure)
	}

	resp, err := g.oracle.GenerateResponse(ctx, userPrompt, systemPrompt, sqlGenerationTemperature, sqlGenerationMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrGeneration, err)
	}

	raw := strings.TrimSpace(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("%w: oracle returned an empty response", apperrors.ErrGeneration)
	}

	g.logger.Debug("Generated SQL candidate",
		zap.Bool("correction", prior != nil),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens))

	return &Generation{RawText: raw, SystemPromptLength: len(systemPrompt)}, nil
}

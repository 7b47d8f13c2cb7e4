package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
	"github.com/ekaya-inc/insights-engine/pkg/models"
)

func newTestLoop(oracleResponses []string, results []*models.ExecutionResult, maxRetries int) (QueryLoop, *mockExecutor, func() []string) {
	oracle := scriptedOracle(oracleResponses...)
	exec := &mockExecutor{results: results}
	loop := NewQueryLoop(NewSQLGenerator(oracle, nil, nil), exec, QueryLoopConfig{MaxRetries: maxRetries, RowLimit: 100}, nil)
	prompts := func() []string {
		return append([]string(nil), oracle.Prompts...)
	}
	return loop, exec, prompts
}

func TestQueryLoop_SucceedsFirstAttempt(t *testing.T) {
	loop, exec, prompts := newTestLoop(
		[]string{"```sql\nSELECT SUM(spend) FROM t_ad_campaign_daily_performance;\n```"},
		[]*models.ExecutionResult{execSuccess([]string{"sum"}, models.NewRow(models.Cell{Column: "sum", Value: models.NumberValue(10)}))},
		3)

	outcome := loop.Run(context.Background(), "What is our total spend?", testSnapshot("t_ad_campaign_daily_performance"))

	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, 0, outcome.RetryCount())
	assert.Equal(t, []string{"SELECT SUM(spend) FROM t_ad_campaign_daily_performance LIMIT 100"}, exec.Queries())
	require.Len(t, prompts(), 1)
	assert.Equal(t, "What is our total spend?", prompts()[0])
	assert.Positive(t, outcome.SystemPromptLength)
}

func TestQueryLoop_FailFailSuccess(t *testing.T) {
	loop, exec, prompts := newTestLoop(
		[]string{
			"SELECT spendd FROM t_ad LIMIT 10",
			"SELECT spend FROM t_ad_x LIMIT 10",
			"SELECT spend FROM t_ad_daily_performance LIMIT 10",
		},
		[]*models.ExecutionResult{
			execFailure(`column "spendd" does not exist`, "42703"),
			execFailure(`relation "t_ad_x" does not exist`, "42P01"),
			execSuccess([]string{"spend"}, models.NewRow(models.Cell{Column: "spend", Value: models.NumberValue(5)})),
		},
		3)

	outcome := loop.Run(context.Background(), "spend per ad", nil)

	require.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, 2, outcome.RetryCount())
	assert.Len(t, exec.Queries(), 3)
	require.True(t, outcome.Result.OK())
	assert.Equal(t, 1, outcome.Result.Success.RowCount)

	p := prompts()
	require.Len(t, p, 3)
	assert.Contains(t, p[1], `column "spendd" does not exist`)
	assert.Contains(t, p[1], "SELECT spendd FROM t_ad LIMIT 10")
	assert.Contains(t, p[2], `relation "t_ad_x" does not exist`)
	assert.Contains(t, p[2], "42P01")
	assert.NotContains(t, p[2], "spendd", "retry prompt must carry only the immediately preceding failure")
}

func TestQueryLoop_AllFailExhausts(t *testing.T) {
	loop, exec, _ := newTestLoop(
		[]string{"SELECT a FROM t LIMIT 1", "SELECT b FROM t LIMIT 1", "SELECT c FROM t LIMIT 1", "SELECT d FROM t LIMIT 1", "SELECT e FROM t LIMIT 1"},
		[]*models.ExecutionResult{
			execFailure("fail 1", "42703"),
			execFailure("fail 2", "42703"),
			execFailure("fail 3", "42703"),
			models.Failed(&models.QueryFailure{Message: "fail 4", Code: "42601", Hint: "check syntax", Position: 9}),
		},
		3)

	outcome := loop.Run(context.Background(), "q", nil)

	assert.Equal(t, StateFailedExhausted, outcome.State)
	assert.Len(t, outcome.Attempts, 4)
	assert.Len(t, exec.Queries(), 4)
	assert.Equal(t, 3, outcome.RetryCount())
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, "fail 4", outcome.Failure.Message)
	assert.Equal(t, "check syntax", outcome.Failure.Hint)
	assert.Equal(t, int32(9), outcome.Failure.Position)
	assert.NoError(t, outcome.Err)
}

func TestQueryLoop_ValidationErrorIsRetried(t *testing.T) {
	loop, exec, prompts := newTestLoop(
		[]string{"I cannot answer that.", "SELECT 1 LIMIT 1"},
		[]*models.ExecutionResult{execSuccess([]string{"?column?"})},
		3)

	outcome := loop.Run(context.Background(), "q", nil)

	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, 1, outcome.RetryCount())
	assert.Equal(t, []string{"SELECT 1 LIMIT 1"}, exec.Queries())
	p := prompts()
	require.Len(t, p, 2)
	assert.Contains(t, p[1], apperrors.CodeValidation)
	assert.Contains(t, p[1], "I cannot answer that.")
}

func TestQueryLoop_GenerationErrorRetryHasNoStatement(t *testing.T) {
	loop, exec, prompts := newTestLoop(
		[]string{"", "SELECT 1 LIMIT 1"},
		[]*models.ExecutionResult{execSuccess([]string{"?column?"})},
		3)

	outcome := loop.Run(context.Background(), "q", nil)

	assert.Equal(t, StateSucceeded, outcome.State)
	assert.Equal(t, []string{"SELECT 1 LIMIT 1"}, exec.Queries())
	p := prompts()
	require.Len(t, p, 2)
	assert.Contains(t, p[1], apperrors.CodeGeneration)
	assert.Contains(t, p[1], "no SQL statement could be extracted")
}

func TestQueryLoop_GenerationErrorOnFinalAttemptPropagates(t *testing.T) {
	loop, exec, _ := newTestLoop([]string{""}, []*models.ExecutionResult{execSuccess(nil)}, 1)

	outcome := loop.Run(context.Background(), "q", nil)

	assert.Equal(t, StateFailedExhausted, outcome.State)
	assert.Len(t, outcome.Attempts, 2)
	assert.Empty(t, exec.Queries())
	assert.ErrorIs(t, outcome.Err, apperrors.ErrGeneration)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, apperrors.CodeGeneration, outcome.Failure.Code)
	assert.Nil(t, outcome.Result)
}

func TestQueryLoop_ZeroRetries(t *testing.T) {
	loop, exec, _ := newTestLoop([]string{"SELECT 1"}, []*models.ExecutionResult{execFailure("boom", "XX000")}, 0)

	outcome := loop.Run(context.Background(), "q", nil)

	assert.Equal(t, StateFailedExhausted, outcome.State)
	assert.Len(t, exec.Queries(), 1)
}

func TestQueryLoop_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	oracle := scriptedOracle("SELECT 1 LIMIT 1")
	exec := &mockExecutor{results: []*models.ExecutionResult{execFailure("canceling statement due to user request", "57014")}}
	loop := NewQueryLoop(NewSQLGenerator(oracle, nil, nil), executorFunc(func(c context.Context, q string) *models.ExecutionResult {
		cancel()
		return exec.Execute(c, q)
	}), QueryLoopConfig{MaxRetries: 3}, nil)

	outcome := loop.Run(ctx, "q", nil)

	assert.Equal(t, StateFailedExhausted, outcome.State)
	assert.Equal(t, 1, oracle.Calls())
	assert.True(t, strings.HasPrefix(exec.Queries()[0], "SELECT 1"))
}

type executorFunc func(ctx context.Context, sqlQuery string) *models.ExecutionResult

func (f executorFunc) Execute(ctx context.Context, sqlQuery string) *models.ExecutionResult {
	return f(ctx, sqlQuery)
}

func TestLoopState_String(t *testing.T) {
	assert.Equal(t, "attempting", StateAttempting.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "failed_exhausted", StateFailedExhausted.String())
}

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ekaya-inc/insights-engine/pkg/llm"
	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// mockExecutor returns results in order, repeating the last one.
type mockExecutor struct {
	mu      sync.Mutex
	results []*models.ExecutionResult
	queries []string
}

func (m *mockExecutor) Execute(ctx context.Context, sqlQuery string) *models.ExecutionResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, sqlQuery)
	i := len(m.queries) - 1
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	return m.results[i]
}

func (m *mockExecutor) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// mockUsageService records logged entries.
type mockUsageService struct {
	mu      sync.Mutex
	entries []*models.UsageLogEntry
}

func (m *mockUsageService) Log(ctx context.Context, entry *models.UsageLogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

func (m *mockUsageService) HourlyUsage(ctx context.Context, since time.Time) ([]models.HourlyUsage, error) {
	return nil, nil
}

func (m *mockUsageService) ErrorBreakdown(ctx context.Context, limit int) ([]models.ErrorBreakdown, error) {
	return nil, nil
}

func (m *mockUsageService) QueryTypePerformance(ctx context.Context) ([]models.QueryTypePerformance, error) {
	return nil, nil
}

func (m *mockUsageService) Last() *models.UsageLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

// scriptedOracle answers with responses in order; an empty string means an error.
func scriptedOracle(responses ...string) *llm.MockLLMClient {
	mock := llm.NewMockLLMClient()
	var mu sync.Mutex
	next := 0
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64, maxTokens int) (*llm.GenerateResponseResult, error) {
		mu.Lock()
		defer mu.Unlock()
		i := next
		if i >= len(responses) {
			i = len(responses) - 1
		}
		next++
		if responses[i] == "" {
			return nil, llm.NewError(llm.ErrorTypeEndpoint, "oracle unavailable", true, errors.New("503"))
		}
		return &llm.GenerateResponseResult{Content: responses[i]}, nil
	}
	return mock
}

func execFailure(msg, code string) *models.ExecutionResult {
	return models.Failed(&models.QueryFailure{Message: msg, Code: code, ExecutionTimeMs: 3})
}

func execSuccess(columns []string, rows ...models.Row) *models.ExecutionResult {
	return models.Succeeded(&models.QuerySuccess{
		Rows:            rows,
		Columns:         columns,
		RowCount:        len(rows),
		ExecutionTimeMs: 7,
	})
}

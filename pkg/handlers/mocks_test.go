package handlers

import (
	"context"
	"time"

	"github.com/ekaya-inc/insights-engine/pkg/models"
	"github.com/ekaya-inc/insights-engine/pkg/services"
)

type mockChatService struct {
	result      *models.ChatResult
	lastMessage string
	lastInfo    models.RequestInfo

	schema      *models.SchemaSnapshot
	metrics     []string
	suggestions []string

	execResult *models.ExecutionResult
	execErr    error
	lastSQL    string
}

var _ services.ChatService = (*mockChatService)(nil)

func (m *mockChatService) ProcessMessage(_ context.Context, text string, info models.RequestInfo) *models.ChatResult {
	m.lastMessage = text
	m.lastInfo = info
	return m.result
}

func (m *mockChatService) GetSchema(context.Context) *models.SchemaSnapshot {
	if m.schema == nil {
		return models.EmptySchema()
	}
	return m.schema
}

func (m *mockChatService) GetAvailableMetrics(context.Context) []string { return m.metrics }

func (m *mockChatService) GenerateSuggestions(context.Context) []string { return m.suggestions }

func (m *mockChatService) RunSelectOnly(_ context.Context, sqlQuery string) (*models.ExecutionResult, error) {
	m.lastSQL = sqlQuery
	return m.execResult, m.execErr
}

type mockUsageService struct {
	hourly     []models.HourlyUsage
	errors     []models.ErrorBreakdown
	queryTypes []models.QueryTypePerformance
	err        error

	lastSince time.Time
	lastLimit int
}

var _ services.UsageService = (*mockUsageService)(nil)

func (m *mockUsageService) Log(context.Context, *models.UsageLogEntry) {}

func (m *mockUsageService) HourlyUsage(_ context.Context, since time.Time) ([]models.HourlyUsage, error) {
	m.lastSince = since
	return m.hourly, m.err
}

func (m *mockUsageService) ErrorBreakdown(_ context.Context, limit int) ([]models.ErrorBreakdown, error) {
	m.lastLimit = limit
	return m.errors, m.err
}

func (m *mockUsageService) QueryTypePerformance(context.Context) ([]models.QueryTypePerformance, error) {
	return m.queryTypes, m.err
}

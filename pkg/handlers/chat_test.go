package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
	"github.com/ekaya-inc/insights-engine/pkg/models"
)

func newChatMux(svc *mockChatService) *http.ServeMux {
	mux := http.NewServeMux()
	NewChatHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func serve(mux *http.ServeMux, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestChatHandler_Message_Success(t *testing.T) {
	sql := "SELECT SUM(spend) AS total_spend FROM t_ad_campaign_daily_performance LIMIT 100"
	svc := &mockChatService{result: &models.ChatResult{
		Success:     true,
		Data:        []models.Row{models.NewRow(models.Cell{Column: "total_spend", Value: models.NumberValue(120.5)})},
		Columns:     []string{"total_spend"},
		RowCount:    1,
		SQLQuery:    &sql,
		Explanation: "Total spend was 120.50.",
		SessionID:   uuid.New(),
	}}

	rec := serve(newChatMux(svc), http.MethodPost, "/api/chat/message",
		`{"message":"What is the total spend?"}`,
		map[string]string{"User-Agent": "insights-test/1.0", "X-Forwarded-For": "203.0.113.9, 10.0.0.1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "What is the total spend?", svc.lastMessage)
	assert.Equal(t, "insights-test/1.0", svc.lastInfo.UserAgent)
	assert.Equal(t, "203.0.113.9", svc.lastInfo.IPAddress)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, sql, body["sqlQuery"])
	assert.Equal(t, float64(1), body["rowCount"])
	assert.Equal(t, "Total spend was 120.50.", body["explanation"])
	assert.Equal(t, []any{}, body["assetUrls"])
}

func TestChatHandler_Message_PipelineFailureIsOK(t *testing.T) {
	svc := &mockChatService{result: &models.ChatResult{
		Success:   false,
		Error:     `column "spendd" does not exist`,
		ErrorCode: "42703",
		Message:   "I couldn't execute that query. Please try rephrasing your question.",
	}}

	rec := serve(newChatMux(svc), http.MethodPost, "/api/chat/message", `{"message":"spend?"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "42703", body["errorCode"])
}

func TestChatHandler_Message_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{}`},
		{"non-string message", `{"message": 42}`},
		{"malformed JSON", `{"message":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockChatService{}
			rec := serve(newChatMux(svc), http.MethodPost, "/api/chat/message", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
			assert.Empty(t, svc.lastMessage)
		})
	}
}

func TestChatHandler_Suggestions(t *testing.T) {
	svc := &mockChatService{suggestions: []string{"Show me total spend by campaign"}}

	rec := serve(newChatMux(svc), http.MethodGet, "/api/chat/suggestions", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{"Show me total spend by campaign"}, body["suggestions"])
}

func TestChatHandler_Metrics_EmptyIsArray(t *testing.T) {
	rec := serve(newChatMux(&mockChatService{}), http.MethodGet, "/api/chat/metrics", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeBody(t, rec)["metrics"])
}

func TestChatHandler_Schema(t *testing.T) {
	svc := &mockChatService{schema: models.NewSchemaSnapshot([]models.TableSchema{{
		Name: "t_ad",
		Columns: []models.ColumnDescriptor{
			{Name: "raw_ad_id", DataType: "character varying", IsNullable: false},
		},
	}}, time.Now())}

	rec := serve(newChatMux(svc), http.MethodGet, "/api/chat/schema", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	schema, ok := body["schema"].(map[string]any)
	require.True(t, ok, "schema should be an object")
	cols, ok := schema["t_ad"].([]any)
	require.True(t, ok)
	require.Len(t, cols, 1)
	assert.Equal(t, "raw_ad_id", cols[0].(map[string]any)["column"])
}

func TestChatHandler_RawSQL(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &mockChatService{execResult: models.Succeeded(&models.QuerySuccess{
			Rows:            []models.Row{models.NewRow(models.Cell{Column: "n", Value: models.NumberValue(3)})},
			Columns:         []string{"n"},
			RowCount:        1,
			ExecutionTimeMs: 4,
		})}

		rec := serve(newChatMux(svc), http.MethodPost, "/api/chat/sql", `{"query":"SELECT COUNT(*) AS n FROM t_ad"}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "SELECT COUNT(*) AS n FROM t_ad", svc.lastSQL)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, float64(1), body["rowCount"])
		assert.Equal(t, float64(4), body["executionTimeMs"])
		assert.Equal(t, []any{"n"}, body["columns"])
	})

	t.Run("execution failure", func(t *testing.T) {
		svc := &mockChatService{execResult: models.Failed(&models.QueryFailure{
			Message:  `relation "t_missing" does not exist`,
			Code:     "42P01",
			Position: 15,
		})}

		rec := serve(newChatMux(svc), http.MethodPost, "/api/chat/sql", `{"query":"SELECT * FROM t_missing"}`, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "42P01", body["errorCode"])
		assert.Equal(t, map[string]any{"position": float64(15)}, body["errorDetails"])
	})

	t.Run("not a select", func(t *testing.T) {
		svc := &mockChatService{execErr: apperrors.ErrNotSelect}

		rec := serve(newChatMux(svc), http.MethodPost, "/api/chat/sql", `{"query":"DELETE FROM t_ad"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "not_select", decodeBody(t, rec)["error"])
	})

	t.Run("missing query", func(t *testing.T) {
		svc := &mockChatService{}

		rec := serve(newChatMux(svc), http.MethodPost, "/api/chat/sql", `{"query":""}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, svc.lastSQL)
	})

	t.Run("unexpected error", func(t *testing.T) {
		svc := &mockChatService{execErr: errors.New("pool closed")}

		rec := serve(newChatMux(svc), http.MethodPost, "/api/chat/sql", `{"query":"SELECT 1"}`, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestChatHandler_MethodNotAllowed(t *testing.T) {
	rec := serve(newChatMux(&mockChatService{}), http.MethodGet, "/api/chat/message", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

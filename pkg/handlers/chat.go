package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
	"github.com/ekaya-inc/insights-engine/pkg/middleware"
	"github.com/ekaya-inc/insights-engine/pkg/models"
	"github.com/ekaya-inc/insights-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ChatMessageRequest for POST /api/chat/message
type ChatMessageRequest struct {
	Message *string `json:"message"`
}

// RawSQLRequest for POST /api/chat/sql
type RawSQLRequest struct {
	Query *string `json:"query"`
}

// SuggestionsResponse for GET /api/chat/suggestions
type SuggestionsResponse struct {
	Success     bool     `json:"success"`
	Suggestions []string `json:"suggestions"`
}

// MetricsResponse for GET /api/chat/metrics
type MetricsResponse struct {
	Success bool     `json:"success"`
	Metrics []string `json:"metrics"`
}

// SchemaResponse for GET /api/chat/schema
type SchemaResponse struct {
	Success bool                   `json:"success"`
	Schema  *models.SchemaSnapshot `json:"schema"`
}

// RawSQLResponse for POST /api/chat/sql. Exactly one of the result or the
// failure fields is populated.
type RawSQLResponse struct {
	Success         bool           `json:"success"`
	Timestamp       time.Time      `json:"timestamp"`
	Data            []models.Row   `json:"data,omitempty"`
	Columns         []string       `json:"columns,omitempty"`
	RowCount        int            `json:"rowCount"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	Error           string         `json:"error,omitempty"`
	ErrorCode       string         `json:"errorCode,omitempty"`
	ErrorDetails    map[string]any `json:"errorDetails,omitempty"`
}

// ============================================================================
// Handler
// ============================================================================

// ChatHandler exposes the question answering pipeline over HTTP.
type ChatHandler struct {
	chatService services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService services.ChatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		chatService: chatService,
		logger:      logger.Named("chat-handler"),
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/chat"

	mux.HandleFunc("POST "+base+"/message", h.Message)
	mux.HandleFunc("GET "+base+"/suggestions", h.Suggestions)
	mux.HandleFunc("GET "+base+"/metrics", h.Metrics)
	mux.HandleFunc("GET "+base+"/schema", h.Schema)
	mux.HandleFunc("POST "+base+"/sql", h.RawSQL)
}

// Message handles POST /api/chat/message.
// Pipeline failures are reported in the body with status 200.
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req ChatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Message == nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "message is required and must be a string")
		return
	}

	info := models.RequestInfo{
		UserAgent: r.UserAgent(),
		IPAddress: middleware.ClientIP(r),
	}

	result := h.chatService.ProcessMessage(r.Context(), *req.Message, info)

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode chat response",
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err))
	}
}

// Suggestions handles GET /api/chat/suggestions.
func (h *ChatHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	response := SuggestionsResponse{
		Success:     true,
		Suggestions: h.chatService.GenerateSuggestions(r.Context()),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode suggestions response", zap.Error(err))
	}
}

// Metrics handles GET /api/chat/metrics.
func (h *ChatHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics := h.chatService.GetAvailableMetrics(r.Context())
	if metrics == nil {
		metrics = []string{}
	}
	if err := WriteJSON(w, http.StatusOK, MetricsResponse{Success: true, Metrics: metrics}); err != nil {
		h.logger.Error("Failed to encode metrics response", zap.Error(err))
	}
}

// Schema handles GET /api/chat/schema.
func (h *ChatHandler) Schema(w http.ResponseWriter, r *http.Request) {
	response := SchemaResponse{
		Success: true,
		Schema:  h.chatService.GetSchema(r.Context()),
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode schema response", zap.Error(err))
	}
}

// RawSQL handles POST /api/chat/sql.
// Statements that do not start with SELECT are rejected with 400.
func (h *ChatHandler) RawSQL(w http.ResponseWriter, r *http.Request) {
	var req RawSQLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Query == nil || *req.Query == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "query is required and must be a string")
		return
	}

	result, err := h.chatService.RunSelectOnly(r.Context(), *req.Query)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotSelect) {
			_ = ErrorResponse(w, http.StatusBadRequest, "not_select", err.Error())
			return
		}
		h.logger.Error("Raw SQL execution failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to execute SQL query")
		return
	}

	if err := WriteJSON(w, http.StatusOK, rawSQLResponse(result)); err != nil {
		h.logger.Error("Failed to encode SQL response", zap.Error(err))
	}
}

func rawSQLResponse(result *models.ExecutionResult) RawSQLResponse {
	response := RawSQLResponse{
		Timestamp:       time.Now().UTC(),
		ExecutionTimeMs: result.ElapsedMs(),
	}
	if result.OK() {
		response.Success = true
		response.Data = result.Success.Rows
		response.Columns = result.Success.Columns
		response.RowCount = result.Success.RowCount
		if response.Data == nil {
			response.Data = []models.Row{}
		}
		return response
	}
	if f := result.Failure; f != nil {
		response.Error = f.Message
		response.ErrorCode = f.Code
		if details := f.Details(); len(details) > 0 {
			response.ErrorDetails = details
		}
	}
	return response
}

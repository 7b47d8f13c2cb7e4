package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType is the classifier's routing decision.
type QuestionType string

const (
	QuestionSQL     QuestionType = "sql"
	QuestionGeneral QuestionType = "general"
)

// RequestInfo is caller metadata recorded with each invocation.
type RequestInfo struct {
	UserAgent string
	IPAddress string
}

// ChatResult is the outcome of processing one user message.
// Success and failure render as different JSON shapes.
type ChatResult struct {
	Success bool

	// Success fields
	Data              []Row
	Explanation       string
	SQLQuery          *string
	RowCount          int
	Columns           []string
	AssetURLs         []AssetReference
	RetryCount        int
	IsGeneralQuestion bool

	// Failure fields
	Error        string
	ErrorCode    string
	ErrorDetails map[string]any
	Message      string

	SessionID       uuid.UUID
	ExecutionTimeMs int64
}

type chatSuccessJSON struct {
	Success           bool             `json:"success"`
	Data              []Row            `json:"data"`
	Explanation       string           `json:"explanation"`
	SQLQuery          *string          `json:"sqlQuery"`
	RowCount          int              `json:"rowCount"`
	Columns           []string         `json:"columns"`
	AssetURLs         []AssetReference `json:"assetUrls"`
	SessionID         uuid.UUID        `json:"sessionId"`
	ExecutionTimeMs   int64            `json:"executionTimeMs"`
	RetryCount        int              `json:"retryCount"`
	IsGeneralQuestion bool             `json:"isGeneralQuestion"`
}

type chatFailureJSON struct {
	Success         bool           `json:"success"`
	Error           string         `json:"error"`
	ErrorCode       string         `json:"errorCode,omitempty"`
	ErrorDetails    map[string]any `json:"errorDetails,omitempty"`
	Message         string         `json:"message"`
	SessionID       uuid.UUID      `json:"sessionId"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
}

func (r ChatResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(chatFailureJSON{
			Success:         false,
			Error:           r.Error,
			ErrorCode:       r.ErrorCode,
			ErrorDetails:    r.ErrorDetails,
			Message:         r.Message,
			SessionID:       r.SessionID,
			ExecutionTimeMs: r.ExecutionTimeMs,
		})
	}

	data := r.Data
	if data == nil {
		data = []Row{}
	}
	columns := r.Columns
	if columns == nil {
		columns = []string{}
	}
	assets := r.AssetURLs
	if assets == nil {
		assets = []AssetReference{}
	}
	return json.Marshal(chatSuccessJSON{
		Success:           true,
		Data:              data,
		Explanation:       r.Explanation,
		SQLQuery:          r.SQLQuery,
		RowCount:          r.RowCount,
		Columns:           columns,
		AssetURLs:         assets,
		SessionID:         r.SessionID,
		ExecutionTimeMs:   r.ExecutionTimeMs,
		RetryCount:        r.RetryCount,
		IsGeneralQuestion: r.IsGeneralQuestion,
	})
}

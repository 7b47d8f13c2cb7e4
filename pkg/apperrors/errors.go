package apperrors

import "errors"

// Pipeline error taxonomy. Components wrap these with fmt.Errorf("...: %w")
// so callers can branch with errors.Is.
var (
	ErrSchemaFetch    = errors.New("schema fetch failed")
	ErrClassification = errors.New("question classification failed")
	ErrGeneration     = errors.New("sql generation failed")
	ErrValidation     = errors.New("sql validation failed")
	ErrExecution      = errors.New("sql execution failed")
	ErrExplanation    = errors.New("result explanation failed")
	ErrLogging        = errors.New("usage logging failed")

	// ErrNotSelect is returned by the raw SQL entry point for anything that is not a SELECT.
	ErrNotSelect = errors.New("only SELECT queries are allowed")
)

// Error codes recorded for failures that do not come from the database.
const (
	CodeGeneration = "GENERATION_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeTimeout    = "57014" // query_canceled
)

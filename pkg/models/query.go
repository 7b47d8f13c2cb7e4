package models

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
)

// GeneratedQuery is one candidate produced by the oracle on a given attempt.
type GeneratedQuery struct {
	RawText      string
	CleanedSQL   string
	AttemptIndex int
}

// QuerySuccess holds the rows of a successful execution.
type QuerySuccess struct {
	Rows            []Row
	Columns         []string
	RowCount        int
	ExecutionTimeMs int64
}

// QueryFailure is the structured diagnostic for a statement that could not run.
// Detail, Hint and Routine are empty and Position is zero when the engine does not report them.
type QueryFailure struct {
	Message         string
	Code            string
	Detail          string
	Hint            string
	Position        int32
	Routine         string
	ExecutionTimeMs int64
}

// Error implements error.
func (f *QueryFailure) Error() string {
	var b strings.Builder
	b.WriteString(f.Message)
	if f.Code != "" {
		fmt.Fprintf(&b, " (SQLSTATE %s)", f.Code)
	}
	return b.String()
}

// Unwrap lets errors.Is match the execution error kind. Generation and
// validation failures carry their own code but are reported through the same type.
func (f *QueryFailure) Unwrap() error {
	switch f.Code {
	case apperrors.CodeGeneration:
		return apperrors.ErrGeneration
	case apperrors.CodeValidation:
		return apperrors.ErrValidation
	default:
		return apperrors.ErrExecution
	}
}

// Details returns the auxiliary diagnostic fields that are present, keyed for JSON.
func (f *QueryFailure) Details() map[string]any {
	d := map[string]any{}
	if f.Detail != "" {
		d["detail"] = f.Detail
	}
	if f.Hint != "" {
		d["hint"] = f.Hint
	}
	if f.Position != 0 {
		d["position"] = f.Position
	}
	if f.Routine != "" {
		d["routine"] = f.Routine
	}
	return d
}

// ExecutionResult is exactly one of Success or Failure.
type ExecutionResult struct {
	Success *QuerySuccess
	Failure *QueryFailure
}

// Succeeded wraps a successful execution.
func Succeeded(s *QuerySuccess) *ExecutionResult {
	return &ExecutionResult{Success: s}
}

// Failed wraps a failed execution.
func Failed(f *QueryFailure) *ExecutionResult {
	return &ExecutionResult{Failure: f}
}

// OK reports whether the execution succeeded.
func (r *ExecutionResult) OK() bool {
	return r != nil && r.Success != nil
}

// ElapsedMs returns the execution time of whichever branch is set.
func (r *ExecutionResult) ElapsedMs() int64 {
	switch {
	case r == nil:
		return 0
	case r.Success != nil:
		return r.Success.ExecutionTimeMs
	case r.Failure != nil:
		return r.Failure.ExecutionTimeMs
	}
	return 0
}

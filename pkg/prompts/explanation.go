package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// ExplanationSampleRows is the number of result rows shown to the oracle.
const ExplanationSampleRows = 3

const explanationSystemMessage = "You are a marketing analyst. Explain query results to business users in clear, concise language."

const generalSystemMessage = `You are a helpful marketing analytics assistant. Answer general marketing and
advertising questions concisely in 2-4 sentences. You do not have access to the user's data for this answer.`

// ExplanationSystemMessage returns the system message for result summaries.
func ExplanationSystemMessage() string {
	return explanationSystemMessage
}

// GeneralSystemMessage returns the system message for questions that need no data.
func GeneralSystemMessage() string {
	return generalSystemMessage
}

// BuildExplanationPrompt summarizes a result set for the oracle: row count, columns and the
// first few rows as JSON.
func BuildExplanationPrompt(question string, result *models.QuerySuccess) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Question: %s\n\n", question))

	rowCount, columns := 0, []string{}
	var sample []models.Row
	if result != nil {
		rowCount = result.RowCount
		columns = result.Columns
		sample = result.Rows
		if len(sample) > ExplanationSampleRows {
			sample = sample[:ExplanationSampleRows]
		}
	}

	prompt.WriteString(fmt.Sprintf("The query returned %d rows.\n", rowCount))
	prompt.WriteString(fmt.Sprintf("Columns: %s\n\n", strings.Join(columns, ", ")))

	if len(sample) > 0 {
		data, err := json.MarshalIndent(sample, "", "  ")
		if err == nil {
			prompt.WriteString(fmt.Sprintf("Sample data (first %d rows):\n%s\n\n", len(sample), data))
		}
	}

	prompt.WriteString("Provide a brief 2-3 sentence explanation of what this data shows, highlighting key insights.")
	return prompt.String()
}

// FallbackExplanation is returned when the oracle cannot summarize a result.
func FallbackExplanation(rowCount int) string {
	return fmt.Sprintf("Retrieved %d records from the database.", rowCount)
}

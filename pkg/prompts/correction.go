package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/insights-engine/pkg/models"
)

// BuildCorrectionPrompt renders the user turn for a regeneration attempt. It carries the
// original question, the statement that failed and every diagnostic field the engine reported.
func BuildCorrectionPrompt(question, failedSQL string, failure *models.QueryFailure) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Original question: %s\n\n", question))

	prompt.WriteString("The previous SQL query failed:\n")
	if strings.TrimSpace(failedSQL) == "" {
		prompt.WriteString("(no SQL statement could be extracted from the previous response)\n\n")
	} else {
		prompt.WriteString(failedSQL)
		prompt.WriteString("\n\n")
	}

	if failure != nil {
		prompt.WriteString("Error details:\n")
		prompt.WriteString(fmt.Sprintf("- Message: %s\n", failure.Message))
		if failure.Code != "" {
			prompt.WriteString(fmt.Sprintf("- Code: %s\n", failure.Code))
		}
		if failure.Detail != "" {
			prompt.WriteString(fmt.Sprintf("- Detail: %s\n", failure.Detail))
		}
		if failure.Hint != "" {
			prompt.WriteString(fmt.Sprintf("- Hint: %s\n", failure.Hint))
		}
		if failure.Position != 0 {
			prompt.WriteString(fmt.Sprintf("- Position: %d\n", failure.Position))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("Please generate a corrected SQL query that fixes this error. Return ONLY the SQL query.")
	return prompt.String()
}

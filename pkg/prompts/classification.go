package prompts

import "fmt"

const classificationSystemMessage = `You classify questions sent to a marketing analytics assistant.
Respond "sql" only if the question explicitly asks for stored metrics, data or analysis of our
campaigns, ads, accounts or creatives. Respond "general" for definitions, explanations and general
marketing advice. When unsure, respond "sql".
Respond with one word: sql or general.`

// ClassificationSystemMessage returns the fixed instruction for the question classifier.
func ClassificationSystemMessage() string {
	return classificationSystemMessage
}

// BuildClassificationPrompt renders the user turn for the question classifier.
func BuildClassificationPrompt(question string) string {
	return fmt.Sprintf("Question: %s\n\nClassification:", question)
}

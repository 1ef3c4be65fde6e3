package usecase

import "hot-mess-coach/internal/domain"

// SystemPrompt frames every completion request.
const SystemPrompt = "You are a supportive mental coach."

// buildPromptMessages pairs the fixed system instruction with the user's
// message, which is passed through untouched.
func buildPromptMessages(message string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: SystemPrompt},
		{Role: domain.RoleUser, Content: message},
	}
}

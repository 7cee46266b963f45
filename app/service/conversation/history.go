package conversation

import (
	"voicedesk/app/client/llm"
	"voicedesk/app/service/session"
)

const messageHistorySize = 20

// history turns the most recent chat lines plus the new utterance into model messages.
func history(chat []session.ChatMessage, message string) []llm.Message {
	if len(chat) > messageHistorySize {
		chat = chat[len(chat)-messageHistorySize:]
	}

	result := make([]llm.Message, 0, len(chat)+1)

	for _, msg := range chat {
		role := llm.RoleUser
		if msg.Sender == session.SenderAssistant {
			role = llm.RoleAssistant
		}

		result = append(result, llm.Message{
			Role:    role,
			Content: msg.Text,
		})
	}

	return append(result, llm.Message{
		Role:    llm.RoleUser,
		Content: message,
	})
}

package api

import (
	"voicedesk/app/service/conversation"
	"voicedesk/app/service/session"
)

type chatRequest struct {
	Message string                `json:"message" validate:"required,max=2000"`
	ChatLog []session.ChatMessage `json:"chatLog" validate:"dive"`
	State   session.State         `json:"state"`
	Email   string                `json:"email" validate:"omitempty,email"`
}

type messageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

type startCallRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Email     string `json:"email" validate:"required,email"`
}

type startCallResponse struct {
	SessionID string `json:"session_id"`
	Greeting  string `json:"greeting"`
	Returning bool   `json:"returning"`
}

// turnResponse flattens the conversation state next to the reply.
type turnResponse struct {
	AssistantReply     string         `json:"assistantReply"`
	Topics             []string       `json:"topics"`
	DocumentReferences []string       `json:"document_references"`
	Tasks              []session.Task `json:"tasks"`
	Announcements      []string       `json:"announcements"`
}

func newTurnResponse(result *conversation.Result) turnResponse {
	state := result.State.Clone()

	announcements := result.Announcements
	if announcements == nil {
		announcements = []string{}
	}

	return turnResponse{
		AssistantReply:     result.Reply,
		Topics:             state.Topics,
		DocumentReferences: state.Documents,
		Tasks:              state.Tasks,
		Announcements:      announcements,
	}
}

type endCallResponse struct {
	Saved bool `json:"saved"`
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

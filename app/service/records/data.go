package records

import (
	"time"

	"voicedesk/app/service/session"
)

// User is the per-caller document, keyed by email.
type User struct {
	FirstName         string         `json:"first_name"`
	LastName          string         `json:"last_name"`
	Email             string         `json:"email"`
	PastConversations []Conversation `json:"past_conversations"`
	DocumentsSent     []string       `json:"documents_sent"`
}

// Conversation is the summary of one finished call.
type Conversation struct {
	Timestamp           time.Time             `json:"timestamp"`
	Chat                []session.ChatMessage `json:"chat"`
	Topics              []string              `json:"topics"`
	DocumentsReferenced []string              `json:"documents_referenced"`
	Tasks               []session.Task        `json:"tasks"`
}

func NewUser(firstName, lastName, email string) *User {
	return &User{
		FirstName:         firstName,
		LastName:          lastName,
		Email:             Key(email),
		PastConversations: []Conversation{},
		DocumentsSent:     []string{},
	}
}

// LastConversation returns the most recent conversation, if any.
func (u *User) LastConversation() (Conversation, bool) {
	if len(u.PastConversations) == 0 {
		return Conversation{}, false
	}

	return u.PastConversations[len(u.PastConversations)-1], true
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}

	return u.FirstName + " " + u.LastName
}

// Key is the store key of an email address.
func Key(email string) string {
	return session.Normalize(email)
}

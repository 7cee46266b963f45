package session

import (
	"encoding/json"
	"strings"
)

type TaskType string

const (
	TaskSendInvoice      TaskType = "send_invoice"
	TaskViewInvoice      TaskType = "view_invoice"
	TaskCheckOrderStatus TaskType = "check_order_status"
	TaskResetPassword    TaskType = "reset_password"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Task is a request event stated by the caller. Tasks have no identity of their own:
// two equal values are still two separate requests.
type Task struct {
	Type     TaskType   `json:"type"`
	Status   TaskStatus `json:"status"`
	Document string     `json:"document,omitempty"`
	Order    string     `json:"order,omitempty"`
}

func (t Task) IsPending() bool {
	return t.Status == StatusPending
}

// Subject returns what the task is about: the order number, else the document.
func (t Task) Subject() string {
	if t.Order != "" {
		return t.Order
	}

	return t.Document
}

// State is the structured memory of one call.
// Topics and Documents behave as sets, Tasks keep the order the caller stated them.
type State struct {
	Topics    []string `json:"topics"`
	Documents []string `json:"document_references"`
	Tasks     []Task   `json:"tasks"`
}

func (s State) Clone() State {
	return State{
		Topics:    append([]string{}, s.Topics...),
		Documents: append([]string{}, s.Documents...),
		Tasks:     append([]Task{}, s.Tasks...),
	}
}

func (s State) HasPending() bool {
	for _, t := range s.Tasks {
		if t.IsPending() {
			return true
		}
	}

	return false
}

// MarshalJSON always emits arrays so clients never see null collections.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State

	out := plain(s.Clone())

	return json.Marshal(out)
}

// ChatMessage is one line of the call transcript.
type ChatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Normalize returns the dedup key of a topic or document reference.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

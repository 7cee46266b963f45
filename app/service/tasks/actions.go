package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"voicedesk/app/service/session"

	"github.com/tmc/langchaingo/tools"
)

// ErrRejected marks an action failure that repeating the call cannot fix.
var ErrRejected = errors.New("action rejected")

// Input is the JSON document every action receives.
type Input struct {
	Type     session.TaskType `json:"type"`
	Document string           `json:"document,omitempty"`
	Order    string           `json:"order,omitempty"`
	Email    string           `json:"email,omitempty"`
}

func NewInput(task session.Task, email string) Input {
	return Input{
		Type:     task.Type,
		Document: task.Document,
		Order:    task.Order,
		Email:    email,
	}
}

func (i Input) String() string {
	data, _ := json.Marshal(i)
	return string(data)
}

// Registry maps a task type to the action executing it. Action names are task types.
type Registry struct {
	mu      sync.RWMutex
	actions map[session.TaskType]tools.Tool
}

func NewRegistry(actions ...tools.Tool) *Registry {
	r := &Registry{
		actions: make(map[session.TaskType]tools.Tool, len(actions)),
	}
	r.Register(actions...)

	return r
}

// Register adds actions, replacing any registered under the same name.
func (r *Registry) Register(actions ...tools.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, action := range actions {
		r.actions[session.TaskType(action.Name())] = action
	}
}

func (r *Registry) Get(taskType session.TaskType) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[taskType]

	return action, ok
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.actions))
	for taskType := range r.actions {
		result = append(result, string(taskType))
	}
	sort.Strings(result)

	return result
}

type action struct {
	name        string
	description string
	call        func(ctx context.Context, input Input) (string, error)
}

func (a *action) Name() string {
	return a.name
}

func (a *action) Description() string {
	return a.description
}

func (a *action) Call(ctx context.Context, raw string) (string, error) {
	var input Input
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return "", fmt.Errorf("%w: invalid input JSON: %w", ErrRejected, err)
	}

	return a.call(ctx, input)
}

// DefaultActions are the built-in actions used when no remote action server provides a type.
func DefaultActions() []tools.Tool {
	return []tools.Tool{
		&action{
			name:        string(session.TaskSendInvoice),
			description: "Email an invoice to the caller. Input is a JSON object with document and email fields.",
			call: func(ctx context.Context, input Input) (string, error) {
				if input.Document == "" {
					return "", fmt.Errorf("%w: no invoice to send", ErrRejected)
				}

				slog.InfoContext(ctx, "Invoice sent",
					"document", input.Document,
					"email", input.Email,
					"telegram", true,
				)

				return "sent", nil
			},
		},
		&action{
			name:        string(session.TaskViewInvoice),
			description: "Open an invoice for the caller. Input is a JSON object with a document field.",
			call: func(ctx context.Context, input Input) (string, error) {
				if input.Document == "" {
					return "", fmt.Errorf("%w: no invoice to open", ErrRejected)
				}

				slog.InfoContext(ctx, "Invoice opened", "document", input.Document)

				return "opened", nil
			},
		},
		&action{
			name:        string(session.TaskCheckOrderStatus),
			description: "Look up an order and send its status to the caller. Input is a JSON object with order, document and email fields.",
			call: func(ctx context.Context, input Input) (string, error) {
				if input.Order == "" && input.Document == "" {
					return "", fmt.Errorf("%w: no order to check", ErrRejected)
				}

				slog.InfoContext(ctx, "Order status sent",
					"order", input.Order,
					"document", input.Document,
					"email", input.Email,
				)

				return "sent", nil
			},
		},
		&action{
			name:        string(session.TaskResetPassword),
			description: "Send a password reset link. Input is a JSON object with an email field.",
			call: func(ctx context.Context, input Input) (string, error) {
				slog.InfoContext(ctx, "Password reset link sent",
					"email", input.Email,
					"telegram", true,
				)

				return "sent", nil
			},
		},
	}
}

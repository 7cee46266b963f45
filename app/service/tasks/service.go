package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"voicedesk/app/config"
	"voicedesk/app/service/session"

	"github.com/cenkalti/backoff/v5"
	"github.com/samber/do"
	"github.com/tmc/langchaingo/callbacks"
)

const defaultRetryInterval = time.Second

var _ do.Shutdownable = (*Service)(nil)

// Speaker plays one utterance and returns once playback has finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Ledger is the task list of one session. Tasks are only ever appended,
// so an index into a snapshot stays valid for Transition.
type Ledger interface {
	Snapshot() []session.Task
	Transition(index int, status session.TaskStatus)
}

// Report describes what one drain did.
type Report struct {
	// Tasks is the task list once the drain finished.
	Tasks []session.Task
	// Messages were spoken in execution order.
	Messages []string
}

type Service struct {
	registry  *Registry
	attempts  int
	interval  time.Duration
	callbacks callbacks.Handler
	closer    io.Closer
}

func New(di *do.Injector) (*Service, error) {
	appCtx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)

	registry := NewRegistry(DefaultActions()...)
	svc := NewService(registry, cfg.Assistant.TaskAttempts)

	if cfg.Actions.MCP.Command == "" {
		return svc, nil
	}

	mcpClient, actions, err := connectMCP(appCtx, cfg.Actions.MCP)
	if err != nil {
		return nil, err
	}

	registry.Register(actions...)
	svc.closer = mcpClient

	slog.Info("Remote task actions registered",
		"command", cfg.Actions.MCP.Command,
		"types", registry.Types(),
	)

	return svc, nil
}

func NewService(registry *Registry, attempts int) *Service {
	if attempts < 1 {
		attempts = 1
	}

	return &Service{
		registry:  registry,
		attempts:  attempts,
		interval:  defaultRetryInterval,
		callbacks: LogCallbackHandler{},
	}
}

// NewDrainer binds the engine to the task list of one session.
func (s *Service) NewDrainer(ledger Ledger, speaker Speaker, email string) *Drainer {
	return &Drainer{
		svc:     s,
		ledger:  ledger,
		speaker: speaker,
		email:   email,
	}
}

// execute runs the action of task with a bounded number of attempts and returns
// the final status together with the message to announce.
func (s *Service) execute(ctx context.Context, task session.Task, email string) (session.TaskStatus, string) {
	action, ok := s.registry.Get(task.Type)
	if !ok {
		slog.Warn("No action for task type, completing with a generic message", "task_type", task.Type)
		return session.StatusCompleted, Announcement(task, email)
	}

	input := NewInput(task, email).String()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (string, error) {
		attempt++

		s.callbacks.HandleToolStart(ctx, input)

		output, err := action.Call(ctx, input)
		if err != nil {
			s.callbacks.HandleToolError(ctx, err)

			if errors.Is(err, ErrRejected) {
				return "", backoff.Permanent(err)
			}

			return "", err
		}

		s.callbacks.HandleToolEnd(ctx, output)

		return output, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.interval)),
		backoff.WithMaxTries(uint(s.attempts)),
	)
	if err != nil {
		slog.Error("Task failed",
			"task_type", task.Type,
			"document", task.Document,
			"order", task.Order,
			"attempts", attempt,
			"error", err,
		)

		return session.StatusFailed, FailureAnnouncement(task)
	}

	return session.StatusCompleted, Announcement(task, email)
}

func (s *Service) Shutdown() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"voicedesk/app/apperr"
	"voicedesk/app/client/llm"
	"voicedesk/app/config"
	"voicedesk/app/service/extract"
	"voicedesk/app/service/prompt"
	"voicedesk/app/service/records"
	"voicedesk/app/service/session"
	"voicedesk/app/service/tasks"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/samber/do"
)

const maxMessageLength = 2000

type Extractor interface {
	Analyze(ctx context.Context, utterance string, prior []session.ChatMessage) (extract.Analysis, error)
	Tasks(ctx context.Context, utterance string) ([]session.Task, error)
}

type Records interface {
	GetRecord(ctx context.Context, email string) (*records.User, error)
	PutRecord(ctx context.Context, email string, user *records.User) error
}

type Service struct {
	extractor Extractor
	reply     llm.Completer
	records   Records
	engine    *tasks.Service

	calls    *cache.Cache
	validate *validator.Validate
	now      func() time.Time
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*extract.Service](di),
		llm.New("reply", cfg.OpenAI.Reply),
		do.MustInvoke[*records.Service](di),
		do.MustInvoke[*tasks.Service](di),
		cfg.Session.TTL,
		cfg.Session.CleanupInterval,
	), nil
}

func NewService(
	extractor Extractor,
	reply llm.Completer,
	store Records,
	engine *tasks.Service,
	ttl time.Duration,
	cleanupInterval time.Duration,
) *Service {
	calls := cache.New(ttl, cleanupInterval)
	// go-cache reports explicit deletes as evictions too
	calls.OnEvicted(func(id string, value interface{}) {
		if call, ok := value.(*Call); ok && call.Ended() {
			return
		}

		slog.Info("Call session expired", "session_id", id)
	})

	return &Service{
		extractor: extractor,
		reply:     reply,
		records:   store,
		engine:    engine,
		calls:     calls,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// StartCall looks up or creates the caller record and opens a session.
// It returns the call and the greeting already recorded as the first assistant line.
func (s *Service) StartCall(ctx context.Context, firstName, lastName, email string) (*Call, string, bool, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	email = records.Key(email)

	if firstName == "" {
		return nil, "", false, apperr.InvalidInput("conversation", "first name is required")
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, "", false, apperr.InvalidInput("conversation", "invalid email address %q", email)
	}

	user, err := s.records.GetRecord(ctx, email)
	if err != nil {
		return nil, "", false, err
	}

	returning := user != nil
	if !returning {
		user = records.NewUser(firstName, lastName, email)
		if err = s.records.PutRecord(ctx, email, user); err != nil {
			return nil, "", false, err
		}
	}

	call := s.newCall(uuid.NewString(), email, session.State{}, nil)
	call.User = user

	greeting := Greeting(user, returning)
	call.chat = append(call.chat, session.ChatMessage{Sender: session.SenderAssistant, Text: greeting})

	s.calls.Set(call.ID, call, cache.DefaultExpiration)

	slog.Info("Call started",
		"session_id", call.ID,
		"email", email,
		"returning", returning,
	)

	return call, greeting, returning, nil
}

// Call returns an active session and extends its lifetime.
func (s *Service) Call(id string) (*Call, error) {
	value, ok := s.calls.Get(id)
	if !ok {
		return nil, apperr.NotFound("conversation", "call %s not found", id)
	}

	call := value.(*Call)
	s.calls.Set(id, call, cache.DefaultExpiration)

	return call, nil
}

// Chat runs one turn without a stored session. The caller passes the state and chat
// log returned by the previous turn.
func (s *Service) Chat(ctx context.Context, message string, chat []session.ChatMessage, state session.State, email string) (*Result, error) {
	if err := validateChat(chat); err != nil {
		return nil, err
	}
	if err := validateState(state); err != nil {
		return nil, err
	}

	call := s.newCall("", records.Key(email), state.Clone(), chat)

	return s.Turn(ctx, call, message)
}

// Turn runs analysis, task extraction, merge and reply generation for one utterance.
// The call state is only changed when every step succeeded.
func (s *Service) Turn(ctx context.Context, call *Call, message string) (*Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperr.InvalidInput("conversation", "message is required")
	}
	if n := utf8.RuneCountInString(message); n > maxMessageLength {
		return nil, apperr.InvalidInput("conversation", "message is too long (%d > %d characters)", n, maxMessageLength)
	}

	call.turn.Lock()
	defer call.turn.Unlock()

	if call.Ended() {
		return nil, apperr.NotFound("conversation", "call %s has ended", call.ID)
	}

	prior := call.Chat()

	analysis, err := s.extractor.Analyze(ctx, message, prior)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	newTasks, err := s.extractor.Tasks(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("extract tasks: %w", err)
	}

	candidate := session.Merge(call.State(), analysis.Topics, analysis.Documents, newTasks)

	reply, err := s.reply.Complete(ctx, llm.Request{
		System:      prompt.System(candidate),
		History:     history(prior, message),
		Temperature: s.reply.Temperature(),
	})
	if err != nil {
		return nil, fmt.Errorf("reply: %w", err)
	}

	call.commit(message, analysis.Topics, analysis.Documents, newTasks)

	slog.Debug("Turn committed",
		"session_id", call.ID,
		"topics", analysis.Topics,
		"documents", analysis.Documents,
		"tasks", len(newTasks),
	)

	if err = call.Speak(ctx, reply); err != nil {
		slog.Warn("Failed to speak reply", "session_id", call.ID, "error", err)
	}

	result := &Result{
		Reply:         reply,
		Announcements: []string{},
	}

	switch {
	case !call.State().HasPending():
	case call.isLive():
		call.drainer.Trigger(ctx)
	default:
		report := call.drainer.Drain(ctx)
		result.Announcements = append(result.Announcements, report.Messages...)
	}

	result.State = call.State()

	return result, nil
}

// EndCall finishes pending work, appends the conversation to the caller record and
// closes the session. On a store failure the session stays open so the client can retry.
func (s *Service) EndCall(ctx context.Context, id string) error {
	call, err := s.Call(id)
	if err != nil {
		return err
	}

	call.turn.Lock()
	defer call.turn.Unlock()

	if call.Ended() {
		return apperr.NotFound("conversation", "call %s has ended", id)
	}

	call.drainer.Drain(ctx)
	call.drainer.Wait()

	final := session.Finalize(call.State())

	user, err := s.records.GetRecord(ctx, call.Email)
	if err != nil {
		return err
	}
	if user == nil {
		user = call.User
	}

	// the stored record may be shared, so a failed write must leave it untouched
	updated := *user
	updated.PastConversations = append(append([]records.Conversation{}, user.PastConversations...), records.Conversation{
		Timestamp:           s.now().UTC(),
		Chat:                call.Chat(),
		Topics:              final.Topics,
		DocumentsReferenced: final.Documents,
		Tasks:               final.Tasks,
	})
	updated.DocumentsSent = appendSent(append([]string{}, user.DocumentsSent...), final.Tasks)

	if err = s.records.PutRecord(ctx, call.Email, &updated); err != nil {
		return err
	}

	call.end()
	s.calls.Delete(id)

	slog.Info("Call ended",
		"session_id", id,
		"email", call.Email,
		"topics", final.Topics,
		"tasks", len(final.Tasks),
	)

	return nil
}

func (s *Service) newCall(id, email string, state session.State, chat []session.ChatMessage) *Call {
	call := &Call{
		ID:      id,
		Email:   email,
		Started: s.now(),
		state:   state,
		chat:    append([]session.ChatMessage{}, chat...),
		out:     silent{},
		done:    make(chan struct{}),
	}
	call.drainer = s.engine.NewDrainer(call, call, email)

	return call
}

// Greeting is the first thing said on a call.
func Greeting(user *records.User, returning bool) string {
	if !returning {
		return fmt.Sprintf("Hi %s! How can I help you today?", user.FirstName)
	}

	last, ok := user.LastConversation()
	if !ok || len(last.Topics) == 0 {
		return fmt.Sprintf("Welcome back %s! How can I help you today?", user.FirstName)
	}

	return fmt.Sprintf("Welcome back %s! Last time we talked about %s. How can I help you today?",
		user.FirstName, prompt.FormatList(last.Topics))
}

// appendSent adds the documents of completed send_invoice tasks that are not listed yet.
func appendSent(sent []string, done []session.Task) []string {
	if sent == nil {
		sent = []string{}
	}

	seen := make(map[string]struct{}, len(sent))
	for _, document := range sent {
		seen[session.Normalize(document)] = struct{}{}
	}

	for _, task := range done {
		if task.Type != session.TaskSendInvoice || task.Status != session.StatusCompleted || task.Document == "" {
			continue
		}

		key := session.Normalize(task.Document)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		sent = append(sent, task.Document)
	}

	return sent
}

func validateChat(chat []session.ChatMessage) error {
	for i, msg := range chat {
		if msg.Sender != session.SenderUser && msg.Sender != session.SenderAssistant {
			return apperr.InvalidInput("conversation", "chat log entry %d has unknown sender %q", i, msg.Sender)
		}
		if strings.TrimSpace(msg.Text) == "" {
			return apperr.InvalidInput("conversation", "chat log entry %d has no text", i)
		}
	}

	return nil
}

func validateState(state session.State) error {
	for i, task := range state.Tasks {
		if task.Type == "" {
			return apperr.InvalidInput("conversation", "task %d has no type", i)
		}

		switch task.Status {
		case session.StatusPending, session.StatusCompleted, session.StatusFailed:
		default:
			return apperr.InvalidInput("conversation", "task %d has unknown status %q", i, task.Status)
		}
	}

	return nil
}

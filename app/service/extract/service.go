package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voicedesk/app/apperr"
	"voicedesk/app/client/llm"
	"voicedesk/app/config"
	"voicedesk/app/service/session"

	_ "embed"

	"github.com/samber/do"
)

//go:embed analysis_prompt.txt
var analysisPromptTemplate string

//go:embed tasks_prompt.txt
var tasksPromptTemplate string

// historySize bounds how many earlier turns go into the analysis prompt.
const historySize = 20

var errMissingField = errors.New("required field is missing")

type Service struct {
	client   llm.Completer
	taxonomy map[string]string
	topics   []string
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(llm.New("extraction", cfg.OpenAI.Extraction), cfg.Assistant.Topics), nil
}

// NewService builds an extractor; an empty taxonomy accepts any topic label.
func NewService(client llm.Completer, topics []string) *Service {
	taxonomy := make(map[string]string, len(topics))
	for _, topic := range topics {
		taxonomy[session.Normalize(topic)] = strings.TrimSpace(topic)
	}

	return &Service{
		client:   client,
		taxonomy: taxonomy,
		topics:   topics,
	}
}

// Analyze extracts topic and document hints from utterance.
// A reply that is not the expected JSON object fails with apperr.ErrMalformedExtraction.
func (s *Service) Analyze(ctx context.Context, utterance string, prior []session.ChatMessage) (Analysis, error) {
	prompt := fill(analysisPromptTemplate, map[string]string{
		"topics":    s.formatTopics(),
		"history":   formatHistory(prior),
		"utterance": utterance,
	})

	raw, err := s.complete(ctx, prompt)
	if err != nil {
		return Analysis{}, err
	}

	var response analysisResponse
	if err = decode(raw, &response); err != nil {
		return Analysis{}, s.malformed("analysis", raw, err)
	}
	if response.Topics == nil || response.Documents == nil {
		return Analysis{}, s.malformed("analysis", raw, errMissingField)
	}

	result := Analysis{
		Topics:    make([]string, 0, len(*response.Topics)),
		Documents: make([]string, 0, len(*response.Documents)),
	}

	for _, topic := range *response.Topics {
		if canonical, ok := s.canonicalTopic(topic); ok {
			result.Topics = append(result.Topics, canonical)
		} else {
			slog.Debug("Dropped unknown topic", "topic", topic)
		}
	}

	for _, reference := range *response.Documents {
		if document, ok := CanonicalDocument(reference); ok {
			result.Documents = append(result.Documents, document)
		} else {
			slog.Debug("Dropped unspecific document reference", "document", reference)
		}
	}

	return result, nil
}

// Tasks extracts the requested actions in the order they were stated, all pending.
func (s *Service) Tasks(ctx context.Context, utterance string) ([]session.Task, error) {
	prompt := fill(tasksPromptTemplate, map[string]string{
		"utterance": utterance,
	})

	raw, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var response tasksResponse
	if err = decode(raw, &response); err != nil {
		return nil, s.malformed("tasks", raw, err)
	}
	if response.Tasks == nil {
		return nil, s.malformed("tasks", raw, errMissingField)
	}

	result := make([]session.Task, 0, len(*response.Tasks))

	for i, item := range *response.Tasks {
		taskType := strings.ReplaceAll(session.Normalize(string(item.Type)), " ", "_")
		if taskType == "" {
			return nil, s.malformed("tasks", raw, fmt.Errorf("task %d has no type", i))
		}

		task := session.Task{
			Type:   session.TaskType(taskType),
			Status: session.StatusPending,
			Order:  canonicalOrder(string(item.Order)),
		}

		if document, ok := CanonicalDocument(string(item.Document)); ok {
			task.Document = document
		} else if strings.TrimSpace(string(item.Document)) != "" {
			slog.Debug("Cleared unspecific task document", "task_type", taskType, "document", item.Document)
		}

		result = append(result, task)
	}

	return result, nil
}

func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	return s.client.Complete(ctx, llm.Request{
		History:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: s.client.Temperature(),
		JSON:        true,
	})
}

func (s *Service) malformed(kind, raw string, err error) error {
	slog.Error("Malformed extraction result",
		"kind", kind,
		"payload", raw,
		"error", err,
	)

	return apperr.MalformedExtraction("extract", raw, fmt.Errorf("%s: %w", kind, err))
}

func (s *Service) canonicalTopic(topic string) (string, bool) {
	key := session.Normalize(topic)
	if key == "" {
		return "", false
	}

	if len(s.taxonomy) == 0 {
		return strings.TrimSpace(topic), true
	}

	canonical, ok := s.taxonomy[key]

	return canonical, ok
}

func (s *Service) formatTopics() string {
	if len(s.topics) == 0 {
		return "Any short label"
	}

	return "- " + strings.Join(s.topics, "\n- ")
}

func formatHistory(prior []session.ChatMessage) string {
	if len(prior) == 0 {
		return "No earlier turns"
	}

	if len(prior) > historySize {
		prior = prior[len(prior)-historySize:]
	}

	var builder strings.Builder

	for _, msg := range prior {
		builder.WriteString(fmt.Sprintf("%s: %s\n", msg.Sender, msg.Text))
	}

	return strings.TrimSpace(builder.String())
}

func fill(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{"+key+"}", value)
	}

	return strings.NewReplacer(pairs...).Replace(template)
}

// decode strips the markdown fence some models wrap JSON in and unmarshals the single object.
func decode(raw string, target any) error {
	result := strings.TrimSpace(raw)
	result = strings.Trim(result, "`")
	result = strings.TrimSpace(result)
	result = strings.TrimPrefix(result, "json")
	result = strings.TrimSpace(result)

	if !strings.HasPrefix(result, "{") {
		return fmt.Errorf("reply is not a JSON object")
	}

	return json.Unmarshal([]byte(result), target)
}

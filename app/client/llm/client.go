package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"voicedesk/app/apperr"
	"voicedesk/app/config"

	"github.com/cenkalti/backoff/v5"
	"github.com/sashabaranov/go-openai"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant

	retryInterval       = 500 * time.Millisecond
	maxCompletionTokens = 1000
)

type Message struct {
	Role    string
	Content string
}

type Request struct {
	System      string
	History     []Message
	Temperature float32
	// JSON asks the model for a single JSON object reply.
	JSON bool
}

// Completer is the chat completion primitive every model call goes through.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Temperature() float32
}

var _ Completer = (*Client)(nil)

type Client struct {
	name        string
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	retries     int
}

func New(name string, cfg config.ModelConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.Token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	var temperature float32
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}

	var retries int
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	return &Client{
		name:        name,
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: temperature,
		timeout:     cfg.Timeout,
		retries:     retries,
	}
}

func (c *Client) Temperature() float32 {
	return c.temperature
}

// Complete runs one chat completion with a per-attempt timeout and a fixed retry budget.
// Exhausted retries surface as apperr.ErrUpstream.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	request := openai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: maxCompletionTokens,
		Temperature:         temperature(req.Temperature),
	}
	if req.JSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	attempt := 0
	result, err := backoff.Retry(ctx, func() (string, error) {
		attempt++

		text, err := c.call(ctx, request)
		if err != nil && !retryable(err) {
			return "", backoff.Permanent(err)
		}

		return text, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(retryInterval)),
		backoff.WithMaxTries(uint(c.retries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Chat completion failed, retrying",
				"client", c.name,
				"attempt", attempt,
				"next", next,
				"error", err,
			)
		}),
	)
	if err != nil {
		return "", apperr.Upstream("llm", fmt.Errorf("%s completion after %d attempt(s): %w", c.name, attempt, err))
	}

	return result, nil
}

func (c *Client) call(ctx context.Context, request openai.ChatCompletionRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	aiResponse, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return "", fmt.Errorf("no chat completion found")
	}

	return strings.TrimSpace(aiResponse.Choices[0].Message.Content), nil
}

// temperature keeps an explicit zero on the wire, the request field is omitempty.
func temperature(value float32) float32 {
	if value <= 0 {
		return math.SmallestNonzeroFloat32
	}

	return value
}

// retryable reports whether a failed call may succeed when repeated.
// Client errors other than rate limiting are final.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	return !errors.Is(err, context.Canceled)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError || code == 0
}

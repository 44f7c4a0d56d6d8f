package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = openai.GPT3Dot5Turbo

// Options configure the OpenAI completer.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAI is a Completer backed by the chat completions API.
type OpenAI struct {
	client  *openai.Client
	model   string
	opts    Options
	timeout time.Duration
	logger  zerolog.Logger
}

var _ Completer = (*OpenAI)(nil)

// NewOpenAI builds a chat completion client.
func NewOpenAI(opts Options, logger zerolog.Logger) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); base != "" {
		cfg.BaseURL = base
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		opts:    opts,
		timeout: opts.Timeout,
		logger:  logger.With().Str("component", "llm").Str("model", model).Logger(),
	}, nil
}

// Complete sends the segments in order and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages to complete")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	started := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	o.logger.Debug().
		Int("segments", len(messages)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("elapsed", time.Since(started)).
		Msg("chat completion finished")

	return resp.Choices[0].Message.Content, nil
}

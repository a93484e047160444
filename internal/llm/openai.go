package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/rs/zerolog/log"

	"github.com/heritagewhisper/keeper/internal/routing"
)

const openAIClientName = "openai"

// OpenAIConfig configures the OpenAI-backed client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string        // Optional override
	MaxRetries int           // Provider-level retries (default: 2)
	Timeout    time.Duration // Per-request timeout (default: 60s)
}

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	client  openai.Client
	timeout time.Duration
}

// NewOpenAIClient creates a client from config.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(maxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		timeout: timeout,
	}, nil
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return openAIClientName
}

// Chat sends a chat completion request. Transient failures are retried
// with backoff on top of the provider's own retry layer, since prompt
// generation runs in the background and can afford to wait.
func (c *OpenAIClient) Chat(ctx context.Context, req *Request) (*Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if effort, ok := reasoningEffort(req.Effort); ok {
		params.ReasoningEffort = effort
	}
	if req.WantJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	var resp *openai.ChatCompletion
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			var callErr error
			resp, callErr = c.client.Chat.Completions.New(callCtx, params)
			return callErr
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n).Str("model", req.Model).Msg("chat completion retry")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: no choices in response")
	}

	return &Result{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func reasoningEffort(e routing.Effort) (shared.ReasoningEffort, bool) {
	switch e {
	case routing.EffortLow:
		return shared.ReasoningEffortLow, true
	case routing.EffortMedium:
		return shared.ReasoningEffortMedium, true
	case routing.EffortHigh:
		return shared.ReasoningEffortHigh, true
	}
	return "", false
}

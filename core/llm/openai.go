package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/siherrmann/ragbot/helper"
)

// OpenAIModel calls the chat completions endpoint of an OpenAI compatible API.
type OpenAIModel struct {
	client openai.Client
	cfg    Config
}

// NewOpenAIModel creates a chat model client. Requests are not retried.
func NewOpenAIModel(cfg Config) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, helper.NewKindError(helper.ErrConfig, "openai chat model", errors.New("api key is not set"))
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIModel{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

func (m *OpenAIModel) Name() string {
	return m.cfg.Model
}

// Generate sends prompt as a single user message and returns the first choice.
func (m *OpenAIModel) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.timeout())
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(m.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(prompt),
				},
			},
		}},
		Temperature: openai.Float(m.cfg.temperature()),
	}
	if m.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(m.cfg.MaxTokens))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", helper.NewKindError(helper.ErrModel, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", helper.NewKindError(helper.ErrModel, "chat completion", errors.New("response has no choices"))
	}

	return resp.Choices[0].Message.Content, nil
}

package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/siherrmann/ragbot/helper"
)

// AnthropicModel calls the Anthropic messages API.
type AnthropicModel struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropicModel creates a chat model client. Requests are not retried.
func NewAnthropicModel(cfg Config) (*AnthropicModel, error) {
	if cfg.APIKey == "" {
		return nil, helper.NewKindError(helper.ErrConfig, "anthropic chat model", errors.New("api key is not set"))
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicModel{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

func (m *AnthropicModel) Name() string {
	return m.cfg.Model
}

// Generate sends prompt as a single user message and joins the text blocks of the reply.
func (m *AnthropicModel) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.timeout())
	defer cancel()

	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.cfg.Model),
		MaxTokens: int64(m.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: prompt},
			}},
		}},
		Temperature: anthropic.Float(m.cfg.temperature()),
	})
	if err != nil {
		return "", helper.NewKindError(helper.ErrModel, "create message", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		switch t := block.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(t.Text)
		}
	}
	if b.Len() == 0 {
		return "", helper.NewKindError(helper.ErrModel, "create message", errors.New("response has no text"))
	}

	return b.String(), nil
}

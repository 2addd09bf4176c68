package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/siherrmann/ragbot/helper"
)

// Model is a hosted chat model answering a single prompt.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Providers
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// GeminiBaseURL is the OpenAI compatible endpoint of the Gemini API.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DefaultTemperature is used when Config.Temperature is nil.
const DefaultTemperature = 0.7

// Config configures a chat model client.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c Config) temperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

// New creates the client of cfg.Provider, openai when empty.
func New(cfg Config) (Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIModel(cfg)
	case ProviderGemini:
		if cfg.BaseURL == "" {
			cfg.BaseURL = GeminiBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = "gemini-1.5-pro"
		}
		return NewOpenAIModel(cfg)
	case ProviderAnthropic:
		return NewAnthropicModel(cfg)
	default:
		return nil, helper.NewKindError(helper.ErrConfig, "new chat model", fmt.Errorf("unknown provider %q", cfg.Provider))
	}
}

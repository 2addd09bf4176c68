package conversation

import (
	"context"

	"github.com/siherrmann/ragbot/core/llm"
	"github.com/siherrmann/ragbot/model"
)

// AnsweringStrategy turns a question and its retrieved chunks into an answer.
type AnsweringStrategy interface {
	Answer(ctx context.Context, query string, chunks []*model.Chunk) (string, error)
}

// StrategyFactory builds the answering strategy once the chat model exists.
type StrategyFactory func(m llm.Model, p Persona) AnsweringStrategy

// StuffStrategy puts all retrieved chunk texts into a single prompt
type StuffStrategy struct {
	model   llm.Model
	persona Persona
}

// NewStuffStrategy creates a new stuff strategy
func NewStuffStrategy(m llm.Model, p Persona) AnsweringStrategy {
	return &StuffStrategy{model: m, persona: p}
}

// Answer calls the chat model once with the filled question answering prompt
func (s *StuffStrategy) Answer(ctx context.Context, query string, chunks []*model.Chunk) (string, error) {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return s.model.Generate(ctx, QAPrompt(s.persona, JoinContext(texts), query))
}

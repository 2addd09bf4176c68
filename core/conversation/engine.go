package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/siherrmann/ragbot/core/llm"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
)

// State is the readiness of the engine.
type State int

const (
	// StateUninitialized means no answering machinery exists yet, usually
	// because the index was empty on the last attempt.
	StateUninitialized State = iota
	StateReady
	// StateUnavailable is final, the process has to be restarted.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "uninitialized"
	}
}

// Retriever finds the chunks relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]*model.Chunk, error)
	Stats(ctx context.Context) (model.IndexStats, error)
}

// ModelFactory creates the chat model on first initialization.
type ModelFactory func() (llm.Model, error)

// Config configures an Engine.
type Config struct {
	Persona   Persona
	Retrieval model.RetrievalConfig
	// Strategy defaults to NewStuffStrategy.
	Strategy StrategyFactory
}

// Engine answers one query at a time with retrieval augmented generation
// and keeps the conversation history.
type Engine struct {
	retriever Retriever
	newModel  ModelFactory
	persona   Persona
	retrieval model.RetrievalConfig
	factory   StrategyFactory
	history   *History
	log       *slog.Logger

	mu       sync.Mutex
	state    State
	stateErr error
	model    llm.Model
	strategy AnsweringStrategy
}

// NewEngine creates an engine in StateUninitialized. Nothing is called until
// Initialize or GenerateResponse.
func NewEngine(retriever Retriever, newModel ModelFactory, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Strategy == nil {
		cfg.Strategy = NewStuffStrategy
	}

	return &Engine{
		retriever: retriever,
		newModel:  newModel,
		persona:   cfg.Persona.Normalize(),
		retrieval: cfg.Retrieval.Normalize(),
		factory:   cfg.Strategy,
		history:   NewHistory(),
		log:       logger,
	}
}

// State returns the current state and the error that made the engine unavailable.
func (e *Engine) State() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.stateErr
}

// History returns the conversation history.
func (e *Engine) History() *History {
	return e.history
}

// Persona returns the normalized persona.
func (e *Engine) Persona() Persona {
	return e.persona
}

// MarkUnavailable moves the engine to StateUnavailable, for example because
// the vector index could not be configured.
func (e *Engine) MarkUnavailable(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateUnavailable
	e.stateErr = err
	e.log.Error("Conversation engine unavailable", slog.Any("error", err))
}

// Initialize builds the answering machinery if the index has records.
// It is safe to call repeatedly and concurrently. An empty index leaves the
// engine uninitialized without error. A failing model construction makes
// the engine unavailable.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateUnavailable:
		return e.stateErr
	case StateReady:
		return nil
	}

	if e.retriever == nil {
		e.state = StateUnavailable
		e.stateErr = helper.NewKindError(helper.ErrConfig, "initialize engine", errors.New("retriever is not configured"))
		return e.stateErr
	}

	stats, err := e.retriever.Stats(ctx)
	if err != nil {
		return helper.NewError("initialize engine", err)
	}
	if stats.Count == 0 {
		e.log.Warn("Vector index has no documents")
		return nil
	}

	if e.model == nil {
		if e.newModel == nil {
			e.state = StateUnavailable
			e.stateErr = helper.NewKindError(helper.ErrConfig, "initialize engine", errors.New("chat model is not configured"))
			return e.stateErr
		}
		m, err := e.newModel()
		if err != nil {
			e.state = StateUnavailable
			e.stateErr = helper.NewError("create chat model", err)
			e.log.Error("Failed to create chat model", slog.Any("error", err))
			return e.stateErr
		}
		e.model = m
	}

	e.strategy = e.factory(e.model, e.persona)
	e.state = StateReady

	e.log.Info("Conversation engine initialized", slog.String("model", e.model.Name()), slog.Int64("records", stats.Count))

	return nil
}

// GenerateResponse answers query and returns the distinct sources of the
// retrieved chunks. It never fails, errors become an apologetic answer with
// no sources.
func (e *Engine) GenerateResponse(ctx context.Context, query string) (answer string, sources []string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Panic while generating response", slog.Any("panic", fmt.Sprint(r)))
			answer, sources = e.persona.ErrorMessage(), []string{}
		}
	}()

	query = truncate(query, e.retrieval.MaxQueryChars)

	if state, _ := e.State(); state == StateUnavailable {
		return e.persona.UnavailableMessage(), []string{}
	}

	if e.retriever != nil {
		stats, err := e.retriever.Stats(ctx)
		if err != nil {
			e.log.Warn("Could not read index stats", slog.Any("error", err))
		} else if stats.Count == 0 {
			return e.persona.EmptyIndexMessage(), []string{}
		}
	}

	if err := e.Initialize(ctx); err != nil {
		e.log.Error("Failed to initialize conversation engine", slog.Any("error", err))
	}

	e.mu.Lock()
	state, strategy, chatModel := e.state, e.strategy, e.model
	e.mu.Unlock()
	if state != StateReady {
		return e.persona.UnavailableMessage(), []string{}
	}

	chunks, err := e.retriever.Search(ctx, query, e.retrieval.TopK)
	if err != nil {
		e.log.Error("Retrieval failed", slog.Any("error", err))
		return e.persona.ErrorMessage(), []string{}
	}

	kind := Classify(query)
	if len(chunks) == 0 {
		return e.persona.NoContextAnswer(kind), []string{}
	}

	answer, err = strategy.Answer(ctx, query, chunks)
	if err != nil {
		e.log.Error("Answer generation failed", slog.Any("error", err))
		return e.persona.ErrorMessage(), []string{}
	}
	answer += e.persona.Notice(kind)

	e.updateHistory(ctx, chatModel, query)

	return answer, model.Sources(chunks)
}

// updateHistory runs the conversational prompt and records the turn.
// Failures are logged and dropped.
func (e *Engine) updateHistory(ctx context.Context, chatModel llm.Model, query string) {
	prompt := ConversationPrompt(e.persona, e.history.Render(e.persona.BotName), query)

	reply, err := chatModel.Generate(ctx, prompt)
	if err != nil {
		e.log.Warn("Error updating conversation history", slog.Any("error", err))
		return
	}

	e.history.Append(model.Turn{Human: query, Assistant: reply})
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes])
}

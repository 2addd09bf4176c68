package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/siherrmann/ragbot/core/llm"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	mu        sync.Mutex
	count     int64
	chunks    []*model.Chunk
	statsErr  error
	searchErr error
	queries   []string
	k         int
}

func (s *stubRetriever) Search(ctx context.Context, query string, k int) ([]*model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	s.k = k
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.chunks, nil
}

func (s *stubRetriever) Stats(ctx context.Context) (model.IndexStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statsErr != nil {
		return model.IndexStats{}, s.statsErr
	}
	return model.IndexStats{Count: s.count, Dimension: 3}, nil
}

func (s *stubRetriever) setCount(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count = n
}

type stubModel struct {
	calls   atomic.Int64
	prompts []string
	mu      sync.Mutex
	answer  string
	// failOn makes the n-th call (1 based) fail, 0 never fails
	failOn int64
	panics bool
}

func (m *stubModel) Generate(ctx context.Context, prompt string) (string, error) {
	n := m.calls.Add(1)
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.panics {
		panic("model exploded")
	}
	if m.failOn == n {
		return "", helper.NewKindError(helper.ErrModel, "generate", errors.New("quota exceeded"))
	}
	return m.answer, nil
}

func (m *stubModel) Name() string { return "stub" }

func factoryFor(m llm.Model, builds *atomic.Int64) ModelFactory {
	return func() (llm.Model, error) {
		if builds != nil {
			builds.Add(1)
		}
		return m, nil
	}
}

func chunkFrom(text string, source string) *model.Chunk {
	return &model.Chunk{Text: text, Metadata: model.Metadata{model.MetadataSource: source}}
}

func TestGenerateResponse(t *testing.T) {
	ctx := context.Background()
	persona := DefaultPersona()

	t.Run("Empty index answers without calling the model", func(t *testing.T) {
		retriever := &stubRetriever{}
		m := &stubModel{answer: "unused"}
		engine := NewEngine(retriever, factoryFor(m, nil), Config{}, nil)

		answer, sources := engine.GenerateResponse(ctx, "Who is Yash?")
		assert.Equal(t, persona.EmptyIndexMessage(), answer)
		assert.NotNil(t, sources)
		assert.Empty(t, sources)
		assert.Equal(t, int64(0), m.calls.Load())

		state, _ := engine.State()
		assert.Equal(t, StateUninitialized, state)
	})

	t.Run("Valid call GenerateResponse", func(t *testing.T) {
		retriever := &stubRetriever{count: 3, chunks: []*model.Chunk{
			chunkFrom("Yash writes Go.", "resume.pdf"),
			chunkFrom("Yash lives in Berlin.", "about.txt"),
			chunkFrom("Yash likes tea.", "resume.pdf"),
		}}
		m := &stubModel{answer: "Yash is a Go developer."}
		var builds atomic.Int64
		engine := NewEngine(retriever, factoryFor(m, &builds), Config{}, nil)

		answer, sources := engine.GenerateResponse(ctx, "Which tools does Yash use?")
		assert.Equal(t, "Yash is a Go developer.", answer)
		assert.Equal(t, []string{"resume.pdf", "about.txt"}, sources)
		assert.Equal(t, 4, retriever.k)

		// one answer call, one history call
		assert.Equal(t, int64(2), m.calls.Load())
		assert.Contains(t, m.prompts[0], "Context: Yash writes Go.\n\nYash lives in Berlin.\n\nYash likes tea.")
		assert.Contains(t, m.prompts[0], "Question: Which tools does Yash use?")
		assert.True(t, strings.HasPrefix(m.prompts[0], "You are YashBot"))
		assert.Contains(t, m.prompts[1], "Human: Which tools does Yash use?\nYashBot:")

		turns := engine.History().Turns()
		require.Len(t, turns, 1)
		assert.Equal(t, "Which tools does Yash use?", turns[0].Human)

		_, _ = engine.GenerateResponse(ctx, "And what else?")
		assert.Equal(t, int64(1), builds.Load())
		assert.Equal(t, 2, engine.History().Len())
		assert.Contains(t, m.prompts[3], "Current conversation:\nHuman: Which tools does Yash use?\nYashBot: Yash is a Go developer.\nHuman: And what else?\nYashBot:")
	})

	t.Run("Recruiter question gets the recruiter notice", func(t *testing.T) {
		retriever := &stubRetriever{count: 1, chunks: []*model.Chunk{chunkFrom("Yash led a team.", "cv.pdf")}}
		engine := NewEngine(retriever, factoryFor(&stubModel{answer: "Yes."}, nil), Config{}, nil)

		answer, _ := engine.GenerateResponse(ctx, "Is Yash a good fit for a senior engineer role?")
		assert.Equal(t, "Yes."+persona.Notice(KindRecruiter), answer)
	})

	t.Run("Private notice takes precedence", func(t *testing.T) {
		retriever := &stubRetriever{count: 1, chunks: []*model.Chunk{chunkFrom("Yash lives in Berlin.", "about.txt")}}
		engine := NewEngine(retriever, factoryFor(&stubModel{answer: "Berlin."}, nil), Config{}, nil)

		answer, _ := engine.GenerateResponse(ctx, "What is his home address and does he have the skills for the job?")
		assert.Equal(t, "Berlin."+persona.Notice(KindPrivate), answer)
		assert.NotContains(t, answer, "outstanding addition")
	})

	t.Run("No retrieved chunks gives a canned answer without the model", func(t *testing.T) {
		m := &stubModel{answer: "unused"}
		engine := NewEngine(&stubRetriever{count: 2}, factoryFor(m, nil), Config{}, nil)

		answer, sources := engine.GenerateResponse(ctx, "Tell me something")
		assert.Equal(t, persona.NoContextAnswer(KindGeneral), answer)
		assert.Empty(t, sources)

		answer, _ = engine.GenerateResponse(ctx, "Should we hire Yash?")
		assert.Equal(t, persona.NoContextAnswer(KindRecruiter), answer)

		answer, _ = engine.GenerateResponse(ctx, "What is Yash's salary?")
		assert.Equal(t, persona.NoContextAnswer(KindPrivate), answer)

		assert.Equal(t, int64(0), m.calls.Load())
	})

	t.Run("Long queries are truncated", func(t *testing.T) {
		retriever := &stubRetriever{count: 1, chunks: []*model.Chunk{chunkFrom("text", "a.txt")}}
		engine := NewEngine(retriever, factoryFor(&stubModel{answer: "ok"}, nil), Config{}, nil)

		engine.GenerateResponse(ctx, strings.Repeat("ü", 1500))
		require.Len(t, retriever.queries, 1)
		assert.Equal(t, 1000, len([]rune(retriever.queries[0])))

		turns := engine.History().Turns()
		require.Len(t, turns, 1)
		assert.Equal(t, 1000, len([]rune(turns[0].Human)))
	})

	t.Run("History failure keeps the answer", func(t *testing.T) {
		retriever := &stubRetriever{count: 1, chunks: []*model.Chunk{chunkFrom("text", "a.txt")}}
		m := &stubModel{answer: "primary", failOn: 2}
		engine := NewEngine(retriever, factoryFor(m, nil), Config{}, nil)

		answer, sources := engine.GenerateResponse(ctx, "question")
		assert.Equal(t, "primary", answer)
		assert.Equal(t, []string{"a.txt"}, sources)
		assert.Equal(t, 0, engine.History().Len())
	})

	t.Run("Model failure becomes an apology", func(t *testing.T) {
		retriever := &stubRetriever{count: 1, chunks: []*model.Chunk{chunkFrom("text", "a.txt")}}
		engine := NewEngine(retriever, factoryFor(&stubModel{failOn: 1}, nil), Config{}, nil)

		answer, sources := engine.GenerateResponse(ctx, "question")
		assert.Equal(t, persona.ErrorMessage(), answer)
		assert.Empty(t, sources)
	})

	t.Run("Retrieval failure becomes an apology", func(t *testing.T) {
		retriever := &stubRetriever{count: 1, searchErr: helper.NewKindError(helper.ErrEmbed, "embed query", errors.New("timeout"))}
		engine := NewEngine(retriever, factoryFor(&stubModel{answer: "x"}, nil), Config{}, nil)

		answer, sources := engine.GenerateResponse(ctx, "question")
		assert.Equal(t, persona.ErrorMessage(), answer)
		assert.Empty(t, sources)
	})

	t.Run("Panics become an apology", func(t *testing.T) {
		retriever := &stubRetriever{count: 1, chunks: []*model.Chunk{chunkFrom("text", "a.txt")}}
		engine := NewEngine(retriever, factoryFor(&stubModel{panics: true}, nil), Config{}, nil)

		answer, sources := engine.GenerateResponse(ctx, "question")
		assert.Equal(t, persona.ErrorMessage(), answer)
		assert.Empty(t, sources)
	})

	t.Run("Failing model construction makes the engine unavailable", func(t *testing.T) {
		var builds atomic.Int64
		retriever := &stubRetriever{count: 1, chunks: []*model.Chunk{chunkFrom("text", "a.txt")}}
		engine := NewEngine(retriever, func() (llm.Model, error) {
			builds.Add(1)
			return nil, helper.NewKindError(helper.ErrConfig, "openai chat model", errors.New("api key is not set"))
		}, Config{}, nil)

		answer, sources := engine.GenerateResponse(ctx, "question")
		assert.Equal(t, persona.UnavailableMessage(), answer)
		assert.Empty(t, sources)

		state, err := engine.State()
		assert.Equal(t, StateUnavailable, state)
		assert.ErrorIs(t, err, helper.ErrConfig)

		engine.GenerateResponse(ctx, "again")
		assert.Equal(t, int64(1), builds.Load())
	})

	t.Run("Marked unavailable engine does not touch the index", func(t *testing.T) {
		retriever := &stubRetriever{count: 1, chunks: []*model.Chunk{chunkFrom("text", "a.txt")}}
		m := &stubModel{answer: "x"}
		engine := NewEngine(retriever, factoryFor(m, nil), Config{}, nil)
		engine.MarkUnavailable(helper.NewKindError(helper.ErrConfig, "database", errors.New("DB_HOST missing")))

		answer, _ := engine.GenerateResponse(ctx, "question")
		assert.Equal(t, persona.UnavailableMessage(), answer)
		assert.Empty(t, retriever.queries)
		assert.Equal(t, int64(0), m.calls.Load())
	})

	t.Run("Persona is used in canned answers", func(t *testing.T) {
		engine := NewEngine(&stubRetriever{}, factoryFor(&stubModel{}, nil), Config{Persona: Persona{BotName: "AdaBot", Subject: "Ada"}}, nil)

		answer, _ := engine.GenerateResponse(ctx, "hello")
		assert.Contains(t, answer, "about Ada in my knowledge base")
	})
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid call Initialize after data arrives", func(t *testing.T) {
		retriever := &stubRetriever{}
		engine := NewEngine(retriever, factoryFor(&stubModel{}, nil), Config{}, nil)

		require.NoError(t, engine.Initialize(ctx))
		state, _ := engine.State()
		assert.Equal(t, StateUninitialized, state)

		retriever.setCount(5)
		require.NoError(t, engine.Initialize(ctx))
		state, _ = engine.State()
		assert.Equal(t, StateReady, state)
	})

	t.Run("Concurrent Initialize builds the model once", func(t *testing.T) {
		var builds atomic.Int64
		engine := NewEngine(&stubRetriever{count: 1}, factoryFor(&stubModel{}, &builds), Config{}, nil)

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, engine.Initialize(ctx))
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), builds.Load())
	})

	t.Run("Invalid call Initialize with failing stats", func(t *testing.T) {
		retriever := &stubRetriever{statsErr: helper.NewKindError(helper.ErrIndex, "stats", errors.New("connection refused"))}
		engine := NewEngine(retriever, factoryFor(&stubModel{}, nil), Config{}, nil)

		err := engine.Initialize(ctx)
		assert.ErrorIs(t, err, helper.ErrIndex)
		state, _ := engine.State()
		assert.Equal(t, StateUninitialized, state)
	})

	t.Run("Invalid call Initialize without model factory", func(t *testing.T) {
		engine := NewEngine(&stubRetriever{count: 1}, nil, Config{}, nil)

		err := engine.Initialize(ctx)
		assert.ErrorIs(t, err, helper.ErrConfig)
		state, _ := engine.State()
		assert.Equal(t, StateUnavailable, state)
	})
}

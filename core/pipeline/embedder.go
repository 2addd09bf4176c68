package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/siherrmann/ragbot/helper"
)

// LocalEmbedderModel is the sentence transformer used by LocalEmbedder by default.
const LocalEmbedderModel = "sentence-transformers/all-MiniLM-L6-v2"

// LocalEmbedder creates an embedder running a sentence transformer in process.
// all-MiniLM-L6-v2 produces 384 dimensional embeddings.
func LocalEmbedder(modelName string, onnxFile string) (*Embedder, error) {
	if modelName == "" {
		modelName = LocalEmbedderModel
	}

	modelPath, err := helper.PrepareModel(modelName, onnxFile)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrEmbed, "prepare model", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewKindError(helper.ErrEmbed, "create hugot session", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "ragbot-embedder",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, helper.NewKindError(helper.ErrEmbed, "create sentence pipeline", fmt.Errorf("%w (cleanup error: %v)", err, destroyErr))
		}
		return nil, helper.NewKindError(helper.ErrEmbed, "create sentence pipeline", err)
	}

	batch := func(ctx context.Context, texts []string) ([][]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, helper.NewKindError(helper.ErrEmbed, "embed", err)
		}
		result, err := sentencePipeline.RunPipeline(texts)
		if err != nil {
			return nil, helper.NewKindError(helper.ErrEmbed, "run pipeline", err)
		}
		if len(result.Embeddings) != len(texts) {
			return nil, helper.NewKindError(helper.ErrEmbed, "run pipeline", fmt.Errorf("got %d embeddings for %d texts", len(result.Embeddings), len(texts)))
		}
		return result.Embeddings, nil
	}

	probe, err := batch(context.Background(), []string{"dimension probe"})
	if err != nil {
		session.Destroy()
		return nil, err
	}

	return &Embedder{
		Model:     modelName,
		Dimension: len(probe[0]),
		Embed:     singleFromBatch(batch),
		Batch:     batch,
		Close:     session.Destroy,
	}, nil
}

// OpenAIEmbedderConfig configures an embedder against any OpenAI compatible endpoint.
type OpenAIEmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Dimension is requested from the endpoint when set, otherwise the
	// known dimension of Model is used.
	Dimension int
	Timeout   time.Duration
}

// OpenAIEmbedder creates an embedder calling the embeddings endpoint of an
// OpenAI compatible API. Requests are not retried.
func OpenAIEmbedder(cfg OpenAIEmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, helper.NewKindError(helper.ErrConfig, "openai embedder", fmt.Errorf("api key is not set"))
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = KnownDimension(cfg.Model)
	}
	if dimension <= 0 {
		return nil, helper.NewKindError(helper.ErrConfig, "openai embedder", fmt.Errorf("unknown dimension for model %s, set it explicitly", cfg.Model))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	batch := func(ctx context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return [][]float32{}, nil
		}

		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(cfg.Model),
		}
		if cfg.Dimension > 0 {
			params.Dimensions = openai.Int(int64(cfg.Dimension))
		}

		response, err := client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, helper.NewKindError(helper.ErrEmbed, "create embeddings", err)
		}
		if len(response.Data) != len(texts) {
			return nil, helper.NewKindError(helper.ErrEmbed, "create embeddings", fmt.Errorf("got %d embeddings for %d texts", len(response.Data), len(texts)))
		}

		embeddings := make([][]float32, len(texts))
		for i, item := range response.Data {
			idx := int(item.Index)
			if idx < 0 || idx >= len(texts) {
				idx = i
			}
			embedding := make([]float32, len(item.Embedding))
			for j, val := range item.Embedding {
				embedding[j] = float32(val)
			}
			embeddings[idx] = embedding
		}

		return embeddings, nil
	}

	return &Embedder{
		Model:     cfg.Model,
		Dimension: dimension,
		Embed:     singleFromBatch(batch),
		Batch:     batch,
	}, nil
}

// KnownDimension returns the output size of well known embedding models, 0 if unknown.
func KnownDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "text-embedding-004", "embedding-001", "models/embedding-001", "models/text-embedding-004":
		return 768
	case "gemini-embedding-001":
		return 3072
	default:
		return 0
	}
}

func singleFromBatch(batch BatchEmbedFunc) EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		embeddings, err := batch(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(embeddings) == 0 {
			return nil, helper.NewKindError(helper.ErrEmbed, "embed", fmt.Errorf("no embedding generated"))
		}
		return embeddings[0], nil
	}
}

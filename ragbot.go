package ragbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/siherrmann/ragbot/config"
	"github.com/siherrmann/ragbot/core/conversation"
	"github.com/siherrmann/ragbot/core/llm"
	"github.com/siherrmann/ragbot/core/loader"
	"github.com/siherrmann/ragbot/core/pipeline"
	"github.com/siherrmann/ragbot/core/vectorindex"
	"github.com/siherrmann/ragbot/core/web"
	"github.com/siherrmann/ragbot/database"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
	loadSql "github.com/siherrmann/ragbot/sql"
)

// ErrNoContent is reported for files that produced no text.
var ErrNoContent = errors.New("no text content extracted")

// noContentReason is the upload failure reason of ErrNoContent.
const noContentReason = "No text content extracted"

// Upload is one file received for ingestion.
type Upload struct {
	Name   string
	Reader io.Reader
}

// Ragbot wires loading, crawling, the vector index and the conversation
// engine into one knowledge base.
type Ragbot struct {
	Config  *config.Config
	DB      *helper.Database
	Chunks  *database.ChunksDBHandler
	Sources *database.SourcesDBHandler
	Gateway *vectorindex.Gateway
	Loader  *loader.Loader
	Crawler *web.Crawler
	Engine  *conversation.Engine

	chunker  pipeline.ChunkFunc
	embedder *pipeline.Embedder
	closers  []func() error
	log      *slog.Logger
}

type options struct {
	index    vectorindex.Index
	embedder *pipeline.Embedder
	newModel conversation.ModelFactory
}

// Option overrides a component that New would otherwise build from the config.
type Option func(*options)

// WithIndex uses index instead of the configured vector store.
func WithIndex(index vectorindex.Index) Option {
	return func(o *options) { o.index = index }
}

// WithEmbedder uses embedder instead of the configured embedding provider.
func WithEmbedder(embedder *pipeline.Embedder) Option {
	return func(o *options) { o.embedder = embedder }
}

// WithModelFactory uses newModel to create the chat model.
func WithModelFactory(newModel conversation.ModelFactory) Option {
	return func(o *options) { o.newModel = newModel }
}

// New creates a Ragbot from cfg. Configuration problems of the vector store
// or the embedder do not fail New, the engine starts unavailable instead
// and every chat answer says so. Other errors, like an unreachable
// database, are returned.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Ragbot, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = helper.NewLogger(cfg.Log.Level)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	chunker := pipeline.FixedSizeChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	r := &Ragbot{
		Config:  cfg,
		Loader:  loader.NewLoader(chunker, logger),
		Crawler: web.NewCrawler(web.NewFetcher(cfg.Crawler.FetcherConfig), logger),
		chunker: chunker,
		log:     logger,
	}

	newModel := o.newModel
	if newModel == nil {
		newModel = chatModelFactory(cfg.Chat)
	}

	gateway, err := r.buildGateway(ctx, o)
	if err != nil && !errors.Is(err, helper.ErrConfig) {
		r.Close()
		return nil, err
	}

	var retriever conversation.Retriever
	if gateway != nil {
		r.Gateway = gateway
		retriever = gateway
	}
	r.Engine = conversation.NewEngine(retriever, newModel, conversation.Config{
		Persona:   cfg.Persona,
		Retrieval: cfg.Retrieval,
	}, logger)
	if err != nil {
		r.Engine.MarkUnavailable(err)
	}

	return r, nil
}

func (r *Ragbot) buildGateway(ctx context.Context, o *options) (*vectorindex.Gateway, error) {
	index := o.index
	if index == nil {
		var err error
		index, err = r.buildIndex(ctx)
		if err != nil {
			return nil, err
		}
	}

	embedder := o.embedder
	if embedder == nil {
		var err error
		embedder, err = buildEmbedder(r.Config.Embedder)
		if err != nil {
			return nil, err
		}
		r.embedder = embedder
	}

	gateway, err := vectorindex.NewGateway(index, embedder, r.Config.Retrieval, r.log)
	if err != nil {
		return nil, err
	}
	gateway.SetBatchSize(r.Config.Embedder.BatchSize)

	return gateway, nil
}

func (r *Ragbot) buildIndex(ctx context.Context) (vectorindex.Index, error) {
	switch r.Config.VectorStore.Type {
	case vectorindex.MemoryIndexName:
		r.log.Warn("Using in-memory vector index, ingested documents are lost on exit")
		return vectorindex.NewMemoryIndex(), nil
	case vectorindex.SQLiteIndexName:
		index, err := vectorindex.NewSQLiteIndex(r.Config.VectorStore.Path)
		if err != nil {
			return nil, helper.NewKindError(helper.ErrIndex, "open sqlite index", err)
		}
		r.closers = append(r.closers, index.Close)
		return index, nil
	case "pgvector":
	default:
		return nil, helper.NewKindError(helper.ErrConfig, "vector store", fmt.Errorf("unknown vector store type %q", r.Config.VectorStore.Type))
	}

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}

	db, err := helper.NewDatabase("ragbot", dbConfig, r.log)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "connect vector store", err)
	}
	r.DB = db

	err = loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewKindError(helper.ErrIndex, "init database extensions", err)
	}

	chunks, err := database.NewChunksDBHandler(db, false)
	if err != nil {
		return nil, err
	}
	chunks.SetTimeout(r.Config.VectorStore.Timeout)
	r.Chunks = chunks

	sources, err := database.NewSourcesDBHandler(db, false)
	if err != nil {
		return nil, err
	}
	r.Sources = sources

	return chunks, nil
}

func buildEmbedder(cfg config.EmbedderConfig) (*pipeline.Embedder, error) {
	switch cfg.Type {
	case "local":
		return pipeline.LocalEmbedder(cfg.Model, cfg.OnnxFile)
	case llm.ProviderOpenAI, llm.ProviderGemini:
		return pipeline.OpenAIEmbedder(pipeline.OpenAIEmbedderConfig{
			APIKey:    os.Getenv(cfg.APIKeyEnv),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, helper.NewKindError(helper.ErrConfig, "embedder", fmt.Errorf("unknown embedder type %q", cfg.Type))
	}
}

// chatModelFactory reads the api key when the engine first needs the model,
// so a key exported after startup is still picked up.
func chatModelFactory(cfg config.ChatConfig) conversation.ModelFactory {
	return func() (llm.Model, error) {
		return llm.New(llm.Config{
			Provider:    cfg.Provider,
			APIKey:      os.Getenv(cfg.APIKeyEnv),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	}
}

// Close releases the embedder, the index file and the database connection.
func (r *Ragbot) Close() error {
	var errs []error
	for _, closeFn := range r.closers {
		errs = append(errs, closeFn())
	}
	if r.embedder != nil && r.embedder.Close != nil {
		errs = append(errs, r.embedder.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}

func (r *Ragbot) gateway() (*vectorindex.Gateway, error) {
	if r.Gateway == nil {
		_, err := r.Engine.State()
		if err == nil {
			err = errors.New("vector index is not configured")
		}
		return nil, helper.NewKindError(helper.ErrConfig, "knowledge base unavailable", err)
	}
	return r.Gateway, nil
}

// IngestFile loads, chunks and indexes one file and cites it as displayName.
// A file without text fails with ErrNoContent.
func (r *Ragbot) IngestFile(ctx context.Context, path string, displayName string) (int, error) {
	n, err := r.ingestFile(ctx, path, displayName)
	if err != nil {
		return 0, err
	}
	r.reinitialize(ctx)
	return n, nil
}

func (r *Ragbot) ingestFile(ctx context.Context, path string, displayName string) (int, error) {
	gateway, err := r.gateway()
	if err != nil {
		return 0, err
	}
	if displayName == "" {
		displayName = filepath.Base(path)
	}

	chunks, err := r.Loader.LoadAndChunk(path, displayName)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, ErrNoContent
	}

	n, err := gateway.Add(ctx, chunks)
	if err != nil {
		return 0, err
	}

	r.recordSource(ctx, displayName, "file", n)
	r.log.Info("Ingested file", slog.String("name", displayName), slog.Int("chunks", n))

	return n, nil
}

// ReplaceFile re-ingests path and swaps the chunks cited as displayName for
// the new ones. When loading or embedding fails the previous chunks stay.
// A file without text removes them and fails with ErrNoContent.
func (r *Ragbot) ReplaceFile(ctx context.Context, path string, displayName string) (int, error) {
	gateway, err := r.gateway()
	if err != nil {
		return 0, err
	}
	if displayName == "" {
		displayName = filepath.Base(path)
	}

	chunks, err := r.Loader.LoadAndChunk(path, displayName)
	if err != nil {
		return 0, err
	}

	replaced, n, err := gateway.Replace(ctx, displayName, chunks)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		r.forgetSource(ctx, displayName)
		return 0, ErrNoContent
	}

	r.recordSource(ctx, displayName, "file", n)
	r.log.Info("Replaced file", slog.String("name", displayName), slog.Int64("previous", replaced), slog.Int("chunks", n))
	r.reinitialize(ctx)

	return n, nil
}

// IngestUpload stores every upload in a temporary file with the upload's
// extension and ingests it. Failures are reported per file. The engine is
// re-initialized once when at least one file was ingested.
func (r *Ragbot) IngestUpload(ctx context.Context, uploads []Upload) model.UploadResult {
	result := model.UploadResult{
		Processed: []model.FileResult{},
		Failed:    []model.FileFailure{},
	}

	for _, upload := range uploads {
		n, err := r.ingestReader(ctx, upload)
		if err != nil {
			r.log.Warn("Failed to ingest upload", slog.String("name", upload.Name), slog.Any("error", err))
			result.Failed = append(result.Failed, model.FileFailure{Name: upload.Name, Reason: failureReason(err)})
			continue
		}
		result.Processed = append(result.Processed, model.FileResult{Name: upload.Name, Chunks: n})
	}

	if len(result.Processed) > 0 {
		r.reinitialize(ctx)
	}

	return result
}

func (r *Ragbot) ingestReader(ctx context.Context, upload Upload) (int, error) {
	tmp, err := os.CreateTemp("", "ragbot-upload-*"+strings.ToLower(filepath.Ext(upload.Name)))
	if err != nil {
		return 0, helper.NewKindError(helper.ErrLoad, "create temp file", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, upload.Reader)
	closeErr := tmp.Close()
	if err != nil {
		return 0, helper.NewKindError(helper.ErrLoad, "write temp file", err)
	}
	if closeErr != nil {
		return 0, helper.NewKindError(helper.ErrLoad, "write temp file", closeErr)
	}

	return r.ingestFile(ctx, tmp.Name(), upload.Name)
}

func failureReason(err error) string {
	if errors.Is(err, ErrNoContent) {
		return noContentReason
	}
	return err.Error()
}

// IngestWebsite crawls rawURL and indexes the extracted pages. maxPages
// below one and negative maxDepth fall back to the crawler configuration.
func (r *Ragbot) IngestWebsite(ctx context.Context, rawURL string, maxPages int, maxDepth int) (model.WebsiteResult, error) {
	result := model.WebsiteResult{URL: rawURL, ProcessedURLs: []string{}}

	gateway, err := r.gateway()
	if err != nil {
		return result, err
	}
	if maxPages < 1 {
		maxPages = r.Config.Crawler.MaxPages
	}
	if maxDepth < 0 {
		maxDepth = r.Config.Crawler.Depth()
	}

	docs, err := r.Crawler.WebsiteToDocuments(ctx, rawURL, maxPages, maxDepth)
	if err != nil {
		return result, err
	}

	chunks, err := pipeline.SplitDocuments(r.chunker, docs)
	if err != nil {
		return result, helper.NewKindError(helper.ErrExtract, "chunk website", err)
	}
	if len(chunks) == 0 {
		return result, &web.ExtractError{URL: rawURL, Err: ErrNoContent}
	}

	n, err := gateway.Add(ctx, chunks)
	if err != nil {
		return result, err
	}

	perPage := map[string]int{}
	urls := []string{}
	for _, c := range chunks {
		source := c.Metadata.Source()
		if _, ok := perPage[source]; !ok {
			urls = append(urls, source)
		}
		perPage[source]++
	}
	for _, u := range urls {
		r.recordSource(ctx, u, model.TypeWebsite, perPage[u])
	}

	result.PagesProcessed = len(urls)
	result.ChunksCreated = n
	result.ProcessedURLs = urls
	if len(urls) > 10 {
		result.ProcessedURLs = urls[:10]
	}

	r.log.Info("Ingested website", slog.String("url", rawURL), slog.Int("pages", len(urls)), slog.Int("chunks", n))
	r.reinitialize(ctx)

	return result, nil
}

// Chat answers one message. It never fails.
func (r *Ragbot) Chat(ctx context.Context, message string) model.ChatResponse {
	answer, sources := r.Engine.GenerateResponse(ctx, message)
	return model.ChatResponse{Response: answer, Sources: sources}
}

// Status reports index statistics, the engine state and which credentials are set.
func (r *Ragbot) Status(ctx context.Context) model.Status {
	status := model.Status{Credentials: r.Config.Credentials()}

	state, stateErr := r.Engine.State()
	status.Engine = state.String()
	if stateErr != nil {
		status.EngineError = stateErr.Error()
	}

	if r.Gateway == nil {
		status.IndexError = "vector index is not configured"
		return status
	}
	stats, err := r.Gateway.Stats(ctx)
	if err != nil {
		status.IndexError = err.Error()
		return status
	}
	status.Index = stats

	return status
}

// ListSources returns the ingested sources, most recently updated first.
// It needs the pgvector store.
func (r *Ragbot) ListSources(ctx context.Context, limit int) ([]*model.SourceRecord, error) {
	if r.Sources == nil {
		return nil, helper.NewKindError(helper.ErrConfig, "list sources", errors.New("source registry requires the pgvector store"))
	}
	return r.Sources.SelectAllSources(ctx, limit)
}

// DeleteSource removes every chunk cited as source and its registry entry.
func (r *Ragbot) DeleteSource(ctx context.Context, source string) (int64, error) {
	gateway, err := r.gateway()
	if err != nil {
		return 0, err
	}

	n, err := gateway.DeleteSource(ctx, source)
	if err != nil {
		return 0, err
	}
	if r.Sources != nil {
		err = r.Sources.DeleteSource(ctx, source)
		if err != nil {
			return n, err
		}
	}

	r.log.Info("Deleted source", slog.String("source", source), slog.Int64("chunks", n))

	return n, nil
}

// ChangeIndexType rebuilds the pgvector index with the type and parameters
// of the vector store configuration unless indexType is given.
func (r *Ragbot) ChangeIndexType(ctx context.Context, indexType string) error {
	if r.Chunks == nil {
		return helper.NewKindError(helper.ErrConfig, "change index type", errors.New("index type requires the pgvector store"))
	}
	if indexType == "" {
		indexType = r.Config.VectorStore.IndexType
	}
	return r.Chunks.ChangeIndexType(ctx, indexType, r.Config.VectorStore.Index)
}

// recordSource is best effort, the chunks are already stored.
func (r *Ragbot) recordSource(ctx context.Context, name string, sourceType string, chunks int) {
	if r.Sources == nil {
		return
	}
	err := r.Sources.UpsertSource(ctx, &model.SourceRecord{Name: name, Type: sourceType, Chunks: chunks, Metadata: model.Metadata{}})
	if err != nil {
		r.log.Warn("Failed to record source", slog.String("source", name), slog.Any("error", err))
	}
}

func (r *Ragbot) forgetSource(ctx context.Context, name string) {
	if r.Sources == nil {
		return
	}
	if err := r.Sources.DeleteSource(ctx, name); err != nil {
		r.log.Warn("Failed to remove source", slog.String("source", name), slog.Any("error", err))
	}
}

func (r *Ragbot) reinitialize(ctx context.Context) {
	err := r.Engine.Initialize(ctx)
	if err != nil {
		r.log.Error("Failed to initialize conversation engine", slog.Any("error", err))
	}
}

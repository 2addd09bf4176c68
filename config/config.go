package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/siherrmann/ragbot/core/conversation"
	"github.com/siherrmann/ragbot/core/web"
	"github.com/siherrmann/ragbot/database"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "ragbot.yaml"

// ServerConfig configures the http server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// EmbedderConfig selects the embedding provider: openai, gemini or local.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
	// Local only
	OnnxFile string `yaml:"onnx_file"`
}

// ChatConfig selects the chat model provider: openai, gemini or anthropic.
type ChatConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Model       string        `yaml:"model"`
	Temperature *float64      `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// VectorStoreConfig selects the index: pgvector (database from DB_* env vars),
// sqlite (a single file at Path) or memory.
type VectorStoreConfig struct {
	Type      string               `yaml:"type"`
	Path      string               `yaml:"path"`
	IndexType string               `yaml:"index_type"`
	Index     database.IndexParams `yaml:"index"`
	Timeout   time.Duration        `yaml:"timeout"`
}

// CrawlerConfig configures website ingestion.
type CrawlerConfig struct {
	web.FetcherConfig `yaml:",inline"`
	MaxPages          int  `yaml:"max_pages"`
	MaxDepth          *int `yaml:"max_depth"`
}

// Depth returns the configured crawl depth, 1 when unset.
func (c CrawlerConfig) Depth() int {
	if c.MaxDepth == nil || *c.MaxDepth < 0 {
		return 1
	}
	return *c.MaxDepth
}

// WatcherConfig configures folder ingestion.
type WatcherConfig struct {
	Dirs     []string      `yaml:"dirs"`
	Debounce time.Duration `yaml:"debounce"`
}

// Config is the root configuration. Secrets are never stored here, only
// the names of the environment variables holding them.
type Config struct {
	Server      ServerConfig          `yaml:"server"`
	Log         LogConfig             `yaml:"log"`
	Persona     conversation.Persona  `yaml:"persona"`
	Chunker     model.ChunkerConfig   `yaml:"chunker"`
	Retrieval   model.RetrievalConfig `yaml:"retrieval"`
	Embedder    EmbedderConfig        `yaml:"embedder"`
	Chat        ChatConfig            `yaml:"chat"`
	VectorStore VectorStoreConfig     `yaml:"vector_store"`
	Crawler     CrawlerConfig         `yaml:"crawler"`
	Watcher     WatcherConfig         `yaml:"watcher"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadEnv loads a .env file from the working directory if one exists.
func LoadEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return helper.NewKindError(helper.ErrConfig, "load .env", err)
	}
	return nil
}

// Load reads a config from path. A missing file gives the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, helper.NewKindError(helper.ErrConfig, "read config", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, helper.NewKindError(helper.ErrConfig, "parse config", fmt.Errorf("%s: %w", path, err))
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDefault loads explicit if set, else ./ragbot.yaml, else
// ~/.config/ragbot/config.yaml. It returns the path used, empty for defaults.
func LoadDefault(explicit string) (*Config, string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, "", helper.NewKindError(helper.ErrConfig, "config file", err)
		}
		cfg, err := Load(explicit)
		return cfg, explicit, err
	}

	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "ragbot", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}

	return Default(), "", nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return helper.NewKindError(helper.ErrConfig, "validate config", fmt.Errorf("invalid chunker size %d with overlap %d", c.Chunker.Size, c.Chunker.Overlap))
	}
	switch c.Embedder.Type {
	case "openai", "gemini", "local":
	default:
		return helper.NewKindError(helper.ErrConfig, "validate config", fmt.Errorf("unknown embedder type %q", c.Embedder.Type))
	}
	switch c.VectorStore.Type {
	case "pgvector", "sqlite", "memory":
	default:
		return helper.NewKindError(helper.ErrConfig, "validate config", fmt.Errorf("unknown vector store type %q", c.VectorStore.Type))
	}
	switch c.VectorStore.IndexType {
	case "hnsw", "ivfflat":
	default:
		return helper.NewKindError(helper.ErrConfig, "validate config", fmt.Errorf("unknown index type %q", c.VectorStore.IndexType))
	}
	return nil
}

// Credentials reports for every required credential whether it is present.
func (c *Config) Credentials() map[string]bool {
	creds := map[string]bool{}
	if c.Embedder.Type != "local" {
		creds[c.Embedder.APIKeyEnv] = os.Getenv(c.Embedder.APIKeyEnv) != ""
	}
	creds[c.Chat.APIKeyEnv] = os.Getenv(c.Chat.APIKeyEnv) != ""
	if c.VectorStore.Type == "pgvector" {
		for _, env := range []string{"DB_HOST", "DB_PORT", "DB_DATABASE", "DB_USERNAME", "DB_PASSWORD"} {
			creds[env] = os.Getenv(env) != ""
		}
	}
	return creds
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 32 << 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	cfg.Persona = cfg.Persona.Normalize()

	if cfg.Chunker.Size == 0 && cfg.Chunker.Overlap == 0 {
		cfg.Chunker = model.DefaultChunkerConfig()
	}
	cfg.Retrieval = cfg.Retrieval.Normalize()

	cfg.Embedder.Type = strings.ToLower(cfg.Embedder.Type)
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "gemini"
	}
	if cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = defaultKeyEnv(cfg.Embedder.Type)
	}
	if cfg.Embedder.Type == "gemini" {
		if cfg.Embedder.BaseURL == "" {
			cfg.Embedder.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
		}
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "text-embedding-004"
		}
	}
	if cfg.Embedder.Timeout <= 0 {
		cfg.Embedder.Timeout = 30 * time.Second
	}
	if cfg.Embedder.BatchSize <= 0 {
		cfg.Embedder.BatchSize = 64
	}

	cfg.Chat.Provider = strings.ToLower(cfg.Chat.Provider)
	if cfg.Chat.Provider == "" {
		cfg.Chat.Provider = "gemini"
	}
	if cfg.Chat.APIKeyEnv == "" {
		cfg.Chat.APIKeyEnv = defaultKeyEnv(cfg.Chat.Provider)
	}
	if cfg.Chat.Timeout <= 0 {
		cfg.Chat.Timeout = 60 * time.Second
	}

	cfg.VectorStore.Type = strings.ToLower(cfg.VectorStore.Type)
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "pgvector"
	}
	cfg.VectorStore.IndexType = strings.ToLower(cfg.VectorStore.IndexType)
	if cfg.VectorStore.IndexType == "" {
		cfg.VectorStore.IndexType = "hnsw"
	}
	if cfg.VectorStore.Timeout <= 0 {
		cfg.VectorStore.Timeout = 10 * time.Second
	}
	if cfg.VectorStore.Type == "sqlite" && cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = defaultSQLitePath()
	}

	fetcherDefaults := web.DefaultFetcherConfig()
	if cfg.Crawler.Timeout <= 0 {
		cfg.Crawler.Timeout = fetcherDefaults.Timeout
	}
	if cfg.Crawler.UserAgent == "" {
		cfg.Crawler.UserAgent = fetcherDefaults.UserAgent
	}
	if cfg.Crawler.RequestsPerSecond == 0 {
		cfg.Crawler.RequestsPerSecond = fetcherDefaults.RequestsPerSecond
	}
	if cfg.Crawler.Burst <= 0 {
		cfg.Crawler.Burst = fetcherDefaults.Burst
	}
	if cfg.Crawler.MaxBodyBytes <= 0 {
		cfg.Crawler.MaxBodyBytes = fetcherDefaults.MaxBodyBytes
	}
	if cfg.Crawler.MaxPages <= 0 {
		cfg.Crawler.MaxPages = 5
	}

	if cfg.Watcher.Debounce <= 0 {
		cfg.Watcher.Debounce = 500 * time.Millisecond
	}
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ragbot", "index.db")
	}
	return filepath.Join(home, ".ragbot", "index.db")
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "GOOGLE_API_KEY"
	}
}

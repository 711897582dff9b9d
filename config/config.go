package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GeminiConfig holds credentials for the Gemini API.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	// APIKey is resolved from APIKeyEnv at load time and never written back.
	APIKey string `yaml:"-"`
}

// OllamaConfig points the embedder at a local Ollama server.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Dimension   int           `yaml:"dimension"`
	Degrade     bool          `yaml:"degrade"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Gemini      GeminiConfig  `yaml:"gemini"`
	Ollama      *OllamaConfig `yaml:"ollama,omitempty"`
}

// GenerationConfig selects and configures the generation provider.
type GenerationConfig struct {
	Provider        string       `yaml:"provider"`
	Model           string       `yaml:"model"`
	Temperature     float32      `yaml:"temperature"`
	TopK            float32      `yaml:"top_k"`
	TopP            float32      `yaml:"top_p"`
	MaxOutputTokens int32        `yaml:"max_output_tokens"`
	SafetyThreshold string       `yaml:"safety_threshold"`
	Gemini          GeminiConfig `yaml:"gemini"`
}

// QdrantConfig contains connection details for a Qdrant collection.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ChromaConfig contains connection details for a Chroma server.
type ChromaConfig struct {
	URL string `yaml:"url"`
}

// VectorIndexConfig selects and configures the vector index backend.
type VectorIndexConfig struct {
	Type       string        `yaml:"type"`
	Collection string        `yaml:"collection"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
	Chroma     *ChromaConfig `yaml:"chroma,omitempty"`
}

// RedisConfig contains connection details for the Redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig selects the key/value backend shared by sessions and query results.
type CacheConfig struct {
	Type           string       `yaml:"type"`
	MaxEntries     int          `yaml:"max_entries"`
	SessionTTLSecs int          `yaml:"session_ttl_secs"`
	QueryTTLSecs   int          `yaml:"query_ttl_secs"`
	Redis          *RedisConfig `yaml:"redis,omitempty"`
}

// PipelineConfig holds the query-time retrieval defaults.
type PipelineConfig struct {
	TopK          int     `yaml:"top_k"`
	ScoreFloor    float64 `yaml:"score_floor"`
	HistoryWindow int     `yaml:"history_window"`
}

// IngestionConfig controls batching and filtering of incoming documents.
type IngestionConfig struct {
	BatchSize        int    `yaml:"batch_size"`
	BatchPauseMillis int    `yaml:"batch_pause_ms"`
	MinTitleLength   int    `yaml:"min_title_length"`
	MinContentLength int    `yaml:"min_content_length"`
	SpoolDir         string `yaml:"spool_dir"`
}

// ArchiveConfig controls write-behind persistence of sessions and messages.
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
	QueueSize  int    `yaml:"queue_size"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Cache       CacheConfig       `yaml:"cache"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Archive     ArchiveConfig     `yaml:"archive"`
}

// SessionTTL is the sliding expiration of a session.
func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.Cache.SessionTTLSecs) * time.Second
}

// QueryTTL is the lifetime of a cached query result.
func (c *AppConfig) QueryTTL() time.Duration {
	return time.Duration(c.Cache.QueryTTLSecs) * time.Second
}

// BatchPause is the minimum gap between two embedding batches during ingestion.
func (c *AppConfig) BatchPause() time.Duration {
	return time.Duration(c.Ingestion.BatchPauseMillis) * time.Millisecond
}

// Load reads a config from path. A missing file yields defaults. Environment
// overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads .env if present and then ./config.yaml.
func LoadDefault() (*AppConfig, string, error) {
	_ = godotenv.Load()
	path := "config.yaml"
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Save writes cfg as YAML, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects values the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Pipeline.ScoreFloor < 0 || c.Pipeline.ScoreFloor > 1 {
		return fmt.Errorf("pipeline.score_floor must be within [0,1], got %v", c.Pipeline.ScoreFloor)
	}
	if c.Cache.QueryTTLSecs > c.Cache.SessionTTLSecs {
		return fmt.Errorf("cache.query_ttl_secs (%d) must not exceed cache.session_ttl_secs (%d)", c.Cache.QueryTTLSecs, c.Cache.SessionTTLSecs)
	}
	switch c.Embedding.Provider {
	case "gemini", "ollama", "none":
	default:
		return fmt.Errorf("unknown embedding.provider %q", c.Embedding.Provider)
	}
	switch c.Generation.Provider {
	case "gemini", "none":
	default:
		return fmt.Errorf("unknown generation.provider %q", c.Generation.Provider)
	}
	switch c.VectorIndex.Type {
	case "memory", "chroma", "qdrant":
	default:
		return fmt.Errorf("unknown vector_index.type %q", c.VectorIndex.Type)
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache.type %q", c.Cache.Type)
	}
	return nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Embedding: EmbeddingConfig{
			Provider:    "gemini",
			Model:       "text-embedding-004",
			Dimension:   768,
			Degrade:     true,
			TimeoutSecs: 30,
			Gemini:      GeminiConfig{APIKeyEnv: "GEMINI_API_KEY"},
		},
		Generation: GenerationConfig{
			Provider:        "gemini",
			Model:           "gemini-1.5-flash",
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 1024,
			SafetyThreshold: "BLOCK_MEDIUM_AND_ABOVE",
			Gemini:          GeminiConfig{APIKeyEnv: "GEMINI_API_KEY"},
		},
		VectorIndex: VectorIndexConfig{Type: "memory", Collection: "news_articles"},
		Cache: CacheConfig{
			Type:           "memory",
			MaxEntries:     10000,
			SessionTTLSecs: 86400,
			QueryTTLSecs:   1800,
		},
		Pipeline: PipelineConfig{TopK: 5, ScoreFloor: 0.7, HistoryWindow: 5},
		Ingestion: IngestionConfig{
			BatchSize:        5,
			BatchPauseMillis: 1000,
			MinTitleLength:   5,
			MinContentLength: 20,
		},
		Archive: ArchiveConfig{SQLitePath: "newsrag.db", QueueSize: 256},
	}
}

func applyDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Server.Port == "" {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = def.Embedding.Provider
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = def.Generation.Provider
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = def.Embedding.Dimension
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = def.Embedding.TimeoutSecs
	}
	if cfg.Embedding.Gemini.APIKeyEnv == "" {
		cfg.Embedding.Gemini.APIKeyEnv = def.Embedding.Gemini.APIKeyEnv
	}
	if cfg.Embedding.Provider == "ollama" {
		if cfg.Embedding.Ollama == nil {
			cfg.Embedding.Ollama = &OllamaConfig{}
		}
		if cfg.Embedding.Ollama.BaseURL == "" {
			cfg.Embedding.Ollama.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedding.Ollama.Model == "" {
			cfg.Embedding.Ollama.Model = "nomic-embed-text:v1.5"
		}
	}
	if cfg.Generation.Gemini.APIKeyEnv == "" {
		cfg.Generation.Gemini.APIKeyEnv = def.Generation.Gemini.APIKeyEnv
	}
	if cfg.Generation.SafetyThreshold == "" {
		cfg.Generation.SafetyThreshold = def.Generation.SafetyThreshold
	}
	if cfg.VectorIndex.Type == "" {
		cfg.VectorIndex.Type = def.VectorIndex.Type
	}
	if cfg.VectorIndex.Collection == "" {
		cfg.VectorIndex.Collection = def.VectorIndex.Collection
	}
	if cfg.VectorIndex.Type == "qdrant" {
		if cfg.VectorIndex.Qdrant == nil {
			cfg.VectorIndex.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorIndex.Qdrant.URL == "" {
			cfg.VectorIndex.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorIndex.Qdrant.TimeoutSecs == 0 {
			cfg.VectorIndex.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = def.Cache.Type
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.Redis == nil {
		cfg.Cache.Redis = &RedisConfig{Addr: "localhost:6379"}
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = def.Cache.MaxEntries
	}
	if cfg.Cache.SessionTTLSecs == 0 {
		cfg.Cache.SessionTTLSecs = def.Cache.SessionTTLSecs
	}
	if cfg.Cache.QueryTTLSecs == 0 {
		cfg.Cache.QueryTTLSecs = def.Cache.QueryTTLSecs
	}
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = def.Pipeline.TopK
	}
	if cfg.Pipeline.HistoryWindow == 0 {
		cfg.Pipeline.HistoryWindow = def.Pipeline.HistoryWindow
	}
	if cfg.Ingestion.BatchSize == 0 {
		cfg.Ingestion.BatchSize = def.Ingestion.BatchSize
	}
	if cfg.Archive.SQLitePath == "" {
		cfg.Archive.SQLitePath = def.Archive.SQLitePath
	}
	if cfg.Archive.QueueSize == 0 {
		cfg.Archive.QueueSize = def.Archive.QueueSize
	}
}

// applyEnv resolves credentials and lets the environment win over the file.
func applyEnv(cfg *AppConfig) error {
	cfg.Embedding.Gemini.APIKey = strings.TrimSpace(os.Getenv(cfg.Embedding.Gemini.APIKeyEnv))
	cfg.Generation.Gemini.APIKey = strings.TrimSpace(os.Getenv(cfg.Generation.Gemini.APIKeyEnv))

	if v := os.Getenv("NEWSRAG_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("NEWSRAG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("NEWSRAG_REDIS_ADDR"); v != "" {
		cfg.Cache.Type = "redis"
		if cfg.Cache.Redis == nil {
			cfg.Cache.Redis = &RedisConfig{}
		}
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("NEWSRAG_QDRANT_URL"); v != "" {
		cfg.VectorIndex.Type = "qdrant"
		if cfg.VectorIndex.Qdrant == nil {
			cfg.VectorIndex.Qdrant = &QdrantConfig{TimeoutSecs: 15}
		}
		cfg.VectorIndex.Qdrant.URL = v
	}
	if v := os.Getenv("NEWSRAG_CHROMA_URL"); v != "" {
		cfg.VectorIndex.Type = "chroma"
		cfg.VectorIndex.Chroma = &ChromaConfig{URL: v}
	}
	if v := os.Getenv("NEWSRAG_SPOOL_DIR"); v != "" {
		cfg.Ingestion.SpoolDir = v
	}
	if v := os.Getenv("NEWSRAG_SCORE_FLOOR"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("NEWSRAG_SCORE_FLOOR: %w", err)
		}
		cfg.Pipeline.ScoreFloor = f
	}
	return nil
}

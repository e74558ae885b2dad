// Package config provides unified configuration loading for the RAG engine.
// Supports YAML files, .env files, environment variables and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the RAG engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Cache         CacheConfig         `yaml:"cache"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	LLM           LLMConfig           `yaml:"llm"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// StoreConfig selects and configures the vector store engine.
type StoreConfig struct {
	Driver    string         `yaml:"driver"` // memory, sqlite or pgvector
	Dimension int            `yaml:"dimension"`
	SQLite    SQLiteConfig   `yaml:"sqlite"`
	Postgres  PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // openai or mock
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LLMConfig holds completion model settings.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai or gemini
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RetrievalConfig holds retrieval and selection policy.
type RetrievalConfig struct {
	TopK                   int           `yaml:"top_k"`
	SimilarityThreshold    float64       `yaml:"similarity_threshold"`
	UseHybrid              bool          `yaml:"use_hybrid"`
	ScanLimit              int           `yaml:"scan_limit"`
	AugmentScanLimit       int           `yaml:"augment_scan_limit"`
	MaxChunks              int           `yaml:"max_chunks"`
	PreferredKeywordChunks int           `yaml:"preferred_keyword_chunks"`
	IntentsPath            string        `yaml:"intents_path"`
	Weights                WeightsConfig `yaml:"weights"`
	BatchWorkers           int           `yaml:"batch_workers"`
	BatchTimeout           time.Duration `yaml:"batch_timeout"`
}

// WeightsConfig holds the score combination constants.
type WeightsConfig struct {
	LexicalMatch   float64 `yaml:"lexical_match"`
	LexicalMerge   float64 `yaml:"lexical_merge"`
	RoleMatch      float64 `yaml:"role_match"`
	KeywordHit     float64 `yaml:"keyword_hit"`
	AugmentedScore float64 `yaml:"augmented_score"`
}

// AuditConfig holds query audit settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads .env files, the optional YAML file at path and environment
// overrides, in that order, and validates the result.
func Load(path string) (*Config, error) {
	LoadDotEnv()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Retrieval.IntentsPath != "" {
			cfg.Retrieval.IntentsPath = ResolveRelativePath(path, cfg.Retrieval.IntentsPath)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads .env from the working directory and its parent.
// Variables already present in the environment are not overwritten.
func LoadDotEnv() {
	for _, p := range []string{".env", "../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   90 * time.Second,
			GracefulShutdown: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			Dimension: 1536,
			SQLite: SQLiteConfig{
				Path:         "rag-engine.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				Table:           "cew_chunks",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 5000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "rag:",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 64,
			Timeout:   30 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.0,
			MaxTokens:   3000,
			Timeout:     90 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:                   60,
			SimilarityThreshold:    0.0,
			UseHybrid:              true,
			ScanLimit:              2000,
			AugmentScanLimit:       5000,
			MaxChunks:              12,
			PreferredKeywordChunks: 6,
			Weights: WeightsConfig{
				LexicalMatch:   0.5,
				LexicalMerge:   0.3,
				RoleMatch:      1.0,
				KeywordHit:     1.0,
				AugmentedScore: 0.0,
			},
			BatchWorkers: 4,
			BatchTimeout: 120 * time.Second,
		},
		Audit: AuditConfig{
			Enabled: true,
			Channel: "rag.audit",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "rag-engine",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "memory", "sqlite", "pgvector":
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if c.Store.Driver == "pgvector" && c.Store.Postgres.DSN == "" {
		return fmt.Errorf("pgvector store requires a postgres dsn")
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.Embedding.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("invalid embedding provider: %s", c.Embedding.Provider)
	}

	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}

	r := c.Retrieval
	if r.TopK < 1 {
		return fmt.Errorf("top_k must be positive")
	}
	if r.MaxChunks < 1 || r.MaxChunks > 60 {
		return fmt.Errorf("max_chunks must be between 1 and 60")
	}
	if r.PreferredKeywordChunks < 0 || r.PreferredKeywordChunks > r.MaxChunks {
		return fmt.Errorf("preferred_keyword_chunks must be between 0 and max_chunks")
	}
	if r.ScanLimit < 0 || r.AugmentScanLimit < 0 {
		return fmt.Errorf("scan limits must not be negative")
	}
	w := r.Weights
	if w.LexicalMatch < 0 || w.LexicalMerge < 0 || w.RoleMatch < 0 || w.KeywordHit < 0 {
		return fmt.Errorf("retrieval weights must not be negative")
	}

	return nil
}

// DatabaseDSN returns the connection string for the configured store driver.
func (c *Config) DatabaseDSN() string {
	switch c.Store.Driver {
	case "sqlite":
		return c.Store.SQLite.Path
	case "pgvector":
		return c.Store.Postgres.DSN
	default:
		return ""
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Store.Driver = "sqlite"
			cfg.Store.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Store.Driver = "pgvector"
			cfg.Store.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	// OpenRouter keys route both embeddings and completions through its
	// OpenAI-compatible endpoint unless a base url is already configured.
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		cfg.LLM.APIKey = v
		if cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = "https://openrouter.ai/api/v1"
		}
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://openrouter.ai/api/v1"
		}
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
		if cfg.LLM.Provider == "openai" {
			cfg.LLM.APIKey = v
		}
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" && cfg.LLM.Provider != "gemini" {
		cfg.LLM.Model = v
	}

	if cfg.LLM.Provider == "gemini" {
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
		if v := os.Getenv("GEMINI_MODEL"); v != "" {
			cfg.LLM.Model = v
		}
	}

	if v := os.Getenv("TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = k
		}
	}

	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if th, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.SimilarityThreshold = th
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	return filepath.Join(filepath.Dir(configPath), targetPath)
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported LLM providers and index backends.
const (
	ProviderLlamaCPP   = "llamacpp"
	ProviderOpenAI     = "openai"
	IndexBackendFlat   = "flat"
	IndexBackendQdrant = "qdrant"
)

// Config holds all configuration for the application.
type Config struct {
	LLMProvider     string        `yaml:"llm_provider"`
	LLMBaseURL      string        `yaml:"llm_base_url"`
	LLMModelName    string        `yaml:"llm_model"`
	LLMAPIKey       string        `yaml:"llm_api_key"`
	EvaluationModel string        `yaml:"evaluation_model"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`
	LLMRateLimit    float64       `yaml:"llm_rate_limit"`
	LLMAutoload     bool          `yaml:"llm_autoload"`

	EmbeddingBaseURL   string `yaml:"embedding_base_url"`
	EmbeddingModelName string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`

	DBPath           string `yaml:"db_path"`
	IndexBackend     string `yaml:"index_backend"`
	IndexPath        string `yaml:"index_path"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`

	ChunkSize         int     `yaml:"chunk_size"`
	ChunkOverlap      int     `yaml:"chunk_overlap"`
	MinRelevanceScore float64 `yaml:"min_relevance_score"`
	MaxSources        int     `yaml:"max_sources"`
	MaxFileSize       int64   `yaml:"max_file_size"`
	InboxDir          string  `yaml:"inbox_dir"`

	RedisAddr         string        `yaml:"redis_addr"`
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl"`

	APIPort     string     `yaml:"api_port"`
	LogLevel    slog.Level `yaml:"-"`
	LogFormat   string     `yaml:"log_format"`
	CORSOrigins []string   `yaml:"cors_origins"`
}

// Load reads configuration from environment variables and returns a Config struct.
// Values come from, in increasing precedence: defaults, the YAML file named by
// CONFIG_FILE, a .env file in the current directory or a parent, and the process
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.IndexPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LLMProvider:        ProviderLlamaCPP,
		LLMBaseURL:         "http://localhost:8080",
		LLMModelName:       "Llama-3.1-8B-Instruct",
		LLMAPIKey:          "dummy-key",
		LLMTimeout:         60 * time.Second,
		EmbeddingBaseURL:   "http://localhost:8081",
		EmbeddingModelName: "text-embedding-ada-002",
		EmbeddingDimension: 1536,
		DBPath:             "./data/insightbot.db",
		IndexBackend:       IndexBackendFlat,
		IndexPath:          "./data/faiss_index",
		QdrantURL:          "http://localhost:6333",
		QdrantCollection:   "chunks",
		ChunkSize:          1000,
		ChunkOverlap:       200,
		MinRelevanceScore:  0.7,
		MaxSources:         10,
		MaxFileSize:        10 * 1024 * 1024,
		EmbeddingCacheTTL:  24 * time.Hour,
		APIPort:            "8000",
		LogLevel:           slog.LevelInfo,
		LogFormat:          "text",
		CORSOrigins:        []string{"*"},
	}
}

// fileConfig mirrors Config for YAML decoding; log_level needs custom parsing.
type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	fc := fileConfig{Config: *cfg}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	*cfg = fc.Config

	if fc.LogLevel != "" {
		level, err := parseLevel(fc.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.LLMBaseURL = getEnv("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModelName = getEnv("LLM_MODEL", cfg.LLMModelName)
	cfg.LLMAPIKey = getEnv("LLM_API_KEY", cfg.LLMAPIKey)
	cfg.EvaluationModel = getEnv("EVALUATION_MODEL", cfg.EvaluationModel)
	if cfg.EvaluationModel == "" {
		cfg.EvaluationModel = cfg.LLMModelName
	}
	cfg.EmbeddingBaseURL = getEnv("EMBEDDING_BASE_URL", cfg.EmbeddingBaseURL)
	cfg.EmbeddingModelName = getEnv("EMBEDDING_MODEL_NAME", cfg.EmbeddingModelName)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.IndexBackend = strings.ToLower(getEnv("INDEX_BACKEND", cfg.IndexBackend))
	cfg.IndexPath = getEnv("INDEX_PATH", cfg.IndexPath)
	cfg.QdrantURL = getEnv("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantCollection = getEnv("QDRANT_COLLECTION", cfg.QdrantCollection)
	cfg.InboxDir = getEnv("INBOX_DIR", cfg.InboxDir)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.APIPort = getEnv("API_PORT", cfg.APIPort)
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	var err error
	if cfg.LLMTimeout, err = envDuration("LLM_TIMEOUT", cfg.LLMTimeout); err != nil {
		return err
	}
	if cfg.EmbeddingCacheTTL, err = envDuration("EMBEDDING_CACHE_TTL", cfg.EmbeddingCacheTTL); err != nil {
		return err
	}
	if cfg.LLMRateLimit, err = envFloat("LLM_RATE_LIMIT", cfg.LLMRateLimit); err != nil {
		return err
	}
	if cfg.MinRelevanceScore, err = envFloat("MIN_RELEVANCE_SCORE", cfg.MinRelevanceScore); err != nil {
		return err
	}
	if cfg.EmbeddingDimension, err = envInt("EMBEDDING_DIMENSION", cfg.EmbeddingDimension); err != nil {
		return err
	}
	if cfg.ChunkSize, err = envInt("CHUNK_SIZE", cfg.ChunkSize); err != nil {
		return err
	}
	if cfg.ChunkOverlap, err = envInt("CHUNK_OVERLAP", cfg.ChunkOverlap); err != nil {
		return err
	}
	if cfg.MaxSources, err = envInt("MAX_SOURCES", cfg.MaxSources); err != nil {
		return err
	}

	if v := os.Getenv("MAX_FILE_SIZE"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_FILE_SIZE must be a valid integer: %w", err)
		}
		cfg.MaxFileSize = size
	}

	if v := os.Getenv("LLM_AUTOLOAD"); v != "" {
		autoload, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LLM_AUTOLOAD must be a boolean: %w", err)
		}
		cfg.LLMAutoload = autoload
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	return nil
}

func (c *Config) validate() error {
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be greater than 0")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be greater than 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if c.MaxSources <= 0 {
		return fmt.Errorf("MAX_SOURCES must be greater than 0")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be greater than 0")
	}
	switch c.LLMProvider {
	case ProviderLlamaCPP, ProviderOpenAI:
	default:
		return fmt.Errorf("LLM_PROVIDER must be llamacpp or openai, got %q", c.LLMProvider)
	}
	switch c.IndexBackend {
	case IndexBackendFlat:
	case IndexBackendQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("QDRANT_URL is required when INDEX_BACKEND=qdrant")
		}
	default:
		return fmt.Errorf("INDEX_BACKEND must be flat or qdrant, got %q", c.IndexBackend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", s)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

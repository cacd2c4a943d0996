// Package config loads podsearch settings from defaults, a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/raphaelgruber/podsearch/internal/parser"
	"github.com/raphaelgruber/podsearch/internal/scoring"
	"github.com/spf13/viper"
)

// Provider names.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// appName is the directory name under the XDG base directories.
const appName = "podsearch"

// Config holds all configuration values.
type Config struct {
	// Storage
	DBPath         string
	TranscriptsDir string

	// Embedding provider
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int

	// Generation provider
	LLMProvider    string
	LLMModel       string
	LLMTemperature float64

	// Provider endpoints and credentials
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string

	// Chunking, in characters
	ChunkSize    int
	ChunkOverlap int
	SectionSize  int

	// Scoring weights, must sum to 1
	WeightTitle  float64
	WeightIntro  float64
	WeightChunks float64
	WeightOutro  float64

	// Content-focused reweighting when no title matches well. 0 disables it.
	FallbackThreshold float64

	// Search and chat
	SearchTopK       int
	ChatTopK         int
	ChatHistoryTurns int
	// PersistSessions stores chat history in the database instead of memory
	PersistSessions bool

	// HTTP server
	ServerPort   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Fixed XDG paths (not configurable)
	ConfigDir string
	DataDir   string

	// ConfigFileUsed is the config file that was read, empty if none.
	ConfigFileUsed string
}

// Load reads configuration. When path is empty the XDG config directory and
// the working directory are searched for config.toml. Environment variables
// prefixed with PODSEARCH_ override file values.
func Load(path string) (Config, error) {
	configDir := filepath.Join(xdg.ConfigHome, appName)
	dataDir := filepath.Join(xdg.DataHome, appName)
	stateDir := filepath.Join(xdg.StateHome, appName)

	v := viper.New()
	setDefaults(v, dataDir, stateDir)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PODSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known provider variables are honored without the prefix
	_ = v.BindEnv("ollama_host", "PODSEARCH_OLLAMA_HOST", "OLLAMA_HOST")
	_ = v.BindEnv("openai_api_key", "PODSEARCH_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("anthropic_api_key", "PODSEARCH_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("aws_region", "PODSEARCH_AWS_REGION", "AWS_REGION")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		DBPath:         v.GetString("db_path"),
		TranscriptsDir: v.GetString("transcripts_dir"),

		EmbedProvider:  strings.ToLower(v.GetString("embed_provider")),
		EmbedModel:     v.GetString("embed_model"),
		EmbedDimension: v.GetInt("embed_dimension"),

		LLMProvider:    strings.ToLower(v.GetString("llm_provider")),
		LLMModel:       v.GetString("llm_model"),
		LLMTemperature: v.GetFloat64("llm_temperature"),

		OllamaHost:      v.GetString("ollama_host"),
		OpenAIAPIKey:    v.GetString("openai_api_key"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
		AWSRegion:       v.GetString("aws_region"),

		ChunkSize:    v.GetInt("chunk_size"),
		ChunkOverlap: v.GetInt("chunk_overlap"),
		SectionSize:  v.GetInt("section_size"),

		WeightTitle:  v.GetFloat64("weights.title"),
		WeightIntro:  v.GetFloat64("weights.intro"),
		WeightChunks: v.GetFloat64("weights.content"),
		WeightOutro:  v.GetFloat64("weights.outro"),

		FallbackThreshold: v.GetFloat64("fallback_threshold"),

		SearchTopK:       v.GetInt("search_top_k"),
		ChatTopK:         v.GetInt("chat_top_k"),
		ChatHistoryTurns: v.GetInt("chat_history_turns"),
		PersistSessions:  v.GetBool("persist_sessions"),

		ServerPort:   v.GetInt("server_port"),
		ReadTimeout:  v.GetDuration("read_timeout"),
		WriteTimeout: v.GetDuration("write_timeout"),

		LogFile:  v.GetString("log_file"),
		LogLevel: parseLogLevel(v.GetString("log_level")),

		ConfigDir:      configDir,
		DataDir:        dataDir,
		ConfigFileUsed: v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, dataDir, stateDir string) {
	v.SetDefault("db_path", filepath.Join(dataDir, "podsearch.db"))
	v.SetDefault("transcripts_dir", filepath.Join(dataDir, "transcripts"))

	v.SetDefault("embed_provider", ProviderOllama)
	v.SetDefault("embed_model", "nomic-embed-text")
	v.SetDefault("embed_dimension", 768)

	v.SetDefault("llm_provider", ProviderOllama)
	v.SetDefault("llm_model", "llama3")
	v.SetDefault("llm_temperature", 0.7)

	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("aws_region", "us-east-1")

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("section_size", 1000)

	v.SetDefault("weights.title", 0.60)
	v.SetDefault("weights.intro", 0.20)
	v.SetDefault("weights.content", 0.15)
	v.SetDefault("weights.outro", 0.05)
	v.SetDefault("fallback_threshold", 0.0)

	v.SetDefault("search_top_k", 5)
	v.SetDefault("chat_top_k", 4)
	v.SetDefault("chat_history_turns", 5)
	v.SetDefault("persist_sessions", true)

	v.SetDefault("server_port", 3000)
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("write_timeout", 5*time.Minute)

	v.SetDefault("log_file", filepath.Join(stateDir, "podsearch.log"))
	v.SetDefault("log_level", "INFO")
}

// Validate checks values that would otherwise fail deep inside indexing or search.
func (c Config) Validate() error {
	var errs []error
	if c.EmbedDimension <= 0 {
		errs = append(errs, fmt.Errorf("embed_dimension must be positive, got %d", c.EmbedDimension))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap must be in [0, chunk_size), got size=%d overlap=%d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.SectionSize <= 0 {
		errs = append(errs, fmt.Errorf("section_size must be positive, got %d", c.SectionSize))
	}
	sum := c.WeightTitle + c.WeightIntro + c.WeightChunks + c.WeightOutro
	if sum < 1-1e-9 || sum > 1+1e-9 {
		errs = append(errs, fmt.Errorf("weights must sum to 1, got %v", sum))
	}
	if c.SearchTopK <= 0 || c.ChatTopK <= 0 {
		errs = append(errs, fmt.Errorf("search_top_k and chat_top_k must be positive"))
	}
	if c.ChatHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("chat_history_turns must not be negative"))
	}
	return errors.Join(errs...)
}

// EnsureDirs creates the transcripts directory and the parent directories
// of the database and log file.
func (c Config) EnsureDirs() error {
	if c.TranscriptsDir != "" {
		if err := os.MkdirAll(c.TranscriptsDir, 0o755); err != nil {
			return fmt.Errorf("create transcripts directory: %w", err)
		}
	}
	for _, p := range []string{c.DBPath, c.LogFile} {
		if p == "" || p == ":memory:" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", p, err)
		}
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Weights returns the configured scoring weights.
func (c Config) Weights() scoring.Weights {
	return scoring.Weights{
		Title:  c.WeightTitle,
		Intro:  c.WeightIntro,
		Chunks: c.WeightChunks,
		Outro:  c.WeightOutro,
	}
}

// ChunkConfig returns the configured chunking parameters.
func (c Config) ChunkConfig() parser.ChunkConfig {
	return parser.ChunkConfig{
		Size:        c.ChunkSize,
		Overlap:     c.ChunkOverlap,
		SectionSize: c.SectionSize,
	}
}

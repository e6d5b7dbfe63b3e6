package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ChunkerConfig configures how documents are split into passages.
type ChunkerConfig struct {
	MaxChars int     `yaml:"max_chars" validate:"gte=100"`
	Overlap  float64 `yaml:"overlap" validate:"gte=0,lt=0.5"`
}

// OpenAIConfig holds connection details for an OpenAI-compatible API.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// OllamaConfig holds connection details for an Ollama server.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GeminiConfig holds connection details for the Gemini API.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type       string        `yaml:"type" validate:"oneof=hashing openai ollama gemini"`
	Dimensions int           `yaml:"dimensions" validate:"gte=16"`
	BatchSize  int           `yaml:"batch_size" validate:"gte=1"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	OpenAI     *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama     *OllamaConfig `yaml:"ollama,omitempty"`
	Gemini     *GeminiConfig `yaml:"gemini,omitempty"`
}

// GeneratorConfig selects and configures the answer and summary generator.
type GeneratorConfig struct {
	Type   string        `yaml:"type" validate:"oneof=extractive openai ollama gemini"`
	OpenAI *OpenAIConfig `yaml:"openai,omitempty"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
	Gemini *GeminiConfig `yaml:"gemini,omitempty"`
}

// RetrievalConfig tunes how much of the document grounds an answer.
type RetrievalConfig struct {
	TopK            int `yaml:"top_k" validate:"gte=1,lte=50"`
	MaxContextChars int `yaml:"max_context_chars" validate:"gte=200"`
	HistoryTurns    int `yaml:"history_turns" validate:"gte=0"`
}

// SummaryConfig bounds the upload-time analysis.
type SummaryConfig struct {
	MaxInputChars int     `yaml:"max_input_chars" validate:"gte=500"`
	HeadFraction  float64 `yaml:"head_fraction" validate:"gt=0,lt=1"`
	MaxTerms      int     `yaml:"max_terms" validate:"gte=3,lte=10"`
}

// SessionsConfig bounds the number and lifetime of live sessions.
type SessionsConfig struct {
	MaxSessions     int           `yaml:"max_sessions" validate:"gte=1"`
	TTL             time.Duration `yaml:"ttl" validate:"gte=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gte=0"`
}

// LimitsConfig bounds inputs and external calls.
type LimitsConfig struct {
	MaxDocumentBytes int           `yaml:"max_document_bytes" validate:"gte=1"`
	EmbedTimeout     time.Duration `yaml:"embed_timeout" validate:"gt=0"`
	GenerateTimeout  time.Duration `yaml:"generate_timeout" validate:"gt=0"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string `yaml:"addr" validate:"required"`
	MaxUploadBytes int    `yaml:"max_upload_bytes" validate:"gte=1"`
	CorsOrigins    string `yaml:"cors_origins"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	File   string `yaml:"file"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Generator GeneratorConfig `yaml:"generator"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Summary   SummaryConfig   `yaml:"summary"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Limits    LimitsConfig    `yaml:"limits"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := &AppConfig{}
			applyEnvOverrides(cfg)
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/docchat/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
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

// Validate checks value ranges and provider names.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:  EmbedderConfig{Type: "hashing"},
		Generator: GeneratorConfig{Type: "extractive"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

// applyEnvOverrides lets deployments switch providers without editing the file.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("DOCCHAT_EMBEDDER"); v != "" {
		cfg.Embedder.Type = v
	}
	if v := os.Getenv("DOCCHAT_GENERATOR"); v != "" {
		cfg.Generator.Type = v
	}
	if v := os.Getenv("DOCCHAT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.MaxChars == 0 {
		cfg.Chunker.MaxChars = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 0.1
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimensions == 0 {
		cfg.Embedder.Dimensions = 512
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.MaxRetries == 0 {
		cfg.Embedder.MaxRetries = 3
	}
	switch cfg.Embedder.Type {
	case "openai":
		cfg.Embedder.OpenAI = openAIDefaults(cfg.Embedder.OpenAI, "text-embedding-3-small")
	case "ollama":
		cfg.Embedder.Ollama = ollamaDefaults(cfg.Embedder.Ollama, "nomic-embed-text")
	case "gemini":
		cfg.Embedder.Gemini = geminiDefaults(cfg.Embedder.Gemini, "text-embedding-004")
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	switch cfg.Generator.Type {
	case "openai":
		cfg.Generator.OpenAI = openAIDefaults(cfg.Generator.OpenAI, "gpt-4o-mini")
	case "ollama":
		cfg.Generator.Ollama = ollamaDefaults(cfg.Generator.Ollama, "llama3.2")
	case "gemini":
		cfg.Generator.Gemini = geminiDefaults(cfg.Generator.Gemini, "gemini-1.5-flash")
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.MaxContextChars == 0 {
		cfg.Retrieval.MaxContextChars = 4000
	}
	if cfg.Retrieval.HistoryTurns == 0 {
		cfg.Retrieval.HistoryTurns = 6
	}
	if cfg.Summary.MaxInputChars == 0 {
		cfg.Summary.MaxInputChars = 12000
	}
	if cfg.Summary.HeadFraction == 0 {
		cfg.Summary.HeadFraction = 0.75
	}
	if cfg.Summary.MaxTerms == 0 {
		cfg.Summary.MaxTerms = 5
	}
	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = 256
	}
	if cfg.Sessions.CleanupInterval == 0 {
		cfg.Sessions.CleanupInterval = 10 * time.Minute
	}
	if cfg.Limits.MaxDocumentBytes == 0 {
		cfg.Limits.MaxDocumentBytes = 5 << 20
	}
	if cfg.Limits.EmbedTimeout == 0 {
		cfg.Limits.EmbedTimeout = 30 * time.Second
	}
	if cfg.Limits.GenerateTimeout == 0 {
		cfg.Limits.GenerateTimeout = 60 * time.Second
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Server.CorsOrigins == "" {
		cfg.Server.CorsOrigins = "*"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4318"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "docchat"
	}
}

func openAIDefaults(c *OpenAIConfig, model string) *OpenAIConfig {
	if c == nil {
		c = &OpenAIConfig{}
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	return c
}

func ollamaDefaults(c *OllamaConfig, model string) *OllamaConfig {
	if c == nil {
		c = &OllamaConfig{}
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = model
	}
	return c
}

func geminiDefaults(c *GeminiConfig, model string) *GeminiConfig {
	if c == nil {
		c = &GeminiConfig{}
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	return c
}

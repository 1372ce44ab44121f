package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sandwich/internal/domain"
)

// StoreConfig selects the corpus backend.
type StoreConfig struct {
	Type     string          `yaml:"type"` // memory | sqlite | postgres
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig reads the DSN from DSNEnv when DSN is empty.
type PostgresConfig struct {
	DSN    string `yaml:"dsn,omitempty"`
	DSNEnv string `yaml:"dsn_env"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// AllowNoKey accepts an unset key, e.g. for a local Ollama endpoint.
	AllowNoKey bool `yaml:"allow_no_key,omitempty"`
}

type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                 `yaml:"type"` // hashing | openai | gemini
	CacheSize int                    `yaml:"cache_size"`
	Hashing   *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI    *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Gemini    *GeminiEmbedderConfig  `yaml:"gemini,omitempty"`
}

type OpenAILLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	AllowNoKey  bool   `yaml:"allow_no_key,omitempty"`
}

type GeminiLLMConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// LLMConfig configures the model behind the extractor, writer and judge.
type LLMConfig struct {
	Provider    string           `yaml:"provider"` // gemini | openai
	Temperature float64          `yaml:"temperature"`
	MaxRetries  int              `yaml:"max_retries"`
	OpenAI      *OpenAILLMConfig `yaml:"openai,omitempty"`
	Gemini      *GeminiLLMConfig `yaml:"gemini,omitempty"`
}

type ValidatorConfig struct {
	AcceptThreshold float64        `yaml:"accept_threshold"`
	MarginalFloor   float64        `yaml:"marginal_floor"`
	Weights         domain.Weights `yaml:"weights"`
}

type CorpusConfig struct {
	EdgeThreshold float64 `yaml:"edge_threshold"`
	ReuseLimit    int     `yaml:"reuse_limit"`
}

type ForagerConfig struct {
	Patience               int `yaml:"patience"`
	MaxArtifacts           int `yaml:"max_artifacts"`
	MaxDurationSecs        int `yaml:"max_duration_secs"`
	CallTimeoutSecs        int `yaml:"call_timeout_secs"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
	MaxCandidates          int `yaml:"max_candidates"`
}

type PreprocessConfig struct {
	MinLength        int     `yaml:"min_length"`
	MaxLength        int     `yaml:"max_length"`
	QualityThreshold float64 `yaml:"quality_threshold"`
}

// SourceConfig describes one content source. Fields apply per type.
type SourceConfig struct {
	Type        string   `yaml:"type"` // files | wikipedia | web
	Name        string   `yaml:"name,omitempty"`
	Patterns    []string `yaml:"patterns,omitempty"`
	URLs        []string `yaml:"urls,omitempty"`
	Language    string   `yaml:"language,omitempty"`
	Limit       int      `yaml:"limit,omitempty"`
	TimeoutSecs int      `yaml:"timeout_secs,omitempty"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type EventsConfig struct {
	Type        string      `yaml:"type"` // memory | nats | none
	HistorySize int         `yaml:"history_size"`
	NATS        *NATSConfig `yaml:"nats,omitempty"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	Debug       bool   `yaml:"debug"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
	File   string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Store      StoreConfig      `yaml:"store"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	LLM        LLMConfig        `yaml:"llm"`
	Validator  ValidatorConfig  `yaml:"validator"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Forager    ForagerConfig    `yaml:"forager"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Sources    []SourceConfig   `yaml:"sources"`
	Events     EventsConfig     `yaml:"events"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./sandwich.yaml first, then ~/.config/sandwich/config.yaml.
// If neither exists, it writes defaults to ~/.config/sandwich/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "sandwich.yaml"
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

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	v := c.Validator
	if v.MarginalFloor < 0 || v.AcceptThreshold > 1 || v.MarginalFloor > v.AcceptThreshold {
		return fmt.Errorf("validator: need 0 <= marginal_floor (%.2f) <= accept_threshold (%.2f) <= 1",
			v.MarginalFloor, v.AcceptThreshold)
	}
	if c.Corpus.EdgeThreshold < 0 || c.Corpus.EdgeThreshold > 1 {
		return fmt.Errorf("corpus: edge_threshold %.2f out of [0,1]", c.Corpus.EdgeThreshold)
	}
	if c.Forager.Patience < 1 {
		return fmt.Errorf("forager: patience must be positive")
	}
	if c.Preprocess.MaxLength > 0 && c.Preprocess.MinLength > c.Preprocess.MaxLength {
		return fmt.Errorf("preprocess: min_length %d exceeds max_length %d",
			c.Preprocess.MinLength, c.Preprocess.MaxLength)
	}
	switch c.Store.Type {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("store: unknown type %q", c.Store.Type)
	}
	return nil
}

// PostgresDSN resolves the connection string, preferring the environment.
func (p *PostgresConfig) PostgresDSN() string {
	if p == nil {
		return ""
	}
	if p.DSNEnv != "" {
		if v := os.Getenv(p.DSNEnv); v != "" {
			return v
		}
	}
	return p.DSN
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sandwich", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Store:    StoreConfig{Type: "sqlite"},
		Embedder: EmbedderConfig{Type: "hashing"},
		LLM:      LLMConfig{Provider: "gemini"},
		Sources:  []SourceConfig{{Type: "wikipedia", Language: "en"}},
		Events:   EventsConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Store.Type == "" {
		cfg.Store.Type = "sqlite"
	}
	if cfg.Store.Type == "sqlite" {
		if cfg.Store.SQLite == nil {
			cfg.Store.SQLite = &SQLiteConfig{}
		}
		if cfg.Store.SQLite.Path == "" {
			cfg.Store.SQLite.Path = "sandwich.db"
		}
	}
	if cfg.Store.Type == "postgres" {
		if cfg.Store.Postgres == nil {
			cfg.Store.Postgres = &PostgresConfig{}
		}
		if cfg.Store.Postgres.DSNEnv == "" {
			cfg.Store.Postgres.DSNEnv = "SANDWICH_DATABASE_URL"
		}
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 4096
	}
	switch cfg.Embedder.Type {
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	switch cfg.LLM.Provider {
	case "gemini":
		if cfg.LLM.Gemini == nil {
			cfg.LLM.Gemini = &GeminiLLMConfig{}
		}
		if cfg.LLM.Gemini.APIKeyEnv == "" {
			cfg.LLM.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.LLM.Gemini.Model == "" {
			cfg.LLM.Gemini.Model = "gemini-2.0-flash"
		}
	case "openai":
		if cfg.LLM.OpenAI == nil {
			cfg.LLM.OpenAI = &OpenAILLMConfig{}
		}
		if cfg.LLM.OpenAI.BaseURL == "" {
			cfg.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.OpenAI.APIKeyEnv == "" {
			cfg.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.OpenAI.Model == "" {
			cfg.LLM.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.LLM.OpenAI.TimeoutSecs == 0 {
			cfg.LLM.OpenAI.TimeoutSecs = 60
		}
	}

	if cfg.Validator.AcceptThreshold == 0 && cfg.Validator.MarginalFloor == 0 {
		cfg.Validator.AcceptThreshold = 0.70
		cfg.Validator.MarginalFloor = 0.50
	}
	cfg.Validator.Weights = cfg.Validator.Weights.Normalize()

	if cfg.Corpus.EdgeThreshold == 0 {
		cfg.Corpus.EdgeThreshold = 0.70
	}
	if cfg.Corpus.ReuseLimit == 0 {
		cfg.Corpus.ReuseLimit = 3
	}

	if cfg.Forager.Patience == 0 {
		cfg.Forager.Patience = 5
	}
	if cfg.Forager.CallTimeoutSecs == 0 {
		cfg.Forager.CallTimeoutSecs = 60
	}
	if cfg.Forager.MaxConsecutiveFailures == 0 {
		cfg.Forager.MaxConsecutiveFailures = 3
	}
	if cfg.Forager.MaxCandidates == 0 {
		cfg.Forager.MaxCandidates = 3
	}

	if cfg.Preprocess.MinLength == 0 {
		cfg.Preprocess.MinLength = 200
	}
	if cfg.Preprocess.MaxLength == 0 {
		cfg.Preprocess.MaxLength = 10000
	}
	if cfg.Preprocess.QualityThreshold == 0 {
		cfg.Preprocess.QualityThreshold = 0.4
	}

	if cfg.Events.Type == "" {
		cfg.Events.Type = "memory"
	}
	if cfg.Events.HistorySize == 0 {
		cfg.Events.HistorySize = 1000
	}
	if cfg.Events.Type == "nats" {
		if cfg.Events.NATS == nil {
			cfg.Events.NATS = &NATSConfig{}
		}
		if cfg.Events.NATS.URL == "" {
			cfg.Events.NATS.URL = "nats://127.0.0.1:4222"
		}
		if cfg.Events.NATS.SubjectPrefix == "" {
			cfg.Events.NATS.SubjectPrefix = "sandwich"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

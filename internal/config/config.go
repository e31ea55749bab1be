package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/datastory/internal/dates"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "DATASTORY"

// Global configuration structure.
type Global struct {
	SessionsDir       string `mapstructure:"sessions_dir" yaml:"sessions_dir"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes" yaml:"session_ttl_minutes"`
	StoreBackend      string `mapstructure:"store_backend" yaml:"store_backend"`
	SQLitePath        string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	// Digest construction
	DateFields    []string `mapstructure:"date_fields" yaml:"date_fields,omitempty"`
	DateFormats   []string `mapstructure:"date_formats" yaml:"date_formats,omitempty"`
	Precision     int      `mapstructure:"precision" yaml:"precision"`
	Workers       int      `mapstructure:"workers" yaml:"workers"`
	ZeroFillNulls bool     `mapstructure:"zero_fill_nulls" yaml:"zero_fill_nulls"`

	// Text generation and embeddings
	GenerationProvider   string  `mapstructure:"generation_provider" yaml:"generation_provider"`
	GenerationModel      string  `mapstructure:"generation_model" yaml:"generation_model"`
	EmbeddingProvider    string  `mapstructure:"embedding_provider" yaml:"embedding_provider"`
	EmbeddingModel       string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	MaxTokens            int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature          float64 `mapstructure:"temperature" yaml:"temperature"`
	NarrativeConcurrency int     `mapstructure:"narrative_concurrency" yaml:"narrative_concurrency"`
	RetrievalTopK        int     `mapstructure:"retrieval_top_k" yaml:"retrieval_top_k"`
	RetrievalMinScore    float64 `mapstructure:"retrieval_min_score" yaml:"retrieval_min_score"`
	MaxContextTokens     int     `mapstructure:"max_context_tokens" yaml:"max_context_tokens"`

	OllamaHost    string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OpenAIBaseURL string `mapstructure:"openai_base_url" yaml:"openai_base_url"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Server and logging
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat  string `mapstructure:"log_format" yaml:"log_format"`
}

// DefaultDir returns ~/.datastory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".datastory"), nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.datastory/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sessions_dir", "")
	v.SetDefault("session_ttl_minutes", 20)
	v.SetDefault("store_backend", "file")
	v.SetDefault("sqlite_path", "")
	v.SetDefault("date_fields", dates.DefaultCandidates())
	v.SetDefault("date_formats", []string{})
	v.SetDefault("precision", 2)
	v.SetDefault("workers", 0)
	v.SetDefault("zero_fill_nulls", false)
	v.SetDefault("generation_provider", "ollama")
	v.SetDefault("generation_model", "llama3.1")
	v.SetDefault("embedding_provider", "ollama")
	v.SetDefault("embedding_model", "nomic-embed-text")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("narrative_concurrency", 4)
	v.SetDefault("retrieval_top_k", 6)
	v.SetDefault("retrieval_min_score", 0.0)
	v.SetDefault("max_context_tokens", 6000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("api_key", "")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// The upstream service read OPENAI_API_KEY; keep honouring it.
	_ = v.BindEnv("api_key", EnvPrefix+"_API_KEY", "OPENAI_API_KEY")
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.SessionsDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		c.SessionsDir = filepath.Join(dir, "sessions")
	}
	if c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.SessionsDir, "digests.db")
	}
	return &c, nil
}

// DateResolver returns the resolver described by date_fields and
// date_formats. Empty lists fall back to the built-in ones.
func (c *Global) DateResolver() dates.Resolver {
	r := dates.Default()
	if len(c.DateFields) > 0 {
		r.Candidates = append([]string(nil), c.DateFields...)
	}
	if len(c.DateFormats) > 0 {
		r.Formats = append([]string(nil), c.DateFormats...)
	}
	return r
}

// SessionTTL is the lifetime of a session after its last update.
func (c *Global) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Set assigns a single key from its string form, validating enumerations
// and numbers.
func (c *Global) Set(key, val string) error {
	var err error
	switch key {
	case "sessions_dir":
		c.SessionsDir = val
	case "session_ttl_minutes":
		c.SessionTTLMinutes, err = nonNegInt(key, val)
	case "store_backend":
		switch v := strings.ToLower(val); v {
		case "file", "sqlite":
			c.StoreBackend = v
		default:
			return fmt.Errorf("invalid store_backend: %s (use file or sqlite)", val)
		}
	case "sqlite_path":
		c.SQLitePath = val
	case "date_fields":
		c.DateFields = splitList(val)
	case "date_formats":
		c.DateFormats = splitList(val)
	case "precision":
		c.Precision, err = nonNegInt(key, val)
	case "workers":
		c.Workers, err = nonNegInt(key, val)
	case "zero_fill_nulls":
		c.ZeroFillNulls, err = strconv.ParseBool(val)
	case "generation_provider":
		c.GenerationProvider, err = provider(key, val)
	case "generation_model":
		c.GenerationModel = val
	case "embedding_provider":
		c.EmbeddingProvider, err = provider(key, val)
	case "embedding_model":
		c.EmbeddingModel = val
	case "max_tokens":
		c.MaxTokens, err = nonNegInt(key, val)
	case "temperature":
		c.Temperature, err = strconv.ParseFloat(val, 64)
	case "narrative_concurrency":
		c.NarrativeConcurrency, err = nonNegInt(key, val)
	case "retrieval_top_k":
		c.RetrievalTopK, err = nonNegInt(key, val)
	case "retrieval_min_score":
		c.RetrievalMinScore, err = strconv.ParseFloat(val, 64)
	case "max_context_tokens":
		c.MaxContextTokens, err = nonNegInt(key, val)
	case "ollama_host":
		c.OllamaHost = val
	case "openai_base_url":
		c.OpenAIBaseURL = val
	case "api_key":
		c.APIKey = val
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = nonNegInt(key, val)
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = nonNegInt(key, val)
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = nonNegInt(key, val)
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = nonNegInt(key, val)
	case "listen_addr":
		c.ListenAddr = val
	case "log_level":
		c.LogLevel = val
	case "log_format":
		c.LogFormat = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func nonNegInt(key, val string) (int, error) {
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return i, nil
}

func provider(key, val string) (string, error) {
	switch strings.ToLower(val) {
	case "ollama", "local":
		return "ollama", nil
	case "openai":
		return "openai", nil
	}
	return "", fmt.Errorf("%s: use ollama or openai, got %q", key, val)
}

func splitList(val string) []string {
	var out []string
	for _, p := range strings.Split(val, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

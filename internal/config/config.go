// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docchat/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive data (the Postgres password) is never logged; String() and
// MarshalJSON mask it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for validation failures, checkable with errors.Is().
var (
	ErrConfigNil            = errors.New("configuration is nil")
	ErrMissingAPIKey        = errors.New("missing API key")
	ErrInvalidModelName     = errors.New("invalid model name")
	ErrInvalidTemperature   = errors.New("invalid temperature")
	ErrInvalidMaxTokens     = errors.New("invalid max tokens")
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")
	ErrInvalidChunking      = errors.New("invalid chunking parameters")
	ErrInvalidTopK          = errors.New("invalid top k")
	ErrInvalidHistory       = errors.New("invalid history configuration")
	ErrInvalidMetric        = errors.New("invalid index metric")
	ErrInvalidPostgres      = errors.New("invalid PostgreSQL configuration")
)

// Provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SENSITIVE: PostgresPassword is masked in MarshalJSON; update it when
// adding new secret fields.
type Config struct {
	// Generation model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding configuration
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedRPS      float64 `mapstructure:"embed_rps" json:"embed_rps"` // 0 = unlimited

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval configuration
	TopK        int32  `mapstructure:"top_k" json:"top_k"`
	IndexMetric string `mapstructure:"index_metric" json:"index_metric"` // cosine, l2, ip

	// Document source directories
	BlogDir string `mapstructure:"blog_dir" json:"blog_dir"`
	HelpDir string `mapstructure:"help_dir" json:"help_dir"`
	PDFDir  string `mapstructure:"pdf_dir" json:"pdf_dir"`
	JSONDir string `mapstructure:"json_dir" json:"json_dir"`

	// Conversation history configuration
	MaxHistoryMessages int `mapstructure:"max_history_messages" json:"max_history_messages"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".docchat")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 1024)

	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("embed_rps", 0)

	v.SetDefault("chunk_size", 1000)
	v.SetDefault("chunk_overlap", 200)

	v.SetDefault("top_k", 5)
	v.SetDefault("index_metric", "cosine")

	v.SetDefault("blog_dir", "data/blog")
	v.SetDefault("help_dir", "data/help")
	v.SetDefault("pdf_dir", "data/pdf")
	v.SetDefault("json_dir", "data/json")

	v.SetDefault("max_history_messages", 20)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "docchat")
	v.SetDefault("postgres_password", "docchat_dev_password")
	v.SetDefault("postgres_db_name", "docchat")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds explicit environment overrides.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate
// checks its presence.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "DOCCHAT_PROVIDER")
	mustBind("model_name", "DOCCHAT_MODEL_NAME")
	mustBind("temperature", "DOCCHAT_TEMPERATURE")
	mustBind("max_tokens", "DOCCHAT_MAX_TOKENS")
	mustBind("embedder_model", "DOCCHAT_EMBEDDER_MODEL")
	mustBind("embed_rps", "DOCCHAT_EMBED_RPS")
	mustBind("chunk_size", "DOCCHAT_CHUNK_SIZE")
	mustBind("chunk_overlap", "DOCCHAT_CHUNK_OVERLAP")
	mustBind("top_k", "DOCCHAT_TOP_K")
	mustBind("index_metric", "DOCCHAT_INDEX_METRIC")
	mustBind("blog_dir", "DOCCHAT_BLOG_DIR")
	mustBind("help_dir", "DOCCHAT_HELP_DIR")
	mustBind("pdf_dir", "DOCCHAT_PDF_DIR")
	mustBind("json_dir", "DOCCHAT_JSON_DIR")
	mustBind("max_history_messages", "DOCCHAT_MAX_HISTORY_MESSAGES")
	mustBind("postgres_password", "DOCCHAT_POSTGRES_PASSWORD")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility. This guards against accidental logging, not log compromise.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of
// secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// FullModelName returns the provider-qualified model name for Genkit,
// e.g. "googleai/gemini-2.5-flash". A ModelName already containing "/"
// is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// FullEmbedderName returns the provider-qualified embedder name.
func (c *Config) FullEmbedderName() string {
	if strings.Contains(c.EmbedderModel, "/") {
		return c.EmbedderModel
	}
	return ProviderGoogleAI + "/" + c.EmbedderModel
}

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
	StorageSQLite    = "sqlite"
)

const (
	EstimatorRatio    = "ratio"
	EstimatorTiktoken = "tiktoken"
)

type Config struct {
	Mode Mode `env:"FARUM_MODE" envDefault:"local"`

	Port string `env:"FARUM_PORT" envDefault:"8080"`

	GCPProjectID string `env:"FARUM_GCP_PROJECT"`
	GCPLocation  string `env:"FARUM_GCP_LOCATION" envDefault:"us-central1"`
	ModelName    string `env:"FARUM_MODEL_NAME" envDefault:"gemini-2.5-flash-lite"`
	GenAIAPIKey  string `env:"FARUM_GENAI_API_KEY"`

	StorageBackend string `env:"FARUM_STORAGE_BACKEND" envDefault:"memory"` // "memory", "firestore" or "sqlite"
	SQLitePath     string `env:"FARUM_SQLITE_PATH" envDefault:"farum.db"`
	UseMockLLM     *bool  `env:"FARUM_USE_MOCK_LLM"` // nil = mock in local mode

	Completion CompletionConfig
	RateLimit  RateLimitConfig
	Auth       AuthConfig

	MaxPromptLength    int           `env:"FARUM_MAX_PROMPT_LENGTH" envDefault:"4000"`
	SessionIdleTimeout time.Duration `env:"FARUM_SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	OTelEndpoint string `env:"FARUM_OTEL_ENDPOINT"`
}

type CompletionConfig struct {
	Timeout            time.Duration `env:"FARUM_COMPLETION_TIMEOUT" envDefault:"30s"`
	MaxResponseTokens  int           `env:"FARUM_MAX_RESPONSE_TOKENS" envDefault:"4096"`
	DefaultMaxTokens   int           `env:"FARUM_DEFAULT_MAX_TOKENS" envDefault:"1024"`
	DefaultTemperature float32       `env:"FARUM_DEFAULT_TEMPERATURE" envDefault:"0.7"`
	TokenEstimator     string        `env:"FARUM_TOKEN_ESTIMATOR" envDefault:"ratio"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `env:"FARUM_RATE_REQUESTS_PER_MINUTE" envDefault:"10"`
	TokensPerMinute   int `env:"FARUM_RATE_TOKENS_PER_MINUTE" envDefault:"20000"`
	RequestsPerDay    int `env:"FARUM_RATE_REQUESTS_PER_DAY" envDefault:"200"`
	TokensPerDay      int `env:"FARUM_RATE_TOKENS_PER_DAY" envDefault:"200000"`
}

type AuthConfig struct {
	JWTSecret   string `env:"FARUM_JWT_SECRET"`
	JWTIssuer   string `env:"FARUM_JWT_ISSUER" envDefault:"farum"`
	JWTAudience string `env:"FARUM_JWT_AUDIENCE" envDefault:"farum-gateway"`
}

// MockLLM reports whether the mock provider should be used.
func (c *Config) MockLLM() bool {
	if c.UseMockLLM != nil {
		return *c.UseMockLLM
	}
	return c.Mode == ModeLocal
}

// Load reads all env vars and builds the config
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Mode != ModeGCP {
		cfg.Mode = ModeLocal
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		errs = append(errs, errors.New("FARUM_GCP_PROJECT must be set in gcp mode"))
	}
	switch c.StorageBackend {
	case StorageMemory, StorageSQLite:
	case StorageFirestore:
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("FARUM_GCP_PROJECT is required for firestore storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FARUM_STORAGE_BACKEND %q", c.StorageBackend))
	}
	switch c.Completion.TokenEstimator {
	case EstimatorRatio, EstimatorTiktoken:
	default:
		errs = append(errs, fmt.Errorf("unknown FARUM_TOKEN_ESTIMATOR %q", c.Completion.TokenEstimator))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("FARUM_JWT_SECRET is required"))
	}
	if c.MaxPromptLength <= 0 {
		errs = append(errs, errors.New("FARUM_MAX_PROMPT_LENGTH must be positive"))
	}
	if c.Completion.Timeout <= 0 {
		errs = append(errs, errors.New("FARUM_COMPLETION_TIMEOUT must be positive"))
	}
	if c.Completion.MaxResponseTokens <= 0 {
		errs = append(errs, errors.New("FARUM_MAX_RESPONSE_TOKENS must be positive"))
	}
	rl := c.RateLimit
	if rl.RequestsPerMinute <= 0 || rl.TokensPerMinute <= 0 || rl.RequestsPerDay <= 0 || rl.TokensPerDay <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	return errors.Join(errs...)
}

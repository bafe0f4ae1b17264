package config

import "time"

// Config represents the main application configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Model     ModelConfig     `yaml:"model"`
	Loop      LoopConfig      `yaml:"loop"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Insights  InsightsConfig  `yaml:"insights"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds language-model provider settings.
type APIConfig struct {
	// Provider: gemini or ollama (default: gemini)
	Provider string `yaml:"provider"`

	GeminiKey string `yaml:"gemini_key,omitempty"`
	OllamaKey string `yaml:"ollama_key,omitempty"` // Optional, for remote Ollama servers with auth

	// Ollama server URL (default: http://localhost:11434)
	OllamaBaseURL string `yaml:"ollama_base_url,omitempty"`

	// Retry configuration for API calls
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig holds retry settings for API calls.
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`  // Maximum number of retry attempts (default: 3)
	RetryDelay  time.Duration `yaml:"retry_delay"`  // Initial delay between retries (default: 1s)
	HTTPTimeout time.Duration `yaml:"http_timeout"` // HTTP request timeout (default: 120s)
}

// ModelConfig holds model-related settings.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// LoopConfig bounds the proposal/validation loop.
type LoopConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`    // At most 5
	ExtractorTimeout time.Duration `yaml:"extractor_timeout"` // Per extractor call
	BreakerThreshold int           `yaml:"breaker_threshold"` // Consecutive failures before the breaker opens
	BreakerReset     time.Duration `yaml:"breaker_reset"`     // How long the breaker stays open
}

// StoreConfig selects the graph persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, file, sqlite
	Path    string `yaml:"path"`    // Directory (file) or database file (sqlite)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool  `yaml:"enabled"`             // Enable/disable rate limiting
	RequestsPerMinute int   `yaml:"requests_per_minute"` // Max model requests per minute
	TokensPerMinute   int64 `yaml:"tokens_per_minute"`   // Max tokens per minute
	BurstSize         int   `yaml:"burst_size"`          // Burst size for rate limiting

	// Per-user HTTP limits
	UserRequestsPerMinute int `yaml:"user_requests_per_minute"`
	UserBurst             int `yaml:"user_burst"`
}

// InsightsConfig holds behavioral tracker settings.
type InsightsConfig struct {
	QuestionHorizon time.Duration `yaml:"question_horizon"` // Suppress repeated questions within this window
	MaxActivity     int           `yaml:"max_activity"`     // Activity events kept per user
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // Logging level: debug, info, warn, error
	Dir   string `yaml:"dir"`   // If set, logs are also written to <dir>/taskflow.log
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:      "gemini",
			OllamaBaseURL: DefaultOllamaBaseURL,
			Retry: RetryConfig{
				MaxRetries:  DefaultMaxRetries,
				RetryDelay:  DefaultRetryDelay,
				HTTPTimeout: DefaultHTTPTimeout,
			},
		},
		Model: ModelConfig{
			Name:            DefaultModel,
			Temperature:     0.2,
			MaxOutputTokens: DefaultMaxTokens,
		},
		Loop: LoopConfig{
			MaxIterations:    MaxLoopIterations,
			ExtractorTimeout: DefaultExtractorTimeout,
			BreakerThreshold: DefaultBreakerThreshold,
			BreakerReset:     DefaultBreakerReset,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    3 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: DefaultGracefulShutdown,
		},
		RateLimit: RateLimitConfig{
			Enabled:               true,
			RequestsPerMinute:     DefaultRequestsPerMinute,
			TokensPerMinute:       DefaultTokensPerMinute,
			BurstSize:             10,
			UserRequestsPerMinute: DefaultUserRequestsPerMinute,
			UserBurst:             5,
		},
		Insights: InsightsConfig{
			QuestionHorizon: DefaultQuestionHorizon,
			MaxActivity:     DefaultMaxActivity,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

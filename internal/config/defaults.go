package config

import "time"

// Default configuration values.
const (
	// MaxLoopIterations is the hard ceiling on proposal round-trips per utterance.
	MaxLoopIterations = 5

	// Model settings
	DefaultModel         = "gemini-3-flash-preview"
	DefaultMaxTokens     = 2048
	DefaultOllamaBaseURL = "http://localhost:11434"

	// Retry settings
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultHTTPTimeout = 120 * time.Second

	// Loop settings
	DefaultExtractorTimeout = 30 * time.Second
	DefaultBreakerThreshold = 3
	DefaultBreakerReset     = 30 * time.Second

	// Server settings
	DefaultServerAddr       = "127.0.0.1:8080"
	DefaultGracefulShutdown = 10 * time.Second

	// Rate limiting
	DefaultRequestsPerMinute     = 60
	DefaultTokensPerMinute       = 100000
	DefaultUserRequestsPerMinute = 30

	// Insights
	DefaultQuestionHorizon = 24 * time.Hour
	DefaultMaxActivity     = 1000
)

package client

import (
	"context"

	"google.golang.org/genai"
)

// Provider names accepted by NewClient.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Client defines the interface for model interactions that use function calling.
type Client interface {
	// SendMessageWithHistory sends a message with conversation history.
	SendMessageWithHistory(ctx context.Context, history []*genai.Content, message string) (*StreamingResponse, error)

	// SetTools sets the tools available for the model to use.
	SetTools(tools []*genai.Tool)

	// SetSystemInstruction sets the system-level instruction for the model.
	// This is passed via the API's native system instruction parameter
	// rather than being injected as a user message in the conversation history.
	SetSystemInstruction(instruction string)

	// SetRateLimiter sets the rate limiter for API calls.
	SetRateLimiter(limiter RateLimiter)

	// Healthcheck reports whether the backing service is reachable.
	Healthcheck(ctx context.Context) error

	// GetModel returns the model name.
	GetModel() string

	// Close closes the client connection.
	Close() error
}

// RateLimiter interface for rate limiting API calls (optional).
type RateLimiter interface {
	AcquireWithContext(ctx context.Context, tokens int64) error
	ReturnTokens(requests int, tokens int64)
}

// StreamingResponse represents a streaming response from the model.
type StreamingResponse struct {
	// Chunks is a channel that receives response chunks.
	Chunks <-chan ResponseChunk

	// Done is closed when the response is complete.
	Done <-chan struct{}
}

// ResponseChunk represents a single chunk in a streaming response.
type ResponseChunk struct {
	Text          string
	FunctionCalls []*genai.FunctionCall
	Error         error
	Done          bool
	FinishReason  genai.FinishReason

	// Usage metadata (if available).
	InputTokens  int
	OutputTokens int
}

// Response represents a complete response from the model.
type Response struct {
	// Text is the accumulated text response.
	Text string

	// FunctionCalls contains all function calls from the response.
	FunctionCalls []*genai.FunctionCall

	// FinishReason indicates why the response finished.
	FinishReason genai.FinishReason

	InputTokens  int
	OutputTokens int
}

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T {
	return &v
}

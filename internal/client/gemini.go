package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskflow/internal/config"
	"taskflow/internal/logging"
	"taskflow/internal/ratelimit"
	"taskflow/internal/security"

	"google.golang.org/genai"
)

// streamIdleTimeout fails a stream that produces nothing for this long.
const streamIdleTimeout = 30 * time.Second

// GeminiClient wraps the Google Gemini API.
type GeminiClient struct {
	client            *genai.Client
	model             string
	config            *genai.GenerateContentConfig
	retry             RetryConfig
	mu                sync.RWMutex
	tools             []*genai.Tool
	rateLimiter       RateLimiter
	systemInstruction string
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, cfg *config.Config) (*GeminiClient, error) {
	loadedKey := security.GetGeminiKey(cfg.API.GeminiKey)
	if !loadedKey.IsSet() {
		return nil, fmt.Errorf("Gemini API key required: set GEMINI_API_KEY or api.gemini_key")
	}

	// Log key source for debugging (without exposing the key)
	logging.Debug("loaded Gemini API key",
		"source", loadedKey.Source,
		"model", cfg.Model.Name)

	if err := security.ValidateKeyFormat(loadedKey.Value); err != nil {
		return nil, fmt.Errorf("invalid Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  loadedKey.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model.Name,
		config: &genai.GenerateContentConfig{
			Temperature:     Ptr(cfg.Model.Temperature),
			MaxOutputTokens: cfg.Model.MaxOutputTokens,
		},
		retry: RetryConfig{
			MaxRetries: cfg.API.Retry.MaxRetries,
			RetryDelay: cfg.API.Retry.RetryDelay,
		},
	}, nil
}

// SetSystemInstruction sets the system-level instruction for the model.
func (c *GeminiClient) SetSystemInstruction(instruction string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemInstruction = instruction
}

// SetTools sets the tools available for function calling.
func (c *GeminiClient) SetTools(tools []*genai.Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = tools
}

// SetRateLimiter sets the rate limiter for API calls.
func (c *GeminiClient) SetRateLimiter(limiter RateLimiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimiter = limiter
}

// SendMessageWithHistory sends a message with conversation history.
func (c *GeminiClient) SendMessageWithHistory(ctx context.Context, history []*genai.Content, message string) (*StreamingResponse, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, content := range history {
		if content != nil && len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}
	contents = appendUserText(contents, message)

	return withRetry(ctx, c.retry, ProviderGemini, func() (*StreamingResponse, error) {
		return c.doGenerateContentStream(ctx, contents, ratelimit.EstimateTokens(message))
	})
}

// appendUserText adds message as a user turn. When the history already ends
// with a user turn (function responses), the text joins that turn instead so
// roles keep alternating.
func appendUserText(contents []*genai.Content, message string) []*genai.Content {
	if n := len(contents); n > 0 && contents[n-1].Role == genai.RoleUser {
		last := contents[n-1]
		parts := make([]*genai.Part, 0, len(last.Parts)+1)
		parts = append(parts, last.Parts...)
		parts = append(parts, genai.NewPartFromText(message))
		out := append([]*genai.Content(nil), contents[:n-1]...)
		return append(out, &genai.Content{Role: genai.RoleUser, Parts: parts})
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}

// generateConfig snapshots the request configuration.
func (c *GeminiClient) generateConfig() (genai.GenerateContentConfig, RateLimiter) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg := *c.config
	if c.systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.systemInstruction, genai.RoleUser)
	}
	if len(c.tools) > 0 {
		cfg.Tools = c.tools
	}
	return cfg, c.rateLimiter
}

// doGenerateContentStream performs a single streaming request attempt.
func (c *GeminiClient) doGenerateContentStream(ctx context.Context, contents []*genai.Content, estimatedTokens int64) (*StreamingResponse, error) {
	cfg, limiter := c.generateConfig()
	if limiter != nil {
		if err := limiter.AcquireWithContext(ctx, estimatedTokens); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	iter := c.client.Models.GenerateContentStream(ctx, c.model, contents, &cfg)

	chunks := make(chan ResponseChunk, 10)

	go func() {
		defer close(chunks)

		type iterResult struct {
			resp *genai.GenerateContentResponse
			err  error
		}
		iterCh := make(chan iterResult)
		iterCtx, stop := context.WithCancel(ctx)
		defer stop()

		go func() {
			defer close(iterCh)
			for resp, err := range iter {
				select {
				case iterCh <- iterResult{resp, err}:
				case <-iterCtx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()

		idle := time.NewTimer(streamIdleTimeout)
		defer idle.Stop()

		failed := false
		send := func(chunk ResponseChunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

	stream:
		for {
			select {
			case <-ctx.Done():
				failed = true
				select {
				case chunks <- ResponseChunk{Error: ctx.Err(), Done: true}:
				default:
				}
				break stream

			case <-idle.C:
				failed = true
				logging.Warn("stream idle timeout exceeded", "timeout", streamIdleTimeout)
				send(ResponseChunk{
					Error: fmt.Errorf("stream idle timeout: no data received for %v", streamIdleTimeout),
					Done:  true,
				})
				break stream

			case result, ok := <-iterCh:
				if !ok || (result.resp == nil && result.err == nil) {
					break stream
				}
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(streamIdleTimeout)

				if result.err != nil {
					failed = true
					send(ResponseChunk{Error: result.err, Done: true})
					break stream
				}

				chunk := processResponse(result.resp)
				if !send(chunk) {
					failed = true
					break stream
				}
				if chunk.Done {
					break stream
				}
			}
		}

		if failed && limiter != nil {
			limiter.ReturnTokens(1, estimatedTokens)
		}
	}()

	return peekStream(ctx, chunks)
}

// processResponse converts a Gemini response to a ResponseChunk.
func processResponse(resp *genai.GenerateContentResponse) ResponseChunk {
	chunk := ResponseChunk{}

	if resp.UsageMetadata != nil {
		chunk.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		chunk.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 {
		chunk.Done = true
		return chunk
	}

	candidate := resp.Candidates[0]
	chunk.FinishReason = candidate.FinishReason

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.Text != "" {
				chunk.Text += part.Text
			}
			if part.FunctionCall != nil {
				chunk.FunctionCalls = append(chunk.FunctionCalls, part.FunctionCall)
			}
		}
	}

	if candidate.FinishReason != "" {
		chunk.Done = true
	}
	return chunk
}

// Healthcheck verifies the configured model is reachable with the key.
func (c *GeminiClient) Healthcheck(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, c.model, nil); err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	return nil
}

// GetModel returns the model name.
func (c *GeminiClient) GetModel() string {
	return c.model
}

// Close closes the client connection.
func (c *GeminiClient) Close() error {
	// The genai client doesn't have an explicit close method
	return nil
}

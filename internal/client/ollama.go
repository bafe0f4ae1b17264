package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"taskflow/internal/logging"
	"taskflow/internal/ratelimit"

	"github.com/ollama/ollama/api"
	"google.golang.org/genai"
)

// OllamaConfig holds configuration for Ollama API client.
type OllamaConfig struct {
	BaseURL     string        // Default: "http://localhost:11434"
	APIKey      string        // Optional, for remote Ollama servers with auth
	Model       string        // e.g., "llama3.2", "qwen2.5"
	Temperature float32       // Temperature for generation
	MaxTokens   int32         // Max output tokens
	HTTPTimeout time.Duration // HTTP request timeout (default: 120s)
	Retry       RetryConfig
}

// OllamaClient implements Client for a local or remote Ollama server using
// native tool calls.
type OllamaClient struct {
	client            *api.Client
	config            OllamaConfig
	mu                sync.RWMutex
	tools             []*genai.Tool
	rateLimiter       RateLimiter
	systemInstruction string
}

// authTransport adds Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(reqClone)
}

// NewOllamaClient creates a new Ollama API client.
func NewOllamaClient(config OllamaConfig) (*OllamaClient, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host", "host", host)
		}
	}

	httpClient := &http.Client{Timeout: config.HTTPTimeout}
	if config.APIKey != "" {
		httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: config.APIKey}
	}

	return &OllamaClient{
		client: api.NewClient(baseURL, httpClient),
		config: config,
	}, nil
}

// SendMessageWithHistory sends a message with conversation history.
func (c *OllamaClient) SendMessageWithHistory(ctx context.Context, history []*genai.Content, message string) (*StreamingResponse, error) {
	c.mu.RLock()
	req := &api.ChatRequest{
		Model:    c.config.Model,
		Messages: c.convertHistoryToMessages(history, message),
		Stream:   Ptr(true),
		Options: map[string]any{
			"num_predict": c.config.MaxTokens,
		},
	}
	if c.config.Temperature > 0 {
		req.Options["temperature"] = c.config.Temperature
	}
	if len(c.tools) > 0 {
		req.Tools = convertToolsToOllama(c.tools)
	}
	limiter := c.rateLimiter
	c.mu.RUnlock()

	estimated := ratelimit.EstimateTokens(message)
	if limiter != nil {
		if err := limiter.AcquireWithContext(ctx, estimated); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	resp, err := withRetry(ctx, c.config.Retry, ProviderOllama, func() (*StreamingResponse, error) {
		return c.doStreamChat(ctx, req)
	})
	if err != nil {
		if limiter != nil {
			limiter.ReturnTokens(1, estimated)
		}
		return nil, c.wrapOllamaError(err)
	}
	return resp, nil
}

// doStreamChat performs a single streaming chat request.
func (c *OllamaClient) doStreamChat(ctx context.Context, req *api.ChatRequest) (*StreamingResponse, error) {
	chunks := make(chan ResponseChunk, 10)

	go func() {
		defer close(chunks)

		index := 0
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			chunk := ResponseChunk{Text: resp.Message.Content}

			for _, tc := range resp.Message.ToolCalls {
				chunk.FunctionCalls = append(chunk.FunctionCalls, convertOllamaToolCall(tc, index))
				index++
			}

			if resp.Done {
				chunk.Done = true
				chunk.FinishReason = genai.FinishReasonStop
				chunk.InputTokens = resp.PromptEvalCount
				chunk.OutputTokens = resp.EvalCount
			}

			select {
			case chunks <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case chunks <- ResponseChunk{Error: err, Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return peekStream(ctx, chunks)
}

// SetSystemInstruction sets the system-level instruction for the model.
func (c *OllamaClient) SetSystemInstruction(instruction string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemInstruction = instruction
}

// SetTools sets the tools available for function calling.
func (c *OllamaClient) SetTools(tools []*genai.Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = tools
}

// SetRateLimiter sets the rate limiter for API calls.
func (c *OllamaClient) SetRateLimiter(limiter RateLimiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateLimiter = limiter
}

// GetModel returns the model name.
func (c *OllamaClient) GetModel() string {
	return c.config.Model
}

// Close closes the client connection.
func (c *OllamaClient) Close() error {
	return nil
}

// Healthcheck verifies that the Ollama server is accessible.
func (c *OllamaClient) Healthcheck(ctx context.Context) error {
	// The SDK has no ping; listing local models is the cheapest round trip.
	if _, err := c.client.List(ctx); err != nil {
		return c.wrapOllamaError(err)
	}
	return nil
}

// convertHistoryToMessages converts genai history to Ollama messages.
// Callers must hold c.mu.
func (c *OllamaClient) convertHistoryToMessages(history []*genai.Content, newMessage string) []api.Message {
	messages := make([]api.Message, 0, len(history)+2)

	if c.systemInstruction != "" {
		messages = append(messages, api.Message{Role: "system", Content: c.systemInstruction})
	}

	for _, content := range history {
		if content == nil {
			continue
		}
		msg := api.Message{Role: string(content.Role)}
		if content.Role == genai.RoleModel {
			msg.Role = "assistant"
		}
		var (
			text    []string
			results []api.Message
		)
		for _, part := range content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				text = append(text, part.Text)
			}
			if part.FunctionCall != nil {
				msg.ToolCalls = append(msg.ToolCalls, convertGenaiToolCall(part.FunctionCall))
			}
			if part.FunctionResponse != nil {
				results = append(results, convertFunctionResponse(part.FunctionResponse))
			}
		}
		msg.Content = strings.Join(text, "\n")
		if msg.Content != "" || len(msg.ToolCalls) > 0 || len(results) == 0 {
			messages = append(messages, msg)
		}
		messages = append(messages, results...)
	}

	if newMessage != "" {
		messages = append(messages, api.Message{Role: "user", Content: newMessage})
	}
	return messages
}

// convertToolsToOllama converts genai tool declarations to Ollama tools.
func convertToolsToOllama(tools []*genai.Tool) []api.Tool {
	out := make([]api.Tool, 0)

	for _, tool := range tools {
		for _, decl := range tool.FunctionDeclarations {
			params := api.ToolFunctionParameters{
				Type:       "object",
				Properties: api.NewToolPropertiesMap(),
			}

			if decl.Parameters != nil {
				if len(decl.Parameters.Required) > 0 {
					params.Required = decl.Parameters.Required
				}
				for name, schema := range decl.Parameters.Properties {
					prop := api.ToolProperty{Description: schema.Description}
					if schema.Type != "" {
						prop.Type = api.PropertyType{strings.ToLower(string(schema.Type))}
					}
					if len(schema.Enum) > 0 {
						enumVals := make([]any, len(schema.Enum))
						for i, v := range schema.Enum {
							enumVals[i] = v
						}
						prop.Enum = enumVals
					}
					params.Properties.Set(name, prop)
				}
			}

			out = append(out, api.Tool{
				Type: "function",
				Function: api.ToolFunction{
					Name:        decl.Name,
					Description: decl.Description,
					Parameters:  params,
				},
			})
		}
	}
	return out
}

// convertOllamaToolCall converts an Ollama tool call to a genai.FunctionCall.
func convertOllamaToolCall(tc api.ToolCall, index int) *genai.FunctionCall {
	id := tc.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", index)
	}
	return &genai.FunctionCall{
		ID:   id,
		Name: tc.Function.Name,
		Args: tc.Function.Arguments.ToMap(),
	}
}

// convertGenaiToolCall converts a genai.FunctionCall to an Ollama tool call.
func convertGenaiToolCall(fc *genai.FunctionCall) api.ToolCall {
	args := api.NewToolCallFunctionArguments()
	for k, v := range fc.Args {
		args.Set(k, v)
	}
	return api.ToolCall{
		ID: fc.ID,
		Function: api.ToolCallFunction{
			Name:      fc.Name,
			Arguments: args,
		},
	}
}

// convertFunctionResponse turns a tool result into an Ollama tool message.
func convertFunctionResponse(fr *genai.FunctionResponse) api.Message {
	var content string
	if errStr, ok := fr.Response["error"].(string); ok && errStr != "" {
		content = "Error: " + errStr
	} else if out, ok := fr.Response["output"].(string); ok {
		content = out
	} else if data, err := json.Marshal(fr.Response); err == nil {
		content = string(data)
	}
	if content == "" {
		content = "Operation completed"
	}
	return api.Message{
		Role:       "tool",
		Content:    content,
		ToolName:   fr.Name,
		ToolCallID: fr.ID,
	}
}

// wrapOllamaError adds an actionable hint to common Ollama failures.
func (c *OllamaClient) wrapOllamaError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return fmt.Errorf("ollama server is not running (start it with `ollama serve`): %w", err)
	case IsModelNotFoundError(err):
		return fmt.Errorf("model %q is not installed (run `ollama pull %s`): %w", c.config.Model, c.config.Model, err)
	}
	return err
}

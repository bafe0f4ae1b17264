package client

import (
	"context"

	"google.golang.org/genai"
)

// StreamHandler provides callbacks for handling streaming responses.
type StreamHandler struct {
	// OnText is called for each text chunk received.
	OnText func(text string)

	// OnFunctionCall is called for each function call received.
	OnFunctionCall func(fc *genai.FunctionCall)

	// OnError is called when an error occurs.
	OnError func(err error)
}

// ProcessStream drains a streaming response into a single Response.
func ProcessStream(ctx context.Context, sr *StreamingResponse, handler *StreamHandler) (*Response, error) {
	if handler == nil {
		handler = &StreamHandler{}
	}
	resp := &Response{}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-sr.Chunks:
			if !ok {
				return resp, nil
			}

			if chunk.Error != nil {
				if handler.OnError != nil {
					handler.OnError(chunk.Error)
				}
				return nil, chunk.Error
			}

			if chunk.Text != "" {
				resp.Text += chunk.Text
				if handler.OnText != nil {
					handler.OnText(chunk.Text)
				}
			}

			for _, fc := range chunk.FunctionCalls {
				resp.FunctionCalls = append(resp.FunctionCalls, fc)
				if handler.OnFunctionCall != nil {
					handler.OnFunctionCall(fc)
				}
			}

			// Keep the latest non-zero usage metadata (typically from the final chunk)
			if chunk.InputTokens > 0 {
				resp.InputTokens = chunk.InputTokens
			}
			if chunk.OutputTokens > 0 {
				resp.OutputTokens += chunk.OutputTokens
			}

			if chunk.Done {
				resp.FinishReason = chunk.FinishReason
				return resp, nil
			}
		}
	}
}

// peekStream waits for the first chunk so that a request failing before any
// output surfaces as an error the retry loop can act on. The remaining chunks
// are forwarded unchanged.
func peekStream(ctx context.Context, chunks <-chan ResponseChunk) (*StreamingResponse, error) {
	var (
		first ResponseChunk
		ok    bool
	)
	select {
	case first, ok = <-chunks:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if ok && first.Error != nil {
		return nil, first.Error
	}

	out := make(chan ResponseChunk, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		if !ok {
			return
		}
		forward := func(c ResponseChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !forward(first) {
			return
		}
		for c := range chunks {
			if !forward(c) {
				return
			}
		}
	}()
	return &StreamingResponse{Chunks: out, Done: done}, nil
}

// Generate sends one message and collects the full response.
func Generate(ctx context.Context, c Client, history []*genai.Content, message string) (*Response, error) {
	sr, err := c.SendMessageWithHistory(ctx, history, message)
	if err != nil {
		return nil, err
	}
	return ProcessStream(ctx, sr, nil)
}

package extractor

import (
	"context"
	"fmt"
	"strings"

	"taskflow/internal/client"
	"taskflow/internal/logging"
	"taskflow/internal/tools"

	"google.golang.org/genai"
)

// LLM asks a language model for a proposal through function calling.
type LLM struct {
	client   client.Client
	registry *tools.Registry
}

// NewLLM configures c with the tool declarations and system prompt.
func NewLLM(c client.Client, registry *tools.Registry) *LLM {
	if registry == nil {
		registry = tools.DefaultRegistry()
	}
	c.SetTools(registry.GeminiTools())
	c.SetSystemInstruction(systemPrompt)
	return &LLM{client: c, registry: registry}
}

// Propose sends the request to the model and decodes its function calls.
func (l *LLM) Propose(ctx context.Context, req Request) (Proposal, error) {
	history, message := l.conversation(req)

	resp, err := client.Generate(ctx, l.client, history, message)
	if err != nil {
		return Proposal{}, fmt.Errorf("%w: %w", ErrExtractorUnavailable, err)
	}

	calls, err := l.registry.Decode(resp.FunctionCalls)
	if err != nil {
		return Proposal{}, fmt.Errorf("%w: %w", ErrMalformedProposal, err)
	}

	reply := strings.TrimSpace(resp.Text)
	if calls.Reply != "" {
		reply = calls.Reply
	}

	logging.Debug("extractor proposal",
		"iteration", req.Iteration,
		"operations", len(calls.Operations),
		"done", calls.Done,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens)

	return Proposal{
		Operations: calls.Operations,
		Reply:      reply,
		Done:       calls.Done,
		Question:   calls.Question,
	}, nil
}

// conversation builds the history and new message for req. A rejected
// proposal is replayed as the model's own function calls, each answered by a
// function response saying it was not applied, so the correction reads as a
// reply to them.
func (l *LLM) conversation(req Request) ([]*genai.Content, string) {
	prompt := buildPrompt(req)

	if req.Correction == nil {
		if req.Iteration > 1 {
			prompt += "\n\nYour previous calls were applied; the graph above includes them. Call finish_turn if nothing else is needed."
		}
		return nil, prompt
	}

	history := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	calls := make([]*genai.Part, 0, len(req.Rejected))
	results := make([]*genai.Part, 0, len(req.Rejected))
	for i, op := range req.Rejected {
		if op == nil {
			continue
		}
		id := fmt.Sprintf("rejected_%d_%d", req.Iteration, i)
		name := string(op.Kind())
		calls = append(calls, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   id,
			Name: name,
			Args: tools.Encode(op),
		}})
		result := genai.NewPartFromFunctionResponse(name, map[string]any{
			"error": "not applied: " + req.Correction.Reason,
		})
		result.FunctionResponse.ID = id
		results = append(results, result)
	}
	if len(calls) > 0 {
		history = append(history,
			&genai.Content{Role: genai.RoleModel, Parts: calls},
			&genai.Content{Role: genai.RoleUser, Parts: results})
	}
	return history, buildCorrection(req.Correction)
}

// Probe checks that the model service answers.
func (l *LLM) Probe(ctx context.Context) error {
	return l.client.Healthcheck(ctx)
}

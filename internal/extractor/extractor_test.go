package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskflow/internal/client"
	"taskflow/internal/graph"
	"taskflow/internal/insight"
	"taskflow/internal/robustness"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeClient answers every request with a canned response or error.
type fakeClient struct {
	resp      client.Response
	err       error
	healthErr error

	tools    []*genai.Tool
	system   string
	history  []*genai.Content
	messages []string
}

func (f *fakeClient) SendMessageWithHistory(_ context.Context, history []*genai.Content, message string) (*client.StreamingResponse, error) {
	f.history = history
	f.messages = append(f.messages, message)
	if f.err != nil {
		return nil, f.err
	}
	chunks := make(chan client.ResponseChunk, 1)
	chunks <- client.ResponseChunk{
		Text:          f.resp.Text,
		FunctionCalls: f.resp.FunctionCalls,
		Done:          true,
		FinishReason:  genai.FinishReasonStop,
	}
	close(chunks)
	done := make(chan struct{})
	close(done)
	return &client.StreamingResponse{Chunks: chunks, Done: done}, nil
}

func (f *fakeClient) SetTools(tools []*genai.Tool)      { f.tools = tools }
func (f *fakeClient) SetSystemInstruction(s string)     { f.system = s }
func (f *fakeClient) Healthcheck(context.Context) error { return f.healthErr }
func (f *fakeClient) GetModel() string                  { return "fake" }
func (f *fakeClient) Close() error                      { return nil }

func (f *fakeClient) SetRateLimiter(client.RateLimiter) {}

func TestNewLLMConfiguresClient(t *testing.T) {
	fc := &fakeClient{}
	NewLLM(fc, nil)
	require.Len(t, fc.tools, 1)
	assert.NotEmpty(t, fc.tools[0].FunctionDeclarations)
	assert.Contains(t, fc.system, "PascalCase")
}

func TestLLMProposeDecodesCalls(t *testing.T) {
	fc := &fakeClient{resp: client.Response{
		Text: "Got it, coffee first.",
		FunctionCalls: []*genai.FunctionCall{
			{Name: "add_task", Args: map[string]any{"name": "MakeCoffee", "label": "then"}},
			{Name: "finish_turn"},
		},
	}}
	llm := NewLLM(fc, nil)

	p, err := llm.Propose(context.Background(), Request{
		Utterance: "I'm making coffee",
		Graph:     graph.New(),
		Insights:  insight.New(),
		Iteration: 1,
	})
	require.NoError(t, err)
	if diff := cmp.Diff([]graph.Operation{graph.AddTask{Name: "MakeCoffee", Label: "then"}}, p.Operations); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.Done)
	assert.Equal(t, "Got it, coffee first.", p.Reply)

	require.Len(t, fc.messages, 1)
	assert.Contains(t, fc.messages[0], `"tasks":["Start"]`)
	assert.Contains(t, fc.messages[0], `User said: "I'm making coffee"`)
	assert.Nil(t, fc.history)
}

func TestLLMReplaysRejectedProposal(t *testing.T) {
	fc := &fakeClient{}
	llm := NewLLM(fc, nil)

	_, err := llm.Propose(context.Background(), Request{
		Utterance:  "I'm making coffee",
		Graph:      graph.New(),
		Iteration:  2,
		Correction: &Correction{Reason: "task name \"make coffee\" is not PascalCase", Expected: "MakeCoffee"},
		Rejected:   []graph.Operation{graph.AddTask{Name: "make coffee"}},
	})
	require.NoError(t, err)

	require.Len(t, fc.history, 3)
	assert.EqualValues(t, genai.RoleUser, fc.history[0].Role)

	call := fc.history[1]
	assert.EqualValues(t, genai.RoleModel, call.Role)
	require.Len(t, call.Parts, 1)
	require.NotNil(t, call.Parts[0].FunctionCall)
	assert.Equal(t, "add_task", call.Parts[0].FunctionCall.Name)
	assert.Equal(t, "make coffee", call.Parts[0].FunctionCall.Args["name"])
	assert.NotEmpty(t, call.Parts[0].FunctionCall.ID)

	result := fc.history[2]
	assert.EqualValues(t, genai.RoleUser, result.Role)
	require.Len(t, result.Parts, 1)
	require.NotNil(t, result.Parts[0].FunctionResponse)
	assert.Equal(t, "add_task", result.Parts[0].FunctionResponse.Name)
	assert.Equal(t, call.Parts[0].FunctionCall.ID, result.Parts[0].FunctionResponse.ID)
	assert.Contains(t, result.Parts[0].FunctionResponse.Response["error"], "not PascalCase")

	assert.Contains(t, fc.messages[0], "CORRECTION:")
	assert.Contains(t, fc.messages[0], "Expected: MakeCoffee")
}

func TestLLMCorrectionWithoutRejectedCalls(t *testing.T) {
	fc := &fakeClient{}
	_, err := NewLLM(fc, nil).Propose(context.Background(), Request{
		Utterance:  "I'm making coffee",
		Iteration:  2,
		Correction: &Correction{Reason: "the previous attempt did not produce a proposal"},
	})
	require.NoError(t, err)
	require.Len(t, fc.history, 1)
	assert.Contains(t, fc.messages[0], "CORRECTION: the previous attempt")
}

func TestLLMErrors(t *testing.T) {
	fc := &fakeClient{err: &client.APIError{StatusCode: 503, Message: "overloaded"}}
	_, err := NewLLM(fc, nil).Propose(context.Background(), Request{Utterance: "hi"})
	assert.ErrorIs(t, err, ErrExtractorUnavailable)

	fc = &fakeClient{resp: client.Response{FunctionCalls: []*genai.FunctionCall{{Name: "drop_table"}}}}
	_, err = NewLLM(fc, nil).Propose(context.Background(), Request{Utterance: "hi"})
	assert.ErrorIs(t, err, ErrMalformedProposal)
	assert.NotErrorIs(t, err, ErrExtractorUnavailable)
}

func TestGuardedOpensOnServiceFailures(t *testing.T) {
	unavailable := Func(func(context.Context, Request) (Proposal, error) {
		return Proposal{}, ErrExtractorUnavailable
	})
	g := NewGuarded(unavailable, robustness.NewCircuitBreaker(2, time.Hour))

	for i := 0; i < 2; i++ {
		_, err := g.Propose(context.Background(), Request{})
		require.ErrorIs(t, err, ErrExtractorUnavailable)
		assert.NotErrorIs(t, err, ErrServiceUnreachable)
	}

	_, err := g.Propose(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrServiceUnreachable)
	assert.ErrorIs(t, err, ErrExtractorUnavailable)
	assert.ErrorIs(t, g.Probe(context.Background()), ErrServiceUnreachable)
}

func TestGuardedIgnoresMalformedProposals(t *testing.T) {
	malformed := Func(func(context.Context, Request) (Proposal, error) {
		return Proposal{}, ErrMalformedProposal
	})
	g := NewGuarded(malformed, robustness.NewCircuitBreaker(1, time.Hour))

	for i := 0; i < 3; i++ {
		_, err := g.Propose(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrMalformedProposal)
	}
	assert.NoError(t, g.Probe(context.Background()))
}

func TestGuardedProbeUsesHealthcheck(t *testing.T) {
	fc := &fakeClient{healthErr: errors.New("connection refused")}
	g := NewGuarded(NewLLM(fc, nil), robustness.NewCircuitBreaker(3, time.Minute))
	assert.ErrorIs(t, g.Probe(context.Background()), ErrServiceUnreachable)

	fc.healthErr = nil
	assert.NoError(t, g.Probe(context.Background()))
}

func TestScripted(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted(
		Ops("first", graph.AddTask{Name: "A"}),
		Fail(boom),
		func(req Request) (Proposal, error) {
			return Proposal{Reply: req.Utterance}, nil
		},
	)
	ctx := context.Background()

	p, err := s.Propose(ctx, Request{Iteration: 1})
	require.NoError(t, err)
	assert.Len(t, p.Operations, 1)
	assert.True(t, p.Done)

	_, err = s.Propose(ctx, Request{Iteration: 2})
	assert.ErrorIs(t, err, boom)

	p, err = s.Propose(ctx, Request{Utterance: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", p.Reply)

	p, err = s.Propose(ctx, Request{})
	require.NoError(t, err)
	assert.Empty(t, p.Operations)
	assert.Len(t, s.Requests(), 4)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Propose(cancelled, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

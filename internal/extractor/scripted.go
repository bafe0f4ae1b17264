package extractor

import (
	"context"
	"sync"

	"taskflow/internal/graph"
)

// Step produces one scripted response.
type Step func(req Request) (Proposal, error)

// Respond returns a step that always yields p.
func Respond(p Proposal) Step {
	return func(Request) (Proposal, error) { return p, nil }
}

// Ops returns a step proposing ops and finishing the turn.
func Ops(reply string, ops ...graph.Operation) Step {
	return Respond(Proposal{Operations: ops, Reply: reply, Done: true})
}

// Fail returns a step that fails with err.
func Fail(err error) Step {
	return func(Request) (Proposal, error) { return Proposal{}, err }
}

// Scripted is a deterministic extractor that plays back steps in order.
// Once the script is exhausted it proposes nothing.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// NewScripted creates a scripted extractor.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Propose(ctx context.Context, req Request) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i >= len(s.steps) {
		return Proposal{}, nil
	}
	return s.steps[i](req)
}

// Requests returns the requests seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

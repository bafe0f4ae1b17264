// Package extractor turns an utterance plus the current graph into proposed
// graph operations.
package extractor

import (
	"context"
	"errors"
	"fmt"

	"taskflow/internal/graph"
	"taskflow/internal/insight"
	"taskflow/internal/tools"
)

var (
	// ErrExtractorUnavailable means the backing service failed or timed out.
	ErrExtractorUnavailable = errors.New("extractor unavailable")

	// ErrServiceUnreachable means the backing service cannot be reached at all.
	ErrServiceUnreachable = fmt.Errorf("%w: service unreachable", ErrExtractorUnavailable)

	// ErrMalformedProposal means the extractor answered with calls that could not be decoded.
	ErrMalformedProposal = errors.New("malformed proposal")
)

// Correction tells the extractor why its previous proposal was rejected.
type Correction struct {
	Reason   string `json:"reason"`
	Expected string `json:"expected,omitempty"`
}

func (c Correction) String() string {
	if c.Expected == "" {
		return c.Reason
	}
	return c.Reason + "\nExpected: " + c.Expected
}

// Request is everything the extractor sees for one iteration.
type Request struct {
	Utterance string
	Graph     *graph.Graph
	Insights  *insight.UserInsights
	Iteration int

	// Correction and Rejected are set when the previous proposal was rejected.
	Correction *Correction
	Rejected   []graph.Operation

	// RecentQuestions lists clarifying question ids that must not be asked again.
	RecentQuestions []string
}

// Proposal is the extractor's answer.
type Proposal struct {
	Operations []graph.Operation
	Reply      string
	Done       bool
	Question   *tools.Question
}

// Extractor proposes graph operations for an utterance.
type Extractor interface {
	Propose(ctx context.Context, req Request) (Proposal, error)
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, req Request) (Proposal, error)

func (f Func) Propose(ctx context.Context, req Request) (Proposal, error) {
	return f(ctx, req)
}

// Prober is implemented by extractors that can check their backing service.
type Prober interface {
	Probe(ctx context.Context) error
}

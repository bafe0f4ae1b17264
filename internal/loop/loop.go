// Package loop drives one utterance through repeated extractor proposals,
// validation and graph mutation until the extractor is finished or the
// iteration cap is hit.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskflow/internal/config"
	"taskflow/internal/extractor"
	"taskflow/internal/graph"
	"taskflow/internal/insight"
	"taskflow/internal/logging"
	"taskflow/internal/tools"
	"taskflow/internal/validator"
)

// ErrIterationCapExceeded reports that the loop stopped at its cap with the
// extractor still unfinished. Operations applied up to that point are kept.
var ErrIterationCapExceeded = errors.New("iteration cap exceeded")

// ValidateFunc checks a proposed batch against the utterance and the graph
// as it stood before the batch.
type ValidateFunc func(utterance string, before *graph.Graph, ops []graph.Operation) validator.Verdict

// Loop runs the propose/validate/apply cycle.
type Loop struct {
	extractor     extractor.Extractor
	engine        *graph.Engine
	validate      ValidateFunc
	maxIterations int
	timeout       time.Duration
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxIterations lowers the iteration cap. Values outside 1..5 fall back
// to 5.
func WithMaxIterations(n int) Option {
	return func(l *Loop) { l.maxIterations = n }
}

// WithTimeout sets the per-call extractor timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

// WithEngine sets the mutation engine.
func WithEngine(e *graph.Engine) Option {
	return func(l *Loop) { l.engine = e }
}

// WithValidator replaces the validator.
func WithValidator(v ValidateFunc) Option {
	return func(l *Loop) { l.validate = v }
}

// New creates a loop around ex.
func New(ex extractor.Extractor, opts ...Option) *Loop {
	l := &Loop{
		extractor:     ex,
		engine:        graph.NewEngine(),
		validate:      validator.Validate,
		maxIterations: config.MaxLoopIterations,
		timeout:       config.DefaultExtractorTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxIterations <= 0 || l.maxIterations > config.MaxLoopIterations {
		logging.Warn("iteration cap out of range, using ceiling",
			"requested", l.maxIterations, "capped", config.MaxLoopIterations)
		l.maxIterations = config.MaxLoopIterations
	}
	if l.timeout <= 0 {
		l.timeout = config.DefaultExtractorTimeout
	}
	return l
}

// MaxIterations returns the effective cap.
func (l *Loop) MaxIterations() int {
	return l.maxIterations
}

// Input is one utterance together with the session state it applies to.
type Input struct {
	Utterance       string
	Graph           *graph.Graph
	Insights        *insight.UserInsights
	RecentQuestions []string
}

// Result is the outcome of a run. Graph is always set. Partial is true when
// the run stopped before the extractor finished; Err then says why.
type Result struct {
	Graph      *graph.Graph
	Reply      string
	Iterations int
	Partial    bool
	Err        error
	Question   *tools.Question
	Applied    []graph.Operation
	History    []HistoryEntry
}

// Run processes one utterance. The returned error is non-nil only when the
// backing service is unreachable on the first call; the graph is then left
// untouched. Every other failure is fed back to the extractor as a
// correction, and the caller gets a Result.
//
// Cancellation is only observed between iterations. A batch that has started
// applying always finishes.
func (l *Loop) Run(ctx context.Context, in Input) (Result, error) {
	start := in.Graph
	if start == nil {
		start = graph.New()
	}

	m := newMachine()
	res := Result{Graph: start}
	finish := func() Result {
		res.History = m.History()
		return res
	}
	if err := m.fire(EventStart); err != nil {
		return finish(), err
	}

	var (
		correction *extractor.Correction
		rejected   []graph.Operation
		lastIssue  string
	)

	for iter := 1; ; iter++ {
		m.iteration = iter

		if iter > l.maxIterations {
			res.Partial = true
			res.Err = fmt.Errorf("%w: stopped after %d iterations", ErrIterationCapExceeded, l.maxIterations)
			if lastIssue != "" {
				res.Err = fmt.Errorf("%w; last problem: %s", res.Err, lastIssue)
			}
			_ = m.fire(EventCapReached)
			return finish(), nil
		}

		select {
		case <-ctx.Done():
			res.Partial = true
			res.Err = ctx.Err()
			_ = m.fire(EventCancelled)
			return finish(), nil
		default:
		}

		res.Iterations = iter
		p, err := l.propose(ctx, extractor.Request{
			Utterance:       in.Utterance,
			Graph:           res.Graph,
			Insights:        in.Insights,
			Iteration:       iter,
			Correction:      correction,
			Rejected:        rejected,
			RecentQuestions: in.RecentQuestions,
		})
		if err != nil {
			if ctx.Err() != nil {
				res.Partial = true
				res.Err = ctx.Err()
				_ = m.fire(EventCancelled)
				return finish(), nil
			}
			if iter == 1 && l.unreachable(ctx, err) {
				logging.Error("extractor unreachable", "error", err)
				_ = m.fire(EventFatal)
				return Result{Graph: start, Iterations: 1, History: m.History()}, err
			}
			logging.Warn("extractor call failed", "iteration", iter, "error", err)
			correction, rejected = retryCorrection(err), nil
			lastIssue = err.Error()
			if err := l.step(m, EventFailed, EventRetry); err != nil {
				return finish(), err
			}
			continue
		}

		if p.Reply != "" {
			res.Reply = p.Reply
		}
		if p.Question != nil {
			res.Question = p.Question
		}
		if len(p.Operations) == 0 {
			if err := m.fire(EventEmpty); err != nil {
				return finish(), err
			}
			return finish(), nil
		}

		if err := m.fire(EventProposed); err != nil {
			return finish(), err
		}
		verdict := l.validate(in.Utterance, res.Graph, p.Operations)
		if !verdict.Accepted {
			logging.Debug("proposal rejected", "iteration", iter, "reason", verdict.Reason)
			correction = &extractor.Correction{Reason: verdict.Reason, Expected: verdict.Expected}
			rejected = p.Operations
			lastIssue = verdict.Reason
			if err := l.step(m, EventRejected, EventRetry); err != nil {
				return finish(), err
			}
			continue
		}

		if err := m.fire(EventAccepted); err != nil {
			return finish(), err
		}
		next, failed, err := l.engine.ApplyAll(res.Graph, p.Operations)
		if failed >= 0 {
			res.Applied = append(res.Applied, p.Operations[:failed]...)
		} else {
			res.Applied = append(res.Applied, p.Operations...)
		}
		res.Graph = next
		if err != nil {
			logging.Warn("operation failed mid-batch", "iteration", iter, "index", failed, "error", err)
			reason := fmt.Sprintf("operation %d (%s) failed: %v; operations before it were applied",
				failed, p.Operations[failed], err)
			expected := fmt.Sprintf("resend corrected versions of operations %d..%d only; the graph above already includes the earlier ones",
				failed, len(p.Operations)-1)
			correction = &extractor.Correction{Reason: reason, Expected: expected}
			rejected = p.Operations[failed:]
			lastIssue = correction.Reason
			if err := l.step(m, EventApplyError, EventRetry); err != nil {
				return finish(), err
			}
			continue
		}

		if p.Done {
			if err := m.fire(EventFinished); err != nil {
				return finish(), err
			}
			return finish(), nil
		}
		correction, rejected, lastIssue = nil, nil, ""
		if err := m.fire(EventApplied); err != nil {
			return finish(), err
		}
	}
}

func (l *Loop) step(m *machine, events ...Event) error {
	for _, ev := range events {
		if err := m.fire(ev); err != nil {
			return err
		}
	}
	return nil
}

// propose calls the extractor under the per-call timeout. A timeout is
// reported as the extractor being unavailable.
func (l *Loop) propose(ctx context.Context, req extractor.Request) (extractor.Proposal, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	p, err := l.extractor.Propose(callCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) &&
		!errors.Is(err, extractor.ErrExtractorUnavailable) {
		err = fmt.Errorf("%w: no proposal within %s: %w", extractor.ErrExtractorUnavailable, l.timeout, err)
	}
	return p, err
}

// unreachable decides whether an extractor failure means the backing service
// cannot be reached at all, as opposed to one bad call.
func (l *Loop) unreachable(ctx context.Context, err error) bool {
	if !errors.Is(err, extractor.ErrExtractorUnavailable) {
		return false
	}
	if errors.Is(err, extractor.ErrServiceUnreachable) {
		return true
	}
	prober, ok := l.extractor.(extractor.Prober)
	if !ok {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return prober.Probe(probeCtx) != nil
}

func retryCorrection(err error) *extractor.Correction {
	if errors.Is(err, extractor.ErrMalformedProposal) {
		return &extractor.Correction{
			Reason:   fmt.Sprintf("the previous reply could not be used: %v", err),
			Expected: "call only the declared tools with their documented arguments",
		}
	}
	return &extractor.Correction{
		Reason:   "the previous attempt did not produce a proposal",
		Expected: "propose the operations for the request again",
	}
}

package extractor

import (
	"context"
	"errors"
	"fmt"

	"taskflow/internal/logging"
	"taskflow/internal/robustness"
)

// Guarded wraps an extractor with a circuit breaker. Only service failures
// count against the breaker; malformed proposals do not.
type Guarded struct {
	next    Extractor
	breaker *robustness.CircuitBreaker
}

// NewGuarded creates a guarded extractor.
func NewGuarded(next Extractor, breaker *robustness.CircuitBreaker) *Guarded {
	breaker.OnStateChange(func(from, to robustness.State) {
		logging.Warn("extractor circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Propose(ctx context.Context, req Request) (Proposal, error) {
	var (
		p        Proposal
		innerErr error
	)
	err := g.breaker.Execute(ctx, func() error {
		p, innerErr = g.next.Propose(ctx, req)
		if innerErr != nil && errors.Is(innerErr, ErrExtractorUnavailable) {
			return innerErr
		}
		return nil
	})
	if errors.Is(err, robustness.ErrCircuitOpen) {
		return Proposal{}, fmt.Errorf("%w: %w", ErrServiceUnreachable, err)
	}
	if err != nil {
		return Proposal{}, err
	}
	return p, innerErr
}

// Probe reports whether the backing service looks reachable: the breaker is
// not open and, if the wrapped extractor supports it, its probe passes.
func (g *Guarded) Probe(ctx context.Context) error {
	if g.breaker.IsOpen() {
		return fmt.Errorf("%w: %w", ErrServiceUnreachable, robustness.ErrCircuitOpen)
	}
	if p, ok := g.next.(Prober); ok {
		if err := p.Probe(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrServiceUnreachable, err)
		}
	}
	return nil
}

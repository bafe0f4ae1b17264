package app

import (
	"context"
	"fmt"
	"sync"

	"taskflow/internal/client"
	"taskflow/internal/config"
	"taskflow/internal/extractor"
	"taskflow/internal/graph"
	"taskflow/internal/insight"
	"taskflow/internal/logging"
	"taskflow/internal/loop"
	"taskflow/internal/ratelimit"
	"taskflow/internal/robustness"
	"taskflow/internal/store"
	"taskflow/internal/tools"
)

// Builder provides a fluent interface for constructing App instances.
type Builder struct {
	cfg *config.Config
	ctx context.Context

	// Optional components (nil means build from config)
	modelClient client.Client
	extractor   extractor.Extractor
	backend     store.Backend
	tracker     *insight.Tracker
	engine      *graph.Engine

	rateLimiter *ratelimit.Limiter
	breaker     *robustness.CircuitBreaker
	store       *store.Store
	loop        *loop.Loop

	// For error collection during build
	buildErrors []error
	mu          sync.Mutex
}

// NewBuilder creates a new Builder with the given config.
func NewBuilder(ctx context.Context, cfg *config.Config) *Builder {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Builder{
		cfg:         cfg,
		ctx:         ctx,
		buildErrors: make([]error, 0),
	}
}

// WithClient uses c instead of creating a client from the API settings.
func (b *Builder) WithClient(c client.Client) *Builder {
	b.modelClient = c
	return b
}

// WithExtractor uses ex directly. No model client is created and no circuit
// breaker is added.
func (b *Builder) WithExtractor(ex extractor.Extractor) *Builder {
	b.extractor = ex
	return b
}

// WithoutModel builds an app that never contacts a model. Utterances fail as
// unreachable; everything else works. Used by commands that only read or
// edit the stored graph.
func (b *Builder) WithoutModel() *Builder {
	b.extractor = extractor.Func(func(context.Context, extractor.Request) (extractor.Proposal, error) {
		return extractor.Proposal{}, fmt.Errorf("%w: no model configured", extractor.ErrServiceUnreachable)
	})
	return b
}

// WithBackend uses backend instead of the one named in the store settings.
func (b *Builder) WithBackend(backend store.Backend) *Builder {
	b.backend = backend
	return b
}

// WithTracker uses t instead of a tracker built from the insight settings.
func (b *Builder) WithTracker(t *insight.Tracker) *Builder {
	b.tracker = t
	return b
}

// WithEngine uses e for the loop and the direct mutators.
func (b *Builder) WithEngine(e *graph.Engine) *Builder {
	b.engine = e
	return b
}

// Build constructs the App instance, returning any errors encountered.
func (b *Builder) Build() (*App, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := b.initExtractor(); err != nil {
		b.addError(err)
		return nil, b.finalizeError()
	}
	if err := b.initStore(); err != nil {
		b.addError(err)
		b.closeClient()
		return nil, b.finalizeError()
	}
	b.initLoop()

	return b.assembleApp(), nil
}

// initExtractor wires the model client behind the rate limiter and the
// circuit breaker, unless an extractor was supplied.
func (b *Builder) initExtractor() error {
	if b.extractor != nil {
		return nil
	}
	if b.modelClient == nil {
		if err := b.cfg.RequireCredentials(); err != nil {
			return err
		}
		c, err := client.NewClient(b.ctx, b.cfg)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		b.modelClient = c
	}
	logging.Debug("client created", "provider", b.cfg.API.Provider, "model", b.modelClient.GetModel())

	if b.cfg.RateLimit.Enabled {
		b.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: b.cfg.RateLimit.RequestsPerMinute,
			TokensPerMinute:   b.cfg.RateLimit.TokensPerMinute,
			BurstSize:         b.cfg.RateLimit.BurstSize,
		})
		b.modelClient.SetRateLimiter(b.rateLimiter)
	}

	b.breaker = robustness.NewCircuitBreaker(b.cfg.Loop.BreakerThreshold, b.cfg.Loop.BreakerReset)
	b.extractor = extractor.NewGuarded(extractor.NewLLM(b.modelClient, tools.DefaultRegistry()), b.breaker)
	return nil
}

func (b *Builder) initStore() error {
	backend := b.backend
	if backend == nil {
		var err error
		backend, err = store.Open(b.cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", b.cfg.Store.Backend, err)
		}
	}
	b.store = store.New(backend)
	logging.Debug("store opened", "backend", b.cfg.Store.Backend, "path", b.cfg.Store.Path)
	return nil
}

func (b *Builder) initLoop() {
	if b.engine == nil {
		b.engine = graph.NewEngine()
	}
	if b.tracker == nil {
		b.tracker = insight.NewTracker(b.cfg.Insights.QuestionHorizon, b.cfg.Insights.MaxActivity)
	}
	b.loop = loop.New(b.extractor,
		loop.WithEngine(b.engine),
		loop.WithMaxIterations(b.cfg.Loop.MaxIterations),
		loop.WithTimeout(b.cfg.Loop.ExtractorTimeout))
}

func (b *Builder) assembleApp() *App {
	return &App{
		config:      b.cfg,
		client:      b.modelClient,
		store:       b.store,
		rateLimiter: b.rateLimiter,
		breaker:     b.breaker,
		service:     NewService(b.store, b.loop, b.engine, b.tracker),
		userLimiter: ratelimit.NewKeyedLimiter(
			b.cfg.RateLimit.Enabled,
			b.cfg.RateLimit.UserRequestsPerMinute,
			b.cfg.RateLimit.UserBurst),
	}
}

func (b *Builder) closeClient() {
	if b.modelClient != nil {
		if err := b.modelClient.Close(); err != nil {
			logging.Debug("error closing client", "error", err)
		}
	}
}

// addError records a non-fatal error during build.
func (b *Builder) addError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buildErrors = append(b.buildErrors, err)
}

// finalizeError combines all build errors into a single error.
func (b *Builder) finalizeError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buildErrors) == 0 {
		return nil
	}
	if len(b.buildErrors) == 1 {
		return fmt.Errorf("app build failed: %w", b.buildErrors[0])
	}
	msg := fmt.Sprintf("app build failed with %d error(s)", len(b.buildErrors))
	for i, err := range b.buildErrors {
		msg += fmt.Sprintf("\n  %d. %s", i+1, err.Error())
	}
	return fmt.Errorf("%s", msg)
}

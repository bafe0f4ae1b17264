// Package app wires the task graph service together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"taskflow/internal/client"
	"taskflow/internal/config"
	"taskflow/internal/logging"
	"taskflow/internal/ratelimit"
	"taskflow/internal/robustness"
	"taskflow/internal/store"

	"golang.org/x/sync/errgroup"
)

// App is the assembled application.
type App struct {
	config      *config.Config
	client      client.Client
	store       *store.Store
	rateLimiter *ratelimit.Limiter
	breaker     *robustness.CircuitBreaker
	userLimiter *ratelimit.KeyedLimiter
	service     *Service

	closeOnce sync.Once
	closeErr  error
}

// New builds an App from cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	return NewBuilder(ctx, cfg).Build()
}

// Service returns the graph service.
func (a *App) Service() *Service {
	return a.service
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.config
}

// UserLimiter returns the per-user request limiter for the HTTP edge.
func (a *App) UserLimiter() *ratelimit.KeyedLimiter {
	return a.userLimiter
}

// Status describes the health of the app's dependencies.
type Status struct {
	Sessions    int             `json:"sessions"`
	Breaker     string          `json:"breaker,omitempty"`
	RateLimiter ratelimit.Stats `json:"rate_limiter"`
}

// Status reports runtime health.
func (a *App) Status() Status {
	st := Status{Sessions: a.store.Len()}
	if a.breaker != nil {
		st.Breaker = a.breaker.GetState().String()
	}
	if a.rateLimiter != nil {
		st.RateLimiter = a.rateLimiter.Stats()
	}
	return st
}

// Serve runs h on the configured address until ctx is cancelled, then shuts
// the server down and closes the app.
func (a *App) Serve(ctx context.Context, h http.Handler) error {
	srv := &http.Server{
		Addr:         a.config.Server.Addr,
		Handler:      h,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := a.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = GracefulShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return a.gracefulShutdown(shutdownCtx, srv)
	})
	return g.Wait()
}

// Close releases the client and the store. It is safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.client != nil {
			if err := a.client.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close client: %w", err))
			}
		}
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

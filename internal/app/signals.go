package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskflow/internal/logging"
)

const (
	// GracefulShutdownTimeout is the maximum time to wait for graceful shutdown.
	GracefulShutdownTimeout = 10 * time.Second
	// ForcedShutdownTimeout is the time after which we force exit.
	ForcedShutdownTimeout = 15 * time.Second
)

// SignalContext returns a context cancelled on SIGINT, SIGTERM or SIGQUIT.
// If shutdown has not finished ForcedShutdownTimeout after the signal, or a
// second signal arrives, the process exits. Call stop once shutdown is done.
func SignalContext(parent context.Context) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	// Done channel to signal goroutine termination
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			logging.Info("received signal, shutting down", "signal", sig.String())
			cancel()

			forceExitTimer := time.AfterFunc(ForcedShutdownTimeout, func() {
				logging.Warn("forced shutdown due to timeout")
				os.Exit(1)
			})
			defer forceExitTimer.Stop()

			select {
			case sig := <-sigChan:
				logging.Warn("second signal, exiting", "signal", sig.String())
				if sig == syscall.SIGQUIT {
					os.Exit(128 + int(syscall.SIGQUIT))
				}
				os.Exit(1)
			case <-done:
			}

		case <-done:
			return
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}

// gracefulShutdown stops accepting requests, lets in-flight turns finish and
// then closes the app.
func (a *App) gracefulShutdown(ctx context.Context, srv *http.Server) error {
	logging.Debug("starting graceful shutdown")

	// 1. Stop the listener and wait for handlers. A turn that is applying
	// finishes its batch before its handler returns.
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("server shutdown incomplete", "error", err)
		errs = append(errs, err)
	}

	// 2. Flush sessions and close the client
	if err := a.Close(); err != nil {
		logging.Warn("error closing app", "error", err)
		errs = append(errs, err)
	}

	logging.Debug("shutdown complete")
	return errors.Join(errs...)
}

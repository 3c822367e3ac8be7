// Package signals wires SIGINT/SIGTERM to graceful shutdown and SIGHUP to an
// immediate cache check.
//
// Setup installs an OS signal handler that listens for SIGINT and SIGTERM.
// When one of those signals is received it will:
//   - log the signal
//   - close the provided stopCh (if non-nil)
//   - cancel the returned context
package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

// Setup registers a handler for SIGINT and SIGTERM.
// It returns a context.Context that will be canceled when a signal is received.
// If stopCh is non-nil it will be closed when a signal is received.
func Setup(stopCh chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("signal received, shutting down")

		// stopCh may already be closed by the caller
		if stopCh != nil {
			func() {
				defer func() { _ = recover() }()
				close(stopCh)
			}()
		}
		cancel()
	}()

	return ctx
}

// Reload returns a channel that receives a value for every SIGHUP until ctx
// is done. Signals arriving while a previous one is still pending are merged.
func Reload(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				log.Info().Msg("SIGHUP received, checking cache now")
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

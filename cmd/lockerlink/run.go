package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// shutdownGrace bounds how long start waits for components after cancelling them.
const shutdownGrace = 10 * time.Second

// component is a long-running part of the service that stops when its context is cancelled.
type component struct {
	name string
	run  func(context.Context) error
}

// runComponents starts every component and blocks until a signal arrives on
// stop, one of them fails or ctx ends. The rest are then cancelled and awaited
// for at most grace, so callers may release shared resources once it returns.
// It returns the first component failure, if any.
func runComponents(ctx context.Context, stop <-chan os.Signal, grace time.Duration, logger *slog.Logger, comps ...component) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(comps))
	for _, c := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", c.name, err)
			}
		}()
	}

	var failure error
	select {
	case sig := <-stop:
		logger.Info("received shutdown signal", "signal", sig)
	case failure = <-errCh:
		logger.Error("component failed", "error", failure)
	case <-ctx.Done():
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn("components still running after shutdown grace", "grace", grace)
	}
	return failure
}

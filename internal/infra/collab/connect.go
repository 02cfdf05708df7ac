// Package collab holds the shared plumbing for external collaborator
// connections. Concrete collaborators live in subpackages; rehearsal runs
// use the in-memory suite under memory.
package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opsforge/mothball/pkg/common/logger"
)

// ProbeFn checks whether one collaborator is reachable and willing to serve.
type ProbeFn func(ctx context.Context) error

// WaitReady blocks until the named collaborator answers its readiness probe,
// retrying with exponential backoff. It returns the probe's last error when
// the context expires first. Destructive phases must never start against a
// collaborator that has not proven reachable at least once.
func WaitReady(ctx context.Context, log *logger.Logger, name string, probe ProbeFn) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 0 // retry until ctx expires

	attempt := 0
	operation := func() error {
		attempt++
		if err := probe(ctx); err != nil {
			log.Warn(ctx, "collaborator not ready",
				"collaborator", name, "attempt", attempt, "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("waiting for %s: %w", name, err)
	}

	log.Info(ctx, "collaborator ready", "collaborator", name, "attempts", attempt)
	return nil
}

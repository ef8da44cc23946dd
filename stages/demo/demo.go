// Package demo provides simulated executors for every stage of the
// built-in catalogue. Each executor sleeps a fraction of its stage's
// estimated duration and publishes a small payload, which is enough to
// exercise scheduling, progress and failure containment end to end. The
// binaries fall back to this registry when no real executors are wired in.
package demo

import (
	"context"
	"log/slog"
	"time"

	"github.com/nomis52/goinit/stage"
)

// Option configures the demo registry.
type Option func(*settings)

type settings struct {
	failures map[stage.ID]error
	speedup  int
}

// WithFailure makes the given stage's executor return err, to demonstrate
// retry, containment and abort behavior.
func WithFailure(id stage.ID, err error) Option {
	return func(s *settings) {
		s.failures[id] = err
	}
}

// WithSpeedup divides every simulated delay by factor.
func WithSpeedup(factor int) Option {
	return func(s *settings) {
		if factor > 0 {
			s.speedup = factor
		}
	}
}

// Registry returns a registry with a simulated executor for every stage of
// the built-in catalogue.
func Registry(logger *slog.Logger, opts ...Option) *stage.Registry {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := &settings{
		failures: make(map[stage.ID]error),
		speedup:  1,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reg := stage.NewRegistry()
	for _, s := range stage.DefaultCatalog().Stages() {
		reg.MustRegister(s.ID, simulated(logger, s, cfg))
	}
	return reg
}

// simulated sleeps for roughly half the stage's estimate and publishes a
// marker payload.
func simulated(logger *slog.Logger, s stage.Stage, cfg *settings) stage.Executor {
	delay := s.EstimatedDuration / 2 / time.Duration(cfg.speedup)
	failure := cfg.failures[s.ID]

	return func(ctx context.Context, rc *stage.RunContext) (any, error) {
		logger.Debug("simulating stage work", "stage", s.ID.String(), "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if failure != nil {
			return nil, failure
		}
		return map[string]any{
			"stage":     s.ID.String(),
			"simulated": true,
		}, nil
	}
}

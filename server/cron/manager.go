package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StrategyRunnable is implemented by anything that can start a run under a
// named strategy.
type StrategyRunnable interface {
	Run(strategy string) error
}

// CronTriggerManager manages multiple CronTrigger instances with different
// strategies and schedules.
type CronTriggerManager struct {
	triggers []*CronTrigger
	logger   *slog.Logger
}

// NewCronTriggerManager creates a new CronTriggerManager from a multi-trigger
// specification. The spec format is:
// strategy:cron_expression;strategy2:cron_expression2
//
// Example:
//
//	"comprehensive:0 6 * * *;minimal:*/30 * * * *"
//
// Returns an error if:
//   - The spec is invalid or cannot be parsed
//   - Any strategy name is not in availableStrategies
//   - Any cron expression is invalid
func NewCronTriggerManager(spec string, runnable StrategyRunnable, logger *slog.Logger, availableStrategies map[string]bool) (*CronTriggerManager, error) {
	triggerSpecs, err := ParseTriggerSpecs(spec, availableStrategies)
	if err != nil {
		return nil, err
	}

	triggers := make([]*CronTrigger, 0, len(triggerSpecs))
	for _, spec := range triggerSpecs {
		strategy := spec.Strategy // Capture for closure
		callback := RunnableFunc(func() error {
			return runnable.Run(strategy)
		})

		trigger, err := NewCronTrigger(spec.CronSpec, callback, logger)
		if err != nil {
			return nil, fmt.Errorf("creating trigger for '%s:%s': %w",
				spec.Strategy, spec.CronSpec, err)
		}
		triggers = append(triggers, trigger)
	}

	logger.Info("cron trigger manager created", "trigger_count", len(triggers))

	for i, trigger := range triggers {
		logger.Info("trigger registered",
			"index", i,
			"strategy", triggerSpecs[i].Strategy,
			"schedule", triggerSpecs[i].CronSpec,
			"next_run", trigger.NextRun(),
		)
	}

	return &CronTriggerManager{
		triggers: triggers,
		logger:   logger,
	}, nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *CronTriggerManager) NextRun() time.Time {
	if len(m.triggers) == 0 {
		return time.Time{}
	}

	earliest := m.triggers[0].NextRun()
	for i := 1; i < len(m.triggers); i++ {
		next := m.triggers[i].NextRun()
		if next.Before(earliest) {
			earliest = next
		}
	}

	return earliest
}

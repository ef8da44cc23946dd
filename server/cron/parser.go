package cron

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	triggerSeparator  = ";"
	strategySeparator = ":"
)

// TriggerSpec represents a parsed trigger specification with a strategy and
// cron schedule.
type TriggerSpec struct {
	Strategy string
	CronSpec string
}

// ParseTriggerSpecs parses a multi-trigger specification string into
// individual trigger specs. The format is:
// strategy:cron_expression;strategy2:cron_expression2
//
// Example:
//
//	"comprehensive:0 6 * * *;minimal:*/30 * * * *"
//
// Returns an error if:
//   - Any trigger is missing a strategy or cron expression
//   - Any strategy name is not in availableStrategies
//   - Any cron expression is invalid
func ParseTriggerSpecs(spec string, availableStrategies map[string]bool) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	triggerStrs := strings.Split(spec, triggerSeparator)
	specs := make([]TriggerSpec, 0, len(triggerStrs))

	for _, triggerStr := range triggerStrs {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue // Skip empty triggers (e.g., trailing semicolon)
		}

		triggerSpec, err := parseSingleTrigger(triggerStr, availableStrategies)
		if err != nil {
			return nil, err
		}
		specs = append(specs, triggerSpec)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}

	return specs, nil
}

// parseSingleTrigger parses a single trigger specification.
func parseSingleTrigger(triggerStr string, availableStrategies map[string]bool) (TriggerSpec, error) {
	parts := strings.Split(triggerStr, strategySeparator)
	if len(parts) != 2 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'strategy:cron', got '%s'", triggerStr)
	}

	strategy := strings.TrimSpace(parts[0])
	cronSpec := strings.TrimSpace(parts[1])

	if strategy == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing strategy in '%s'", triggerStr)
	}
	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", triggerStr)
	}

	if !availableStrategies[strategy] {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: unknown strategy '%s' in '%s' (available: %s)",
			strategy, triggerStr, formatAvailableStrategies(availableStrategies))
	}

	// Validate cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cronSpec); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: invalid cron expression in '%s': %w", triggerStr, err)
	}

	return TriggerSpec{
		Strategy: strategy,
		CronSpec: cronSpec,
	}, nil
}

// formatAvailableStrategies formats the available strategies for error messages.
func formatAvailableStrategies(availableStrategies map[string]bool) string {
	strategies := make([]string, 0, len(availableStrategies))
	for s := range availableStrategies {
		strategies = append(strategies, s)
	}
	return strings.Join(strategies, ", ")
}

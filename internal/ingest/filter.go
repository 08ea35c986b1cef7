package ingest

import (
	"context"
	"fmt"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/pkg/cel"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
)

const (
	filterPassed   = "passed"
	filterFiltered = "filtered"
	filterError    = "error"
)

// SensorFilter decides whether an aggregated batch is forwarded. A nil
// *SensorFilter lets everything through.
type SensorFilter struct {
	filter  *cel.Filter
	onError string
	logger  logger.Logger
}

// NewSensorFilter compiles cfg.Expression. It returns nil, nil when no
// expression is configured.
func NewSensorFilter(cfg config.FilteringConfig, log logger.Logger) (*SensorFilter, error) {
	if cfg.Expression == "" {
		return nil, nil
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	filter, err := evaluator.NewFilter(cfg.Expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}

	onError := cfg.OnError
	if onError == "" {
		onError = config.FallbackAllow
	}

	return &SensorFilter{
		filter:  filter,
		onError: onError,
		logger:  log,
	}, nil
}

// Allow evaluates the filter. Evaluation errors resolve to the configured
// fallback and are never returned.
func (f *SensorFilter) Allow(ctx context.Context, in cel.Input) bool {
	if f == nil {
		return true
	}

	passed, err := f.filter.Match(ctx, in)
	if err != nil {
		metrics.IncFilterEvaluation(filterError)
		return f.handleEvaluationError(ctx, err)
	}

	if !passed {
		metrics.IncFilterEvaluation(filterFiltered)
		return false
	}

	metrics.IncFilterEvaluation(filterPassed)
	return true
}

func (f *SensorFilter) handleEvaluationError(ctx context.Context, err error) bool {
	switch f.onError {
	case config.FallbackDeny:
		metrics.IncFallbackUsage("ingest", "deny_on_error", "evaluation_error")
		f.logger.WarnwCtx(ctx, "filter evaluation error, denying message (fallback: deny)",
			"expression", f.filter.Expression(),
			"error", err,
		)
		return false
	default:
		metrics.IncFallbackUsage("ingest", "allow_on_error", "evaluation_error")
		f.logger.WarnwCtx(ctx, "filter evaluation error, allowing message (fallback: allow)",
			"expression", f.filter.Expression(),
			"error", err,
		)
		return true
	}
}

package gnocchi

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
	"github.com/larsks/gnocchi-senml-proxy/pkg/circuitbreaker"
	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
)

const breakerName = "gnocchi"

// CircuitBreakerBackend stops hammering an unreachable Gnocchi. Only
// connection failures trip the breaker; an open breaker is reported as a
// connection failure so callers keep retrying.
type CircuitBreakerBackend struct {
	backend Backend
	cb      *circuitbreaker.Wrapper
}

func NewCircuitBreakerBackend(backend Backend, cfg config.CircuitBreakerConfig) *CircuitBreakerBackend {
	if !cfg.Enabled {
		return &CircuitBreakerBackend{
			backend: backend,
			cb:      nil,
		}
	}

	cbConfig := circuitbreaker.DefaultConfig(breakerName)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || !errors.IsConnectionFailure(err)
	}

	return &CircuitBreakerBackend{
		backend: backend,
		cb:      circuitbreaker.NewWrapper(cbConfig),
	}
}

func (b *CircuitBreakerBackend) execute(ctx context.Context, fn func() error) error {
	if b.cb == nil {
		return fn()
	}

	_, err := b.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, fn()
	})

	b.cb.RecordRequest(err == nil || !errors.IsConnectionFailure(err))

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.ErrConnectionFailure.
			WithCause(err).
			WithDetail(errors.CauseKey, "circuit breaker is open for "+breakerName)
	}
	return err
}

func (b *CircuitBreakerBackend) SubmitMeasures(ctx context.Context, sensorID string, batch senml.Batch, createMetrics bool) error {
	return b.execute(ctx, func() error {
		return b.backend.SubmitMeasures(ctx, sensorID, batch, createMetrics)
	})
}

func (b *CircuitBreakerBackend) CreateResource(ctx context.Context, resourceType, id string) error {
	return b.execute(ctx, func() error {
		return b.backend.CreateResource(ctx, resourceType, id)
	})
}

func (b *CircuitBreakerBackend) CreateResourceType(ctx context.Context, name string) error {
	return b.execute(ctx, func() error {
		return b.backend.CreateResourceType(ctx, name)
	})
}

// Ping bypasses the breaker so health checks reflect the real backend.
func (b *CircuitBreakerBackend) Ping(ctx context.Context) error {
	return b.backend.Ping(ctx)
}

func (b *CircuitBreakerBackend) State() string {
	if b.cb == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

func (b *CircuitBreakerBackend) IsOpen() bool {
	if b.cb == nil {
		return false
	}
	return b.cb.IsOpen()
}

var _ Backend = (*CircuitBreakerBackend)(nil)

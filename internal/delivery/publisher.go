package delivery

import (
	"context"
	"time"

	"github.com/larsks/gnocchi-senml-proxy/internal/bridge"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
	"github.com/larsks/gnocchi-senml-proxy/pkg/retry"
)

// Backend is what the publisher needs from the metrics store.
type Backend interface {
	SubmitMeasures(ctx context.Context, sensorID string, batch senml.Batch, createMetrics bool) error
	CreateResource(ctx context.Context, resourceType, id string) error
	CreateResourceType(ctx context.Context, name string) error
}

// Publisher delivers one unit at a time to the backend.
//
// A submission that fails because the sensor's resource does not exist yet
// triggers one resource creation and one resubmission. Connection failures
// are retried at a fixed interval for as long as ctx allows. Every other
// failure drops the unit.
type Publisher struct {
	backend       Backend
	resourceType  string
	retryInterval time.Duration
	logger        logger.Logger
}

func NewPublisher(backend Backend, resourceType string, retryInterval time.Duration, log logger.Logger) *Publisher {
	return &Publisher{
		backend:       backend,
		resourceType:  resourceType,
		retryInterval: retryInterval,
		logger:        log,
	}
}

// Publish returns nil once the unit is stored or when there is nothing to
// store. A non-nil error means the unit was dropped, or ctx ended first, in
// which case ctx's error is returned.
func (p *Publisher) Publish(ctx context.Context, unit bridge.Unit) error {
	if unit.Batch.Empty() {
		p.logger.DebugwCtx(ctx, "nothing to publish")
		return nil
	}

	err := retry.Forever(ctx, p.retryInterval, func() error {
		return p.deliver(ctx, unit)
	}, func(attempt int, err error, next time.Duration) {
		metrics.IncRetryAttempt("delivery", errors.Kind(err))
		p.logger.WarnwCtx(ctx, "backend unreachable, will retry",
			"attempt", attempt,
			"retry_in", next.String(),
			"reason", errors.Reason(err),
		)
	})
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	p.logger.ErrorwCtx(ctx, "failed to publish measures",
		"error_code", errors.Kind(err),
		"reason", errors.Reason(err),
		"metrics", unit.Batch.Metrics(),
		"measures", unit.Batch.Measures(),
	)
	return err
}

// deliver runs one pass of submit, create, resubmit.
func (p *Publisher) deliver(ctx context.Context, unit bridge.Unit) error {
	err := p.backend.SubmitMeasures(ctx, unit.SensorID, unit.Batch, true)
	if err == nil || !errors.IsResourceMissing(err) {
		return err
	}

	p.logger.InfowCtx(ctx, "resource missing, creating it",
		"resource_type", p.resourceType,
		"reason", errors.Reason(err),
	)

	if err := p.createResource(ctx, unit.SensorID); err != nil {
		return err
	}

	err = p.backend.SubmitMeasures(ctx, unit.SensorID, unit.Batch, true)
	if errors.IsResourceMissing(err) {
		var appErr *errors.Error
		if errors.As(err, &appErr) {
			return appErr.WithDetail("attempt", 2)
		}
	}
	return err
}

// createResource treats an existing resource as success. When the resource
// type itself is unknown it is created and the resource creation retried.
func (p *Publisher) createResource(ctx context.Context, sensorID string) error {
	err := p.backend.CreateResource(ctx, p.resourceType, sensorID)
	switch {
	case err == nil:
		metrics.IncResourceCreated("resource", "created")
		p.logger.InfowCtx(ctx, "created resource", "resource_type", p.resourceType)
		return nil
	case errors.IsConflict(err):
		metrics.IncResourceCreated("resource", "exists")
		p.logger.DebugwCtx(ctx, "resource already exists")
		return nil
	case !errors.IsNotFound(err):
		metrics.IncResourceCreated("resource", "failed")
		return err
	}

	p.logger.WarnwCtx(ctx, "resource type missing, creating it",
		"resource_type", p.resourceType,
		"reason", errors.Reason(err),
	)
	if err := p.EnsureResourceType(ctx); err != nil {
		return err
	}

	err = p.backend.CreateResource(ctx, p.resourceType, sensorID)
	if err == nil || errors.IsConflict(err) {
		metrics.IncResourceCreated("resource", "created")
		return nil
	}
	metrics.IncResourceCreated("resource", "failed")
	return err
}

// EnsureResourceType creates the configured resource type if needed.
func (p *Publisher) EnsureResourceType(ctx context.Context) error {
	if err := p.backend.CreateResourceType(ctx, p.resourceType); err != nil {
		metrics.IncResourceCreated("resource_type", "failed")
		return err
	}
	metrics.IncResourceCreated("resource_type", "ensured")
	return nil
}

package delivery

import (
	"context"
	"time"

	"github.com/larsks/gnocchi-senml-proxy/internal/bridge"
	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/constants"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
	"github.com/larsks/gnocchi-senml-proxy/pkg/logging"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
	"github.com/larsks/gnocchi-senml-proxy/pkg/retry"
)

const (
	StatusDelivered = "delivered"
	StatusDropped   = "dropped"
	StatusEmpty     = "empty"
	StatusAborted   = "aborted"
)

// Worker is the single consumer of the bridge. Units are published strictly
// in queue order, each to completion before the next is dequeued.
type Worker struct {
	queue         bridge.Queue
	publisher     *Publisher
	bridgeType    string
	retryInterval time.Duration
	shutdownGrace time.Duration
	logger        logger.Logger
}

func NewWorker(queue bridge.Queue, publisher *Publisher, cfg config.DeliveryConfig, bridgeType string, log logger.Logger) *Worker {
	return &Worker{
		queue:         queue,
		publisher:     publisher,
		bridgeType:    bridgeType,
		retryInterval: cfg.RetryInterval,
		shutdownGrace: cfg.ShutdownGrace,
		logger:        log,
	}
}

// Run consumes the queue until ctx is done or the queue is closed. A unit in
// flight when ctx ends gets the shutdown grace period to finish before it is
// abandoned.
func (w *Worker) Run(ctx context.Context) error {
	w.ensureResourceType(ctx)

	w.logger.Info("delivery worker started")
	defer w.reportLeftovers()

	for {
		if ctx.Err() != nil {
			w.logger.Info("delivery worker stopped")
			return nil
		}

		unit, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, bridge.ErrClosed) {
				w.logger.Info("delivery worker stopped")
				return nil
			}

			w.logger.Errorw("failed to dequeue unit", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.retryInterval):
			}
			continue
		}

		w.process(ctx, unit)
	}
}

// MonitorQueue refreshes the queue depth gauge until ctx is done.
func (w *Worker) MonitorQueue(ctx context.Context) error {
	ticker := time.NewTicker(constants.QueueSizeInterval)
	defer ticker.Stop()

	for {
		if n, err := w.queue.Len(ctx); err == nil {
			metrics.SetMessageQueueSize(w.bridgeType, n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) process(ctx context.Context, unit bridge.Unit) {
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		w.logger.Warnw("shutdown requested, finishing in-flight unit",
			"sensor_id", unit.SensorID,
			"grace", w.shutdownGrace.String(),
		)
		timer := time.NewTimer(w.shutdownGrace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-pctx.Done():
		}
	})
	defer stop()

	pctx = logging.WithMessageID(pctx, unit.MessageID)
	pctx = logging.WithTopic(pctx, unit.Topic)
	pctx = logging.WithSensorID(pctx, unit.SensorID)

	if !unit.EnqueuedAt.IsZero() {
		metrics.ObserveMessageQueueWaitDuration(w.bridgeType, time.Since(unit.EnqueuedAt))
	}

	start := time.Now()
	err := w.publisher.Publish(pctx, unit)

	status := StatusDelivered
	switch {
	case unit.Batch.Empty():
		status = StatusEmpty
	case err != nil && pctx.Err() != nil:
		status = StatusAborted
		w.logger.ErrorwCtx(pctx, "abandoned in-flight unit at shutdown",
			"measures", unit.Batch.Measures(),
		)
	case err != nil:
		status = StatusDropped
	default:
		w.logger.DebugwCtx(pctx, "published measures", "measures", unit.Batch.Measures())
	}

	metrics.ObserveDeliveryDuration(time.Since(start), status)
}

// ensureResourceType creates the resource type up front. Failure is not
// fatal; the publisher creates it on demand.
func (w *Worker) ensureResourceType(ctx context.Context) {
	policy := retry.DefaultPolicy()
	policy.InitialInterval = w.retryInterval

	err := retry.RetryWithCallback(ctx, policy, func() error {
		return w.publisher.EnsureResourceType(ctx)
	}, func(attempt int, err error, next time.Duration) {
		w.logger.Warnw("failed to ensure resource type, retrying",
			"attempt", attempt,
			"retry_in", next.String(),
			"reason", errors.Reason(err),
		)
	})
	if err != nil && ctx.Err() == nil {
		w.logger.Warnw("could not ensure resource type, continuing",
			"resource_type", w.publisher.resourceType,
			"error_code", errors.Kind(err),
			"reason", errors.Reason(err),
		)
	}
}

func (w *Worker) reportLeftovers() {
	if w.bridgeType != config.BridgeMemory {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if n, err := w.queue.Len(ctx); err == nil && n > 0 {
		w.logger.Warnw("discarding queued units at shutdown", "units", n)
	}
}

package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/larsks/gnocchi-senml-proxy/internal/bridge"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
	"github.com/larsks/gnocchi-senml-proxy/internal/transport"
	"github.com/larsks/gnocchi-senml-proxy/pkg/cel"
	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
	"github.com/larsks/gnocchi-senml-proxy/pkg/logging"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
	"github.com/larsks/gnocchi-senml-proxy/pkg/tracing"
)

const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusEmpty    = "empty"
	StatusFiltered = "filtered"
	StatusFailed   = "failed"
)

// Handler turns inbound transport messages into delivery units.
type Handler struct {
	decoder    *senml.Decoder
	aggregator *senml.Aggregator
	filter     *SensorFilter
	queue      bridge.Queue
	logger     logger.Logger
}

// NewHandler wires the ingest path. filter may be nil.
func NewHandler(decoder *senml.Decoder, aggregator *senml.Aggregator, filter *SensorFilter, queue bridge.Queue, log logger.Logger) *Handler {
	return &Handler{
		decoder:    decoder,
		aggregator: aggregator,
		filter:     filter,
		queue:      queue,
		logger:     log,
	}
}

// Handle decodes msg, aggregates it and enqueues the resulting batch. It
// never talks to the backend; the only blocking call is the enqueue.
func (h *Handler) Handle(ctx context.Context, msg transport.Message) error {
	start := time.Now()

	messageID := uuid.New().String()
	ctx = logging.WithMessageID(ctx, messageID)
	ctx = logging.WithTopic(ctx, msg.Topic)

	ctx, span := tracing.GetTracer("senml-proxy/ingest").Start(ctx, "ingest.handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("message.id", messageID),
		attribute.String("message.topic", msg.Topic),
		attribute.Int("message.size", len(msg.Payload)),
	)

	status, err := h.handle(ctx, msg, messageID)
	span.SetAttributes(attribute.String("ingest.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	metrics.IncIngestMessage(status)
	metrics.ObserveIngestDuration(time.Since(start), status)
	return err
}

func (h *Handler) handle(ctx context.Context, msg transport.Message, messageID string) (string, error) {
	h.logger.DebugwCtx(ctx, "received message", "size", len(msg.Payload))

	pack, err := h.decoder.Decode(msg.Payload)
	if err != nil {
		h.logger.WarnwCtx(ctx, "discarding message",
			"error_code", errors.Kind(err),
			"reason", errors.Reason(err),
		)
		return StatusRejected, err
	}

	res := h.aggregator.Aggregate(ctx, pack)
	ctx = logging.WithSensorID(ctx, res.SensorID)
	metrics.AddRecordsSkipped(len(res.Skipped))

	if res.Batch.Empty() {
		h.logger.InfowCtx(ctx, "no measures in message, nothing to publish",
			"records", len(pack.Records),
		)
		return StatusEmpty, nil
	}

	in := cel.Input{
		SensorID: res.SensorID,
		Topic:    msg.Topic,
		Metrics:  res.Batch.Metrics(),
		Measures: res.Batch.Measures(),
	}
	if !h.filter.Allow(ctx, in) {
		h.logger.DebugwCtx(ctx, "message filtered", "metrics", in.Metrics)
		return StatusFiltered, nil
	}

	unit := bridge.Unit{
		SensorID:   res.SensorID,
		Batch:      res.Batch,
		Topic:      msg.Topic,
		MessageID:  messageID,
		EnqueuedAt: time.Now(),
	}
	if err := h.queue.Enqueue(ctx, unit); err != nil {
		h.logger.ErrorwCtx(ctx, "failed to enqueue measures", "error", err)
		return StatusFailed, err
	}

	metrics.AddMeasuresEnqueued(in.Measures)
	h.logger.DebugwCtx(ctx, "enqueued measures",
		"metrics", len(in.Metrics),
		"measures", in.Measures,
	)
	return StatusAccepted, nil
}

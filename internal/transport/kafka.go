package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/constants"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/pkg/logging"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
	"github.com/larsks/gnocchi-senml-proxy/pkg/tracing"
)

// KafkaSource reads SenML payloads from Kafka topics as a consumer group
// member. Offsets are committed once the handler has returned, whatever the
// outcome, since a payload that fails to decode never will.
type KafkaSource struct {
	cfg    config.KafkaConfig
	topics []string
	logger logger.Logger

	mu      sync.Mutex
	reader  *kafka.Reader
	wg      sync.WaitGroup
	healthy atomic.Bool
}

func NewKafkaSource(cfg config.KafkaConfig, topics []string, log logger.Logger) *KafkaSource {
	return &KafkaSource{
		cfg:    cfg,
		topics: topics,
		logger: log,
	}
}

func (s *KafkaSource) Name() string {
	return config.TransportKafka
}

func (s *KafkaSource) Start(ctx context.Context, handler HandlerFunc) error {
	s.logger.Infow("creating kafka reader",
		"topics", s.topics,
		"brokers", s.cfg.Brokers,
		"group_id", s.cfg.GroupID,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.cfg.Brokers,
		GroupID:     s.cfg.GroupID,
		GroupTopics: s.topics,
		MinBytes:    constants.KafkaMinBytes,
		MaxBytes:    constants.KafkaMaxBytes,
	})

	s.mu.Lock()
	s.reader = reader
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	consumeCtx := logging.WithServiceName(ctx, constants.ServiceName)
	s.logger.InfowCtx(consumeCtx, "started consuming")
	s.healthy.Store(true)
	metrics.SetTransportConnected(s.Name(), true)

	for {
		start := time.Now()
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.InfowCtx(consumeCtx, "stopped consuming", "reason", "context canceled")
				return nil
			}
			if errors.Is(err, io.EOF) {
				s.logger.InfowCtx(consumeCtx, "stopped consuming", "reason", "reader closed")
				return nil
			}

			if s.healthy.Swap(false) {
				metrics.SetTransportConnected(s.Name(), false)
				metrics.IncTransportConnectionEvent(s.Name(), "disconnected")
			}
			s.logger.ErrorwCtx(consumeCtx, "error fetching kafka message", "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(constants.KafkaFetchErrorDelay):
			}
			continue
		}

		if !s.healthy.Swap(true) {
			metrics.SetTransportConnected(s.Name(), true)
			metrics.IncTransportConnectionEvent(s.Name(), "reconnected")
			s.logger.WarnwCtx(consumeCtx, "kafka reader recovered")
		}

		metrics.IncKafkaMessagesRead(constants.ServiceName, m.Topic)
		metrics.ObserveKafkaReadDuration(constants.ServiceName, m.Topic, time.Since(start))
		metrics.ObserveKafkaMessageSize(constants.ServiceName, m.Topic, "in", len(m.Value))
		if lag := reader.Lag(); lag >= 0 {
			metrics.SetKafkaConsumerLag(constants.ServiceName, m.Topic, m.Partition, lag)
		}

		s.handle(consumeCtx, reader, m, handler)
	}
}

func (s *KafkaSource) handle(ctx context.Context, reader *kafka.Reader, m kafka.Message, handler HandlerFunc) {
	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)
	defer span.End()

	if traceID := tracing.TraceID(msgCtx); traceID != "" {
		msgCtx = logging.WithTraceID(msgCtx, traceID)
	}

	msg := Message{
		Topic:    m.Topic,
		Payload:  m.Value,
		Received: time.Now(),
	}

	if err := dispatch(msgCtx, s.Name(), handler, msg, s.logger); err != nil {
		s.logger.DebugwCtx(msgCtx, "message not accepted", "topic", m.Topic, "error", err)
	}

	if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		s.logger.ErrorwCtx(msgCtx, "failed to commit message",
			"error", err,
			"topic", m.Topic,
			"partition", m.Partition,
			"offset", m.Offset,
		)
	}
}

func (s *KafkaSource) Connected() bool {
	return s.healthy.Load()
}

func (s *KafkaSource) Close() error {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()

	var err error
	if reader != nil {
		err = reader.Close()
	}
	s.wg.Wait()
	s.healthy.Store(false)
	metrics.SetTransportConnected(s.Name(), false)
	return err
}

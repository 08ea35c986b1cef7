package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/constants"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/pkg/logging"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
	"github.com/larsks/gnocchi-senml-proxy/pkg/tracing"
)

const (
	natsReconnectWait = 2 * time.Second
	natsPingInterval  = 20 * time.Second
	natsDrainTimeout  = 5 * time.Second
)

// NATSSource subscribes to NATS subjects derived from the configured MQTT
// style topic filters.
type NATSSource struct {
	cfg    config.NATSConfig
	topics []string
	logger logger.Logger

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

func NewNATSSource(cfg config.NATSConfig, topics []string, log logger.Logger) *NATSSource {
	return &NATSSource{
		cfg:    cfg,
		topics: topics,
		logger: log,
	}
}

// SubjectFromTopic maps an MQTT topic filter onto a NATS subject:
// level separators become dots, + becomes * and # becomes >.
func SubjectFromTopic(topic string) string {
	levels := strings.Split(strings.Trim(topic, "/"), "/")
	for i, level := range levels {
		switch level {
		case "+":
			levels[i] = "*"
		case "#":
			levels[i] = ">"
		}
	}
	return strings.Join(levels, ".")
}

// TopicFromSubject is the inverse of SubjectFromTopic for concrete subjects.
func TopicFromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

func (s *NATSSource) Name() string {
	return config.TransportNATS
}

func (s *NATSSource) options() []nats.Option {
	opts := []nats.Option{
		nats.Name(constants.ServiceName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
		nats.PingInterval(natsPingInterval),
		nats.DrainTimeout(natsDrainTimeout),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(s.handleConnect),
		nats.ReconnectHandler(s.handleReconnect),
		nats.DisconnectErrHandler(s.handleDisconnect),
		nats.ClosedHandler(func(*nats.Conn) {
			s.logger.Infow("nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			s.logger.Errorw("nats async error", "subject", subject, "error", err)
		}),
	}

	if s.cfg.Username != "" {
		opts = append(opts, nats.UserInfo(s.cfg.Username, s.cfg.Password))
	}
	return opts
}

func (s *NATSSource) handleConnect(*nats.Conn) {
	metrics.SetTransportConnected(s.Name(), true)
	metrics.IncTransportConnectionEvent(s.Name(), "connected")
	s.logger.Infow("connected to nats server", "url", s.cfg.URL)
}

func (s *NATSSource) handleReconnect(conn *nats.Conn) {
	metrics.SetTransportConnected(s.Name(), true)
	metrics.IncTransportConnectionEvent(s.Name(), "reconnected")
	s.logger.Warnw("reconnected to nats server", "url", conn.ConnectedUrl())
}

func (s *NATSSource) handleDisconnect(_ *nats.Conn, err error) {
	metrics.SetTransportConnected(s.Name(), false)
	metrics.IncTransportConnectionEvent(s.Name(), "disconnected")
	s.logger.Warnw("disconnected from nats server", "url", s.cfg.URL, "error", err)
}

func (s *NATSSource) Start(ctx context.Context, handler HandlerFunc) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceName)

	s.logger.Infow("connecting to nats server", "url", s.cfg.URL)
	conn, err := nats.Connect(s.cfg.URL, s.options()...)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	cb := func(m *nats.Msg) {
		s.onMessage(ctx, m, handler)
	}

	for _, topic := range s.topics {
		subject := SubjectFromTopic(topic)

		var sub *nats.Subscription
		if s.cfg.QueueGroup != "" {
			sub, err = conn.QueueSubscribe(subject, s.cfg.QueueGroup, cb)
		} else {
			sub, err = conn.Subscribe(subject, cb)
		}
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}

		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()

		s.logger.Infow("subscribed to subject", "topic", topic, "subject", subject)
	}

	<-ctx.Done()
	return nil
}

func (s *NATSSource) onMessage(ctx context.Context, m *nats.Msg, handler HandlerFunc) {
	if m.Header != nil {
		ctx = tracing.ExtractHTTPHeaders(ctx, http.Header(m.Header))
		if traceID := tracing.TraceID(ctx); traceID != "" {
			ctx = logging.WithTraceID(ctx, traceID)
		}
	}

	msg := Message{
		Topic:    TopicFromSubject(m.Subject),
		Payload:  m.Data,
		Received: time.Now(),
	}

	if err := dispatch(ctx, s.Name(), handler, msg, s.logger); err != nil {
		s.logger.DebugwCtx(ctx, "message not accepted", "topic", msg.Topic, "error", err)
	}
}

func (s *NATSSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.conn.IsConnected()
}

func (s *NATSSource) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.subs = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	metrics.SetTransportConnected(s.Name(), false)
	if err := conn.Drain(); err != nil {
		conn.Close()
		return err
	}
	return nil
}

package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/constants"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/pkg/logging"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
)

const (
	DefaultMQTTPort = "1883"

	mqttSubscribeTimeout  = 10 * time.Second
	mqttDisconnectQuiesce = 250
)

// MQTTSource subscribes to topic filters on an MQTT broker. Subscriptions
// are re-established on every (re)connect.
type MQTTSource struct {
	cfg       config.MQTTConfig
	brokerURL string
	topics    []string
	logger    logger.Logger

	mu      sync.Mutex
	client  mqtt.Client
	ctx     context.Context
	handler HandlerFunc

	everConnected atomic.Bool
}

func NewMQTTSource(cfg config.MQTTConfig, topics []string, log logger.Logger) (*MQTTSource, error) {
	brokerURL, err := BrokerURL(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	return &MQTTSource{
		cfg:       cfg,
		brokerURL: brokerURL,
		topics:    topics,
		logger:    log,
	}, nil
}

// BrokerURL converts mqtt://host[:port] into the tcp:// form the client
// library expects. tcp:// is accepted as is; any other scheme is an error.
func BrokerURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid mqtt endpoint %q: %w", endpoint, err)
	}

	if u.Scheme != "mqtt" && u.Scheme != "tcp" {
		return "", fmt.Errorf("unknown scheme in %s", endpoint)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("missing host in %s", endpoint)
	}

	port := u.Port()
	if port == "" {
		port = DefaultMQTTPort
	}

	return "tcp://" + net.JoinHostPort(host, port), nil
}

func (s *MQTTSource) Name() string {
	return config.TransportMQTT
}

func (s *MQTTSource) Start(ctx context.Context, handler HandlerFunc) error {
	ctx = logging.WithServiceName(ctx, constants.ServiceName)

	s.mu.Lock()
	s.ctx = ctx
	s.handler = handler
	s.client = mqtt.NewClient(s.clientOptions())
	client := s.client
	s.mu.Unlock()

	s.logger.Infow("connecting to mqtt server", "endpoint", s.cfg.Endpoint)

	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", s.cfg.Endpoint, err)
		}
	case <-ctx.Done():
		return nil
	}

	<-ctx.Done()
	return nil
}

func (s *MQTTSource) clientOptions() *mqtt.ClientOptions {
	clientID := s.cfg.ClientID
	if clientID == "" {
		hostname, _ := os.Hostname()
		clientID = fmt.Sprintf("%s-%s-%d", constants.ServiceName, hostname, os.Getpid())
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.brokerURL).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetReconnectingHandler(s.onReconnecting)

	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if s.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(s.cfg.KeepAlive)
	}
	if s.cfg.ConnectRetryDelay > 0 {
		opts.SetConnectRetryInterval(s.cfg.ConnectRetryDelay)
		opts.SetMaxReconnectInterval(s.cfg.ConnectRetryDelay)
	}

	return opts
}

func (s *MQTTSource) onConnect(client mqtt.Client) {
	metrics.SetTransportConnected(s.Name(), true)

	if s.everConnected.Swap(true) {
		metrics.IncTransportConnectionEvent(s.Name(), "reconnected")
		s.logger.Warnw("reconnected to mqtt server", "endpoint", s.cfg.Endpoint)
	} else {
		metrics.IncTransportConnectionEvent(s.Name(), "connected")
		s.logger.Infow("connected to mqtt server", "endpoint", s.cfg.Endpoint)
	}

	filters := make(map[string]byte, len(s.topics))
	for _, topic := range s.topics {
		filters[topic] = s.cfg.QoS
	}

	token := client.SubscribeMultiple(filters, s.onMessage)
	if !token.WaitTimeout(mqttSubscribeTimeout) {
		s.logger.Errorw("timed out subscribing to topics", "topics", s.topics)
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Errorw("failed to subscribe to topics", "topics", s.topics, "error", err)
		return
	}

	for _, topic := range s.topics {
		s.logger.Infow("subscribed to topic", "topic", topic)
	}
}

func (s *MQTTSource) onConnectionLost(_ mqtt.Client, err error) {
	metrics.SetTransportConnected(s.Name(), false)
	metrics.IncTransportConnectionEvent(s.Name(), "disconnected")
	s.logger.Warnw("disconnected from mqtt server", "endpoint", s.cfg.Endpoint, "error", err)
}

func (s *MQTTSource) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	s.logger.Debugw("reconnecting to mqtt server", "endpoint", s.cfg.Endpoint)
}

func (s *MQTTSource) onMessage(_ mqtt.Client, m mqtt.Message) {
	s.mu.Lock()
	ctx, handler := s.ctx, s.handler
	s.mu.Unlock()

	if ctx == nil || handler == nil {
		return
	}

	msg := Message{
		Topic:    m.Topic(),
		Payload:  m.Payload(),
		Received: time.Now(),
	}

	if err := dispatch(ctx, s.Name(), handler, msg, s.logger); err != nil {
		s.logger.DebugwCtx(ctx, "message not accepted", "topic", msg.Topic, "error", err)
	}
}

func (s *MQTTSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnectionOpen()
}

func (s *MQTTSource) Close() error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client != nil {
		client.Disconnect(mqttDisconnectQuiesce)
		metrics.SetTransportConnected(s.Name(), false)
	}
	return nil
}

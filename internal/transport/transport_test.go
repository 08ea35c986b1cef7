package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	apperrors "github.com/larsks/gnocchi-senml-proxy/pkg/errors"
)

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{name: "default port", endpoint: "mqtt://broker", want: "tcp://broker:1883"},
		{name: "explicit port", endpoint: "mqtt://broker:8883", want: "tcp://broker:8883"},
		{name: "tcp scheme", endpoint: "tcp://10.0.0.1:1884", want: "tcp://10.0.0.1:1884"},
		{name: "ipv6", endpoint: "mqtt://[::1]", want: "tcp://[::1]:1883"},
		{name: "unknown scheme", endpoint: "http://broker", wantErr: true},
		{name: "no scheme", endpoint: "broker:1883", wantErr: true},
		{name: "missing host", endpoint: "mqtt://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BrokerURL(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBrokerURL_UnknownSchemeMessage(t *testing.T) {
	_, err := BrokerURL("ws://broker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scheme in ws://broker")
}

func TestSubjectFromTopic(t *testing.T) {
	tests := map[string]string{
		"sensor/#":               "sensor.>",
		"sensor/+/temperature":   "sensor.*.temperature",
		"sensor/device0":         "sensor.device0",
		"/leading/and/trailing/": "leading.and.trailing",
		"#":                      ">",
	}

	for topic, want := range tests {
		t.Run(topic, func(t *testing.T) {
			assert.Equal(t, want, SubjectFromTopic(topic))
		})
	}
}

func TestTopicFromSubject(t *testing.T) {
	assert.Equal(t, "sensor/device0", TopicFromSubject("sensor.device0"))
}

func TestDispatch_PassesMessage(t *testing.T) {
	var got Message
	handler := func(_ context.Context, msg Message) error {
		got = msg
		return nil
	}

	msg := Message{Topic: "sensor/a", Payload: []byte(`{}`)}
	err := dispatch(context.Background(), "test", handler, msg, logger.NopLogger())

	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestDispatch_ReturnsHandlerError(t *testing.T) {
	want := errors.New("boom")
	handler := func(context.Context, Message) error { return want }

	err := dispatch(context.Background(), "test", handler, Message{}, logger.NopLogger())
	assert.ErrorIs(t, err, want)
}

func TestDispatch_RecoversPanic(t *testing.T) {
	handler := func(context.Context, Message) error {
		panic("bad message")
	}

	var err error
	assert.NotPanics(t, func() {
		err = dispatch(context.Background(), "test", handler, Message{Topic: "x"}, logger.NopLogger())
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInternal.Code, apperrors.Kind(err))
	assert.Contains(t, err.Error(), "bad message")
}

func TestNewSource(t *testing.T) {
	log := logger.NopLogger()
	topics := []string{"sensor/#"}

	src, err := NewSource(config.TransportConfig{
		Type:   config.TransportMQTT,
		Topics: topics,
		MQTT:   config.MQTTConfig{Endpoint: "mqtt://localhost"},
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &MQTTSource{}, src)
	assert.Equal(t, config.TransportMQTT, src.Name())
	assert.False(t, src.Connected())

	src, err = NewSource(config.TransportConfig{
		Type:   config.TransportKafka,
		Topics: topics,
		Kafka:  config.KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"},
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &KafkaSource{}, src)
	assert.False(t, src.Connected())

	src, err = NewSource(config.TransportConfig{
		Type:   config.TransportNATS,
		Topics: topics,
		NATS:   config.NATSConfig{URL: "nats://localhost:4222"},
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &NATSSource{}, src)
	assert.False(t, src.Connected())
	assert.NoError(t, src.Close())

	_, err = NewSource(config.TransportConfig{Type: "carrier-pigeon"}, log)
	assert.Error(t, err)

	_, err = NewSource(config.TransportConfig{
		Type: config.TransportMQTT,
		MQTT: config.MQTTConfig{Endpoint: "http://localhost"},
	}, log)
	assert.Error(t, err)
}

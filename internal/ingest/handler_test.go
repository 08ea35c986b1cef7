package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/larsks/gnocchi-senml-proxy/internal/bridge"
	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
	"github.com/larsks/gnocchi-senml-proxy/internal/transport"
	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
)

const prefix = "urn:dev:"

type fixture struct {
	handler *Handler
	queue   *bridge.MemoryQueue
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, filtering config.FilteringConfig) *fixture {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	log := logger.NewFromCore(core)

	schema, err := senml.DefaultSchema()
	require.NoError(t, err)

	filter, err := NewSensorFilter(filtering, log)
	require.NoError(t, err)

	queue := bridge.NewMemoryQueue()
	t.Cleanup(func() { _ = queue.Close() })

	return &fixture{
		handler: NewHandler(senml.NewDecoder(schema, prefix), senml.NewAggregator(prefix, log), filter, queue, log),
		queue:   queue,
		logs:    logs,
	}
}

func (f *fixture) queued(t *testing.T) int {
	t.Helper()
	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	return n
}

func message(payload string) transport.Message {
	return transport.Message{Topic: "sensor/device0", Payload: []byte(payload)}
}

func TestHandle_Accepted(t *testing.T) {
	f := newFixture(t, config.FilteringConfig{})
	ctx := context.Background()

	err := f.handler.Handle(ctx, message(`{"bn":"urn:dev:device0","bt":100,"bv":5,"e":[{"n":"temp","t":10,"v":2},{"n":"temp","t":20,"v":3}]}`))
	require.NoError(t, err)
	require.Equal(t, 1, f.queued(t))

	unit, err := f.queue.Dequeue(ctx)
	require.NoError(t, err)

	assert.Equal(t, "device0", unit.SensorID)
	assert.Equal(t, "sensor/device0", unit.Topic)
	assert.NotEmpty(t, unit.MessageID)
	assert.False(t, unit.EnqueuedAt.IsZero())

	require.Len(t, unit.Batch["temp"], 2)
	first := unit.Batch["temp"][0]
	epoch, ok := first.Timestamp.Epoch()
	require.True(t, ok)
	assert.Equal(t, 110.0, epoch)
	v, ok := first.Value.Float()
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
}

func TestHandle_SchemaGate(t *testing.T) {
	payloads := map[string]string{
		"not json":         `{{{`,
		"missing e":        `{"bn":"urn:dev:device0"}`,
		"wrong value type": `{"bn":"urn:dev:device0","e":[{"n":"temp","v":"hot"}]}`,
		"missing name":     `{"bn":"urn:dev:device0","e":[{"v":1}]}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, config.FilteringConfig{})

			err := f.handler.Handle(context.Background(), message(payload))
			require.Error(t, err)
			assert.True(t, errors.IsDecodeError(err))
			assert.Equal(t, 0, f.queued(t))
			assert.Equal(t, 1, f.logs.FilterMessage("discarding message").Len())
		})
	}
}

func TestHandle_NamingSchemeGate(t *testing.T) {
	f := newFixture(t, config.FilteringConfig{})

	err := f.handler.Handle(context.Background(), message(`{"bn":"urn:foo:device0","e":[{"n":"temp","v":1}]}`))
	require.Error(t, err)
	assert.True(t, errors.IsUnknownNamingScheme(err))
	assert.Equal(t, 0, f.queued(t))
}

func TestHandle_EmptyBatchElided(t *testing.T) {
	f := newFixture(t, config.FilteringConfig{})

	err := f.handler.Handle(context.Background(), message(`{"bn":"urn:dev:device0","e":[{"n":"label","vs":"hello"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, f.queued(t))

	assert.Equal(t, 1, f.logs.FilterMessage("skipping record without value").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("no measures in message, nothing to publish").Len())
}

func TestHandle_LogsCarryContext(t *testing.T) {
	f := newFixture(t, config.FilteringConfig{})

	err := f.handler.Handle(context.Background(), message(`{"bn":"urn:dev:device0","e":[{"n":"label","vs":"hello"}]}`))
	require.NoError(t, err)

	entries := f.logs.FilterMessage("no measures in message, nothing to publish").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "device0", fields["sensor_id"])
	assert.Equal(t, "sensor/device0", fields["topic"])
	assert.NotEmpty(t, fields["message_id"])
}

func TestHandle_Filtered(t *testing.T) {
	f := newFixture(t, config.FilteringConfig{Expression: `sensor_id != "device0"`})

	err := f.handler.Handle(context.Background(), message(`{"bn":"urn:dev:device0","e":[{"n":"temp","v":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, f.queued(t))

	err = f.handler.Handle(context.Background(), message(`{"bn":"urn:dev:device1","e":[{"n":"temp","v":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, f.queued(t))
}

func TestHandle_FilterFallback(t *testing.T) {
	const payload = `{"bn":"urn:dev:device0","e":[{"n":"temp","v":1}]}`
	// Indexing past the end of the metric list fails at evaluation time.
	const expr = `metrics[3] == "temp"`

	t.Run("allow", func(t *testing.T) {
		f := newFixture(t, config.FilteringConfig{Expression: expr, OnError: config.FallbackAllow})
		require.NoError(t, f.handler.Handle(context.Background(), message(payload)))
		assert.Equal(t, 1, f.queued(t))
	})

	t.Run("deny", func(t *testing.T) {
		f := newFixture(t, config.FilteringConfig{Expression: expr, OnError: config.FallbackDeny})
		require.NoError(t, f.handler.Handle(context.Background(), message(payload)))
		assert.Equal(t, 0, f.queued(t))
	})
}

func TestHandle_EnqueueFailure(t *testing.T) {
	f := newFixture(t, config.FilteringConfig{})
	require.NoError(t, f.queue.Close())

	err := f.handler.Handle(context.Background(), message(`{"bn":"urn:dev:device0","e":[{"n":"temp","v":1}]}`))
	assert.ErrorIs(t, err, bridge.ErrClosed)
	assert.Equal(t, 1, f.logs.FilterMessage("failed to enqueue measures").Len())
}

func TestHandle_PreservesOrder(t *testing.T) {
	f := newFixture(t, config.FilteringConfig{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.handler.Handle(ctx, message(`{"bn":"urn:dev:`+id+`","e":[{"n":"temp","v":1}]}`)))
	}

	for _, want := range []string{"a", "b", "c"} {
		unit, err := f.queue.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, unit.SensorID)
	}
}

func TestNewSensorFilter(t *testing.T) {
	f, err := NewSensorFilter(config.FilteringConfig{}, logger.NopLogger())
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = NewSensorFilter(config.FilteringConfig{Expression: `sensor_id`}, logger.NopLogger())
	assert.Error(t, err)

	_, err = NewSensorFilter(config.FilteringConfig{Expression: `nope ==`}, logger.NopLogger())
	assert.Error(t, err)
}

package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/larsks/gnocchi-senml-proxy/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(""))
}

func TestNew(t *testing.T) {
	log, err := New("info", "json")
	require.NoError(t, err)
	assert.NotNil(t, log)

	log, err = New("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestContextFieldsArePrepended(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewFromCore(core).Named("ingest")

	ctx := logging.WithSensorID(context.Background(), "abc")
	ctx = logging.WithTopic(ctx, "sensor/a")
	log.WarnwCtx(ctx, "ignoring record", "metric", "temp")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "ingest", fields["component"])
	assert.Equal(t, "abc", fields["sensor_id"])
	assert.Equal(t, "sensor/a", fields["topic"])
	assert.Equal(t, "temp", fields["metric"])
}

func TestServiceNameFallback(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewFromCore(core)
	log.(*SugaredLogger).SetServiceName("senml-proxy")

	log.InfowCtx(context.Background(), "hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "senml-proxy", logs.All()[0].ContextMap()["service_name"])
}

package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithSensorID(ctx, "abc123")
	ctx = WithTopic(ctx, "sensor/kitchen")
	ctx = WithMessageID(ctx, "m-1")
	ctx = WithServiceName(ctx, "senml-proxy")

	assert.Equal(t, []interface{}{
		"service_name", "senml-proxy",
		"message_id", "m-1",
		"topic", "sensor/kitchen",
		"sensor_id", "abc123",
	}, GetLogFields(ctx))
}

func TestGettersOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetTraceID(ctx))
	assert.Equal(t, "", GetMessageID(ctx))
	assert.Equal(t, "", GetTopic(ctx))
	assert.Equal(t, "", GetSensorID(ctx))
}

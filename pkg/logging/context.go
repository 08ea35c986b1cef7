package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
	TopicKey       = "topic"
	SensorIDKey    = "sensor_id"
)

// fieldOrder fixes the order context fields appear in log lines.
var fieldOrder = []string{ServiceNameKey, MessageIDKey, TraceIDKey, TopicKey, SensorIDKey}

func with(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, ctxKey(key), value)
}

func get(ctx context.Context, key string) string {
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return with(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, ServiceNameKey, serviceName)
}

func WithTopic(ctx context.Context, topic string) context.Context {
	return with(ctx, TopicKey, topic)
}

func WithSensorID(ctx context.Context, sensorID string) context.Context {
	return with(ctx, SensorIDKey, sensorID)
}

func GetTraceID(ctx context.Context) string {
	return get(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return get(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return get(ctx, ServiceNameKey)
}

func GetTopic(ctx context.Context) string {
	return get(ctx, TopicKey)
}

func GetSensorID(ctx context.Context) string {
	return get(ctx, SensorIDKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 2*len(fieldOrder))

	for _, key := range fieldOrder {
		if v := get(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}

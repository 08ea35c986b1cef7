package gnocchi

import (
	"context"

	"github.com/larsks/gnocchi-senml-proxy/internal/senml"
)

// Backend is the subset of the Gnocchi API the proxy relies on.
type Backend interface {
	SubmitMeasures(ctx context.Context, sensorID string, batch senml.Batch, createMetrics bool) error
	CreateResource(ctx context.Context, resourceType, id string) error
	CreateResourceType(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

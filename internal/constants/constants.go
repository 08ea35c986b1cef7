package constants

import "time"

const (
	ServiceName = "senml-proxy"
)

const (
	KafkaMinBytes = 1
	KafkaMaxBytes = 10e6
	// KafkaFetchErrorDelay paces the reader after a fetch error.
	KafkaFetchErrorDelay = time.Second
)

const (
	DefaultHTTPTimeout = 30 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	// QueueSizeInterval is how often the bridge depth gauge is refreshed.
	QueueSizeInterval = 5 * time.Second
)

// Gnocchi API paths.
const (
	GnocchiBatchMeasuresPath = "/v1/batch/resources/metrics/measures"
	GnocchiResourcePath      = "/v1/resource/"
	GnocchiResourceTypePath  = "/v1/resource_type"
)

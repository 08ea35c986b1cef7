package config

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
	TransportNATS  = "nats"

	BridgeMemory = "memory"
	BridgeRedis  = "redis"

	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateLogging(cfg.Logging); err != nil {
		errors = append(errors, err)
	}

	if err := validateTransport(cfg.Transport); err != nil {
		errors = append(errors, err)
	}

	if err := validateGnocchi(cfg.Gnocchi); err != nil {
		errors = append(errors, err)
	}

	if err := validateDelivery(cfg.Delivery); err != nil {
		errors = append(errors, err)
	}

	if err := validateBridge(cfg.Bridge, cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateSenML(cfg.SenML); err != nil {
		errors = append(errors, err)
	}

	if err := validateFiltering(cfg.Filtering); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0) {
		return &ValidationError{
			Field:   "server.rate_limit",
			Message: "rps and burst must be positive when rate limiting is enabled",
		}
	}

	return nil
}

func validateLogging(cfg LoggingConfig) error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if cfg.Level != "" && !validLevels[strings.ToLower(cfg.Level)] {
		return &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", cfg.Level),
		}
	}

	if cfg.Format != "" && cfg.Format != "json" && cfg.Format != "console" {
		return &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: json, console)", cfg.Format),
		}
	}

	return nil
}

func validateTransport(cfg TransportConfig) error {
	if len(cfg.Topics) == 0 {
		return &ValidationError{
			Field:   "transport.topics",
			Message: "at least one topic is required",
		}
	}

	for i, topic := range cfg.Topics {
		if strings.TrimSpace(topic) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("transport.topics[%d]", i),
				Message: "topic cannot be empty",
			}
		}
	}

	switch cfg.Type {
	case TransportMQTT:
		return validateMQTT(cfg.MQTT)
	case TransportKafka:
		return validateKafka(cfg.Kafka)
	case TransportNATS:
		return validateNATS(cfg.NATS)
	case "":
		return &ValidationError{
			Field:   "transport.type",
			Message: "transport type is required",
		}
	default:
		return &ValidationError{
			Field:   "transport.type",
			Message: fmt.Sprintf("unknown transport type: %s (supported: mqtt, kafka, nats)", cfg.Type),
		}
	}
}

func validateMQTT(cfg MQTTConfig) error {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Hostname() == "" {
		return &ValidationError{
			Field:   "transport.mqtt.endpoint",
			Message: fmt.Sprintf("invalid endpoint: %q", cfg.Endpoint),
		}
	}

	if u.Scheme != "mqtt" && u.Scheme != "tcp" {
		return &ValidationError{
			Field:   "transport.mqtt.endpoint",
			Message: fmt.Sprintf("unknown scheme in %s (supported: mqtt, tcp)", cfg.Endpoint),
		}
	}

	if cfg.QoS > 2 {
		return &ValidationError{
			Field:   "transport.mqtt.qos",
			Message: fmt.Sprintf("qos must be 0, 1 or 2, got %d", cfg.QoS),
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "transport.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("transport.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "transport.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	return nil
}

func validateNATS(cfg NATSConfig) error {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Hostname() == "" {
		return &ValidationError{
			Field:   "transport.nats.url",
			Message: fmt.Sprintf("invalid url: %q", cfg.URL),
		}
	}

	if u.Scheme != "nats" {
		return &ValidationError{
			Field:   "transport.nats.url",
			Message: fmt.Sprintf("unknown scheme in %s (supported: nats)", cfg.URL),
		}
	}

	return nil
}

func validateGnocchi(cfg GnocchiConfig) error {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Hostname() == "" {
		return &ValidationError{
			Field:   "gnocchi.endpoint",
			Message: fmt.Sprintf("invalid endpoint: %q", cfg.Endpoint),
		}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{
			Field:   "gnocchi.endpoint",
			Message: fmt.Sprintf("unknown scheme in %s (supported: http, https)", cfg.Endpoint),
		}
	}

	if cfg.ResourceType == "" {
		return &ValidationError{
			Field:   "gnocchi.resource_type",
			Message: "resource type is required",
		}
	}

	if cfg.Timeout < 0 {
		return &ValidationError{
			Field:   "gnocchi.timeout",
			Message: "timeout must be non-negative",
		}
	}

	return nil
}

func validateDelivery(cfg DeliveryConfig) error {
	if cfg.RetryInterval <= 0 {
		return &ValidationError{
			Field:   "delivery.retry_interval",
			Message: "retry interval must be positive",
		}
	}

	if cfg.ShutdownGrace < 0 {
		return &ValidationError{
			Field:   "delivery.shutdown_grace",
			Message: "shutdown grace must be non-negative",
		}
	}

	return nil
}

func validateBridge(cfg BridgeConfig, db DatabaseConfig) error {
	switch cfg.Type {
	case BridgeMemory, "":
		return nil
	case BridgeRedis:
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "Redis host is required for the redis bridge",
			}
		}
		if db.Redis.Port < 1 || db.Redis.Port > 65535 {
			return &ValidationError{
				Field:   "database.redis.port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", db.Redis.Port),
			}
		}
		if cfg.Redis.Key == "" {
			return &ValidationError{
				Field:   "bridge.redis.key",
				Message: "queue key is required",
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "bridge.type",
			Message: fmt.Sprintf("unknown bridge type: %s (supported: memory, redis)", cfg.Type),
		}
	}
}

func validateSenML(cfg SenMLConfig) error {
	if cfg.NamePrefix == "" {
		return &ValidationError{
			Field:   "senml.name_prefix",
			Message: "name prefix is required",
		}
	}

	return nil
}

func validateFiltering(cfg FilteringConfig) error {
	if cfg.OnError != "" && cfg.OnError != FallbackAllow && cfg.OnError != FallbackDeny {
		return &ValidationError{
			Field:   "filtering.on_error",
			Message: fmt.Sprintf("invalid on_error value: %s (valid: allow, deny)", cfg.OnError),
		}
	}

	return nil
}

package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Transport      TransportConfig      `mapstructure:"transport"`
	Gnocchi        GnocchiConfig        `mapstructure:"gnocchi"`
	Delivery       DeliveryConfig       `mapstructure:"delivery"`
	Bridge         BridgeConfig         `mapstructure:"bridge"`
	Database       DatabaseConfig       `mapstructure:"database"`
	SenML          SenMLConfig          `mapstructure:"senml"`
	Filtering      FilteringConfig      `mapstructure:"filtering"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Enabled             bool            `mapstructure:"enabled"`
	Port                int             `mapstructure:"port"`
	ReadTimeoutSeconds  int             `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int             `mapstructure:"write_timeout_seconds"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TransportConfig struct {
	Type   string      `mapstructure:"type"`
	Topics []string    `mapstructure:"topics"`
	MQTT   MQTTConfig  `mapstructure:"mqtt"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
	NATS   NATSConfig  `mapstructure:"nats"`
}

type MQTTConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	ClientID          string        `mapstructure:"client_id"`
	QoS               byte          `mapstructure:"qos"`
	KeepAlive         time.Duration `mapstructure:"keep_alive"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type NATSConfig struct {
	URL        string `mapstructure:"url"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	QueueGroup string `mapstructure:"queue_group"`
}

type GnocchiConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	ResourceType  string        `mapstructure:"resource_type"`
	ArchivePolicy string        `mapstructure:"archive_policy"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type DeliveryConfig struct {
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

type BridgeConfig struct {
	Type  string            `mapstructure:"type"`
	Redis RedisBridgeConfig `mapstructure:"redis"`
}

type RedisBridgeConfig struct {
	Key         string        `mapstructure:"key"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SenMLConfig struct {
	SchemaFile string `mapstructure:"schema_file"`
	NamePrefix string `mapstructure:"name_prefix"`
}

type FilteringConfig struct {
	Expression string `mapstructure:"expression"`
	OnError    string `mapstructure:"on_error"` // "allow" or "deny" (default: "allow")
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile, nil)
}

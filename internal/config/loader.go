package config

import (
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag names shared with the command line.
const (
	FlagMQTTEndpoint    = "mqtt-endpoint"
	FlagMQTTUsername    = "mqtt-username"
	FlagMQTTPassword    = "mqtt-password"
	FlagTopic           = "topic"
	FlagGnocchiEndpoint = "gnocchi-endpoint"
	FlagGnocchiUsername = "gnocchi-username"
	FlagGnocchiPassword = "gnocchi-password"
	FlagVerbose         = "verbose"
	FlagDebug           = "debug"
	FlagQuiet           = "quiet"
)

var flagKeys = map[string]string{
	FlagMQTTEndpoint:    "transport.mqtt.endpoint",
	FlagMQTTUsername:    "transport.mqtt.username",
	FlagMQTTPassword:    "transport.mqtt.password",
	FlagTopic:           "transport.topics",
	FlagGnocchiEndpoint: "gnocchi.endpoint",
	FlagGnocchiUsername: "gnocchi.username",
	FlagGnocchiPassword: "gnocchi.password",
}

// RegisterFlags adds the proxy's configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagMQTTEndpoint, "m", "", "MQTT server endpoint (mqtt://host[:port])")
	fs.String(FlagMQTTUsername, "", "MQTT username")
	fs.String(FlagMQTTPassword, "", "MQTT password")
	fs.StringArrayP(FlagTopic, "t", nil, "topic filter to subscribe to (repeatable)")

	fs.StringP(FlagGnocchiEndpoint, "g", "", "Gnocchi endpoint (http://[user@]host[:port]/path)")
	fs.String(FlagGnocchiUsername, "", "Gnocchi username")
	fs.String(FlagGnocchiPassword, "", "Gnocchi password")

	fs.BoolP(FlagVerbose, "v", false, "log at info level")
	fs.Bool(FlagDebug, false, "log at debug level")
	fs.Bool(FlagQuiet, false, "log warnings and errors only")
}

// LoadConfig resolves configuration from defaults, the optional YAML file,
// the environment and finally any flags set on the command line.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if flags != nil {
		if err := bindFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Settings returns the resolved settings tree of the last LoadConfig call.
func Settings() map[string]interface{} {
	return viper.AllSettings()
}

func setDefaults() {
	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 10)
	viper.SetDefault("server.write_timeout_seconds", 10)
	viper.SetDefault("server.rate_limit.enabled", false)
	viper.SetDefault("server.rate_limit.rps", 10.0)
	viper.SetDefault("server.rate_limit.burst", 20)
	viper.SetDefault("server.rate_limit.cleanup_interval", 300)
	viper.SetDefault("server.rate_limit.max_age", 600)

	viper.SetDefault("logging.level", "warn")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("transport.type", TransportMQTT)
	viper.SetDefault("transport.topics", []string{"sensor/#"})
	viper.SetDefault("transport.mqtt.endpoint", "mqtt://localhost")
	viper.SetDefault("transport.mqtt.username", "")
	viper.SetDefault("transport.mqtt.password", "")
	viper.SetDefault("transport.mqtt.client_id", "")
	viper.SetDefault("transport.mqtt.qos", 0)
	viper.SetDefault("transport.mqtt.keep_alive", 30*time.Second)
	viper.SetDefault("transport.mqtt.connect_retry_delay", 5*time.Second)
	viper.SetDefault("transport.kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("transport.kafka.group_id", "senml-proxy")
	viper.SetDefault("transport.nats.url", "nats://localhost:4222")
	viper.SetDefault("transport.nats.username", "")
	viper.SetDefault("transport.nats.password", "")
	viper.SetDefault("transport.nats.queue_group", "")

	viper.SetDefault("gnocchi.endpoint", "http://localhost:8041")
	viper.SetDefault("gnocchi.username", currentUser())
	viper.SetDefault("gnocchi.password", "")
	viper.SetDefault("gnocchi.resource_type", "sensor")
	viper.SetDefault("gnocchi.archive_policy", "")
	viper.SetDefault("gnocchi.timeout", 30*time.Second)

	viper.SetDefault("delivery.retry_interval", 5*time.Second)
	viper.SetDefault("delivery.shutdown_grace", 10*time.Second)

	viper.SetDefault("bridge.type", BridgeMemory)
	viper.SetDefault("bridge.redis.key", "senml-proxy:units")
	viper.SetDefault("bridge.redis.poll_timeout", 5*time.Second)

	viper.SetDefault("database.redis.host", "")
	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.redis.password", "")
	viper.SetDefault("database.redis.db", 0)

	viper.SetDefault("senml.schema_file", "")
	viper.SetDefault("senml.name_prefix", "urn:dev:")

	viper.SetDefault("filtering.expression", "")
	viper.SetDefault("filtering.on_error", FallbackAllow)

	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60*time.Second)
	viper.SetDefault("circuit_breaker.timeout", 30*time.Second)
	viper.SetDefault("circuit_breaker.failure_ratio", 0.5)
	viper.SetDefault("circuit_breaker.min_requests", 3)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "senml-proxy")
	viper.SetDefault("tracing.otlp.endpoint", "localhost:4317")
	viper.SetDefault("tracing.otlp.insecure", true)
	viper.SetDefault("tracing.sampler.type", "always_on")
	viper.SetDefault("tracing.sampler.param", 1.0)
}

func bindEnvVariables() {
	viper.BindEnv("transport.mqtt.password", "TRANSPORT_MQTT_PASSWORD", "MQTT_PASSWORD")
	viper.BindEnv("transport.nats.password", "TRANSPORT_NATS_PASSWORD", "NATS_PASSWORD")
	viper.BindEnv("gnocchi.password", "GNOCCHI_PASSWORD")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func bindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return err
		}
	}

	// The verbosity switches collapse into a single level; the most verbose wins.
	for _, lf := range []struct {
		name  string
		level string
	}{
		{FlagQuiet, "warn"},
		{FlagVerbose, "info"},
		{FlagDebug, "debug"},
	} {
		if on, err := flags.GetBool(lf.name); err == nil && on {
			viper.Set("logging.level", lf.level)
		}
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if topicsEnv := viper.GetString("TRANSPORT_TOPICS"); topicsEnv != "" {
		if topics := splitList(topicsEnv); len(topics) > 0 {
			cfg.Transport.Topics = topics
		}
	}

	if brokersEnv := viper.GetString("TRANSPORT_KAFKA_BROKERS"); brokersEnv != "" {
		if brokers := splitList(brokersEnv); len(brokers) > 0 {
			cfg.Transport.Kafka.Brokers = brokers
		}
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

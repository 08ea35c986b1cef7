package transport

import (
	"fmt"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
)

func NewSource(cfg config.TransportConfig, log logger.Logger) (Source, error) {
	switch cfg.Type {
	case config.TransportMQTT, "":
		src, err := NewMQTTSource(cfg.MQTT, cfg.Topics, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.TransportKafka:
		return NewKafkaSource(cfg.Kafka, cfg.Topics, log), nil
	case config.TransportNATS:
		return NewNATSSource(cfg.NATS, cfg.Topics, log), nil
	default:
		return nil, fmt.Errorf("unknown transport type: %s", cfg.Type)
	}
}

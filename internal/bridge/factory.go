package bridge

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
)

// New builds the queue selected by cfg. The redis client is only required
// for the redis bridge.
func New(cfg config.BridgeConfig, rdb *redis.Client) (Queue, error) {
	switch cfg.Type {
	case config.BridgeMemory, "":
		return NewMemoryQueue(), nil
	case config.BridgeRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis bridge requires a redis client")
		}
		return NewRedisQueue(rdb, cfg.Redis.Key, cfg.Redis.PollTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported bridge type: %s", cfg.Type)
	}
}

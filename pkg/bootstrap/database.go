package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis connects to Redis. It returns nil, nil when no host is
// configured and nothing needs Redis.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	redisCfg := dc.Config.Database.Redis
	if redisCfg.Host == "" {
		if dc.Config.Bridge.Type == config.BridgeRedis {
			return nil, fmt.Errorf("redis bridge requires database.redis.host")
		}
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Infow("redis connected successfully", "addr", rdb.Options().Addr)
	return rdb, nil
}

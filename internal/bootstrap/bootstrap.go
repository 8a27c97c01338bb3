// Package bootstrap builds the collaborators both binaries share from a
// loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/config"
	"github.com/example/clictopay-gateway/internal/gateway"
	"github.com/example/clictopay-gateway/internal/payment"
	"github.com/example/clictopay-gateway/internal/queue"
	"github.com/example/clictopay-gateway/internal/store"
)

// OpenStore returns the configured order store and a func releasing it.
func OpenStore(ctx context.Context, cfg config.Store, log *zap.Logger) (store.Store, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("order store ready", zap.String("driver", cfg.Driver))
		return pg, pg.Close, nil

	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Info("order store ready", zap.String("driver", cfg.Driver), zap.Duration("ttl", cfg.RedisTTL))
		return store.NewRedis(rdb, cfg.RedisTTL), func() { _ = rdb.Close() }, nil

	case config.DriverMemory:
		log.Warn("in-memory order store: sessions are lost on restart and not shared between processes")
		return store.NewMemory(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func NewGatewayClient(cfg config.Config, log *zap.Logger) (*gateway.Client, error) {
	return gateway.New(
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithLanguage(cfg.Gateway.Language),
		gateway.WithLogger(log),
	)
}

// NewBus returns nil when no Kafka broker is configured.
func NewBus(cfg config.Config) *queue.Bus {
	if !cfg.KafkaEnabled() {
		return nil
	}
	return queue.New(cfg.Kafka.Brokers, cfg.Kafka.CheckTopic, cfg.Kafka.ResultTopic)
}

// Publisher keeps a nil bus a nil payment.Publisher.
func Publisher(bus *queue.Bus) payment.Publisher {
	if bus == nil {
		return nil
	}
	return bus
}

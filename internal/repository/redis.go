package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"netfinder/internal/model"
)

const resultKeyPrefix = "net:"

// RedisRepository is a shared result cache for several netfinder instances.
// Keys carry the dataset version, so instances loading a different dataset
// never read each other's results. A zero ttl stores entries without expiry.
type RedisRepository struct {
	client  *redis.Client
	version string
	ttl     time.Duration
	logger  *zap.Logger
}

func NewRedisRepository(client *redis.Client, version string, ttl time.Duration, logger *zap.Logger) *RedisRepository {
	return &RedisRepository{
		client:  client,
		version: version,
		ttl:     ttl,
		logger:  logger,
	}
}

func (r *RedisRepository) key(ip string) string {
	if r.version == "" {
		return resultKeyPrefix + ip
	}
	return resultKeyPrefix + r.version + ":" + ip
}

func (r *RedisRepository) SetResult(ctx context.Context, ip string, result *model.LookupResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	err = r.client.Set(ctx, r.key(ip), data, r.ttl).Err()
	if err != nil {
		r.logger.Error("failed to set result in cache",
			zap.String("ip", ip),
			zap.Error(err))
	}
	return err
}

// GetResult returns nil without error on a cache miss.
func (r *RedisRepository) GetResult(ctx context.Context, ip string) (*model.LookupResult, error) {
	data, err := r.client.Get(ctx, r.key(ip)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get result from cache",
			zap.String("ip", ip),
			zap.Error(err))
		return nil, err
	}

	var result model.LookupResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

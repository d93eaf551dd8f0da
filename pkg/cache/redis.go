// Redis 缓存实现
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/biovalue-ai/rnpv/pkg/config"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
	"github.com/biovalue-ai/rnpv/pkg/metrics"
)

// Store 键值缓存接口, 未命中返回 ("", nil)
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StreamPublisher Stream 写入接口
type StreamPublisher interface {
	XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error)
}

// RedisCache Redis 缓存客户端
type RedisCache struct {
	client *redis.Client
}

var (
	_ Store           = (*RedisCache)(nil)
	_ StreamPublisher = (*RedisCache)(nil)
)

// NewRedisCache 创建 Redis 缓存客户端
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Redis: %v", bverrors.ErrCacheUnavailable, err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient 包装已有客户端
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get 获取缓存
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	result, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.CacheOperations.WithLabelValues("get", "miss").Inc()
		return "", nil
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("get", "error").Inc()
		return "", fmt.Errorf("%w: %v", bverrors.ErrCacheUnavailable, err)
	}
	metrics.CacheOperations.WithLabelValues("get", "hit").Inc()
	return result, nil
}

// Set 设置缓存
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("set", "error").Inc()
		return fmt.Errorf("%w: %v", bverrors.ErrCacheUnavailable, err)
	}
	metrics.CacheOperations.WithLabelValues("set", "ok").Inc()
	return nil
}

// Delete 删除缓存
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", bverrors.ErrCacheUnavailable, err)
	}
	return nil
}

// XAdd 添加到 Stream
func (r *RedisCache) XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", bverrors.ErrCacheUnavailable, err)
	}
	return id, nil
}

// Ping 检查连接, 供健康检查使用
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 关闭连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}

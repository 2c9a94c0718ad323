package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache 基于Redis的共享向量缓存
// 多个分析进程可以复用同一份嵌入结果
type RedisCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisCache 连接Redis并创建向量缓存
func NewRedisCache(cfg Config) (VectorCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	return &RedisCache{client: client, namespace: cfg.Namespace, ttl: cfg.TTL}, nil
}

func (r *RedisCache) redisKey(key Key) string {
	if r.namespace == "" {
		return key.String()
	}
	return r.namespace + ":" + key.String()
}

// Lookup 读取并解码向量，损坏的条目会被删除
func (r *RedisCache) Lookup(ctx context.Context, key Key) ([]float32, bool, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	vec, err := decodeVector(data)
	if err != nil {
		r.client.Del(ctx, r.redisKey(key))
		return nil, false, err
	}
	return vec, true, nil
}

// Store 写入向量
func (r *RedisCache) Store(ctx context.Context, key Key, vec []float32) error {
	return r.client.Set(ctx, r.redisKey(key), encodeVector(vec), r.ttl).Err()
}

// Purge 删除命名空间下的全部键，未设置命名空间时清空当前数据库
func (r *RedisCache) Purge(ctx context.Context) error {
	if r.namespace == "" {
		return r.client.FlushDB(ctx).Err()
	}

	iter := r.client.Scan(ctx, 0, r.namespace+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close 关闭Redis连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func init() {
	Register("redis", NewRedisCache)
}

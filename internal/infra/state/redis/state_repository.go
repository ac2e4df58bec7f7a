// Package redisstate 提供 repository.StateRepository 接口的 Redis 实现。
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现。
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例。
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cv:" // 默认前缀 "cv:" (canvas)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisStateRepository) recordCacheKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:record", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", r.keyPrefix, key)
}

// GetRecordCache 尝试从缓存获取房间记录。
func (r *RedisStateRepository) GetRecordCache(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	key := r.recordCacheKey(roomID)
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get record cache for room %s from %s: %w", roomID, key, err)
	}
	var rec domain.RoomRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("redis: unmarshal record cache for room %s: %w", roomID, err)
	}
	return &rec, nil
}

// SetRecordCache 把房间记录写入缓存。
func (r *RedisStateRepository) SetRecordCache(ctx context.Context, rec *domain.RoomRecord, ttl time.Duration) error {
	key := r.recordCacheKey(rec.RoomID)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal record for cache (room %s, revision %d): %w", rec.RoomID, rec.Revision, err)
	}
	if err := r.client.Set(ctx, key, string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis: set record cache for room %s on %s: %w", rec.RoomID, key, err)
	}
	return nil
}

// DeleteRecordCache 使指定房间的缓存失效。
func (r *RedisStateRepository) DeleteRecordCache(ctx context.Context, roomID string) error {
	key := r.recordCacheKey(roomID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: delete record cache for room %s on %s: %w", roomID, key, err)
	}
	return nil
}

// CheckRateLimit 递增给定 key 的计数并检查是否超限。
// 使用 Pipeline 合并 INCR 和 EXPIRE 减少网络往返。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit pipeline for %s: %w", fullKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit incr result for %s: %w", fullKey, err)
	}
	return count > int64(limit), nil
}

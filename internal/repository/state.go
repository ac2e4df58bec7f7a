package repository

import (
	"context"
	"time"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

// StateRepository 定义了易失状态相关的操作，由 Redis 实现。
// 它在数据库前面充当房间记录的读写穿透缓存，并承载 HTTP 层的限流计数。
type StateRepository interface {
	// GetRecordCache 尝试从缓存获取房间记录。
	// 缓存未命中时返回 ErrNotFound。
	GetRecordCache(ctx context.Context, roomID string) (*domain.RoomRecord, error)

	// SetRecordCache 把房间记录写入缓存。ttl 为 0 表示不过期。
	SetRecordCache(ctx context.Context, rec *domain.RoomRecord, ttl time.Duration) error

	// DeleteRecordCache 使指定房间的缓存失效。
	DeleteRecordCache(ctx context.Context, roomID string) error

	// CheckRateLimit 递增给定 key 的计数并检查是否超限。
	// 返回 true 表示超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Package repository 定义存储层接口；具体实现位于 internal/infra 下。
package repository

import (
	"context"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

// RecordRepository 定义了房间记录在持久化存储（数据库）中的操作。
type RecordRepository interface {
	// Load 按房间 ID 读取持久化记录。
	// 记录不存在时返回 ErrRecordNotFound。
	Load(ctx context.Context, roomID string) (*domain.RoomRecord, error)

	// SaveIfNewer 写入房间记录（插入或覆盖同房间的旧记录）。
	// 已存储记录的 Revision 不低于待写入记录时返回 ErrStaleRevision，
	// 保证乱序执行的写任务不会用旧状态覆盖新状态。
	SaveIfNewer(ctx context.Context, rec *domain.RoomRecord) error
}

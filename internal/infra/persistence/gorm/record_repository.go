// Package gormpersistence 提供 repository 接口的 GORM/MySQL 实现。
package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
)

// GormRecordRepository 是 RecordRepository 接口的 GORM 实现。
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository 创建 GormRecordRepository 实例。
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRecordRepository")
	}
	return &GormRecordRepository{db: db}
}

// Load 实现按房间 ID 读取持久化记录。
func (r *GormRecordRepository) Load(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	var rec domain.RoomRecord
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, fmt.Errorf("gorm: load record for room %s: %w", roomID, err)
	}
	return &rec, nil
}

// SaveIfNewer 实现带版本保护的写入：只有待写记录的 Revision 高于已存储的
// 版本时才覆盖，防止乱序的后台写任务用旧状态覆盖新状态。
func (r *GormRecordRepository) SaveIfNewer(ctx context.Context, rec *domain.RoomRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.RoomRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("room_id = ?", rec.RoomID).
			First(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 首次写入
				return tx.Create(rec).Error
			}
			return err
		}
		if current.Revision >= rec.Revision {
			return repository.ErrStaleRevision
		}
		return tx.Model(&domain.RoomRecord{}).
			Where("room_id = ?", rec.RoomID).
			Updates(map[string]interface{}{
				"actions":           rec.Actions,
				"action_id_counter": rec.ActionIDCounter,
				"revision":          rec.Revision,
				"last_modified":     rec.LastModified,
			}).Error
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleRevision) {
			return repository.ErrStaleRevision
		}
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			// 两个事务同时首次写入同一房间，输家按过期写处理
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save record for room %s (revision %d): %w", rec.RoomID, rec.Revision, err)
	}
	return nil
}

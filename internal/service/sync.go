// Package service 承载同步引擎的业务逻辑和持久化适配器。
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/board"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/registry"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
)

// SyncService 是服务端权威的仲裁者：所有持久化变更（笔画、清空、
// 撤销、重做）都经由它应用到房间的操作日志，并在成功后触发持久化。
// 调用方（hub 的分发循环）保证同一房间的变更不会交错。
type SyncService struct {
	registry  *registry.Registry
	persister Persister
}

// NewSyncService 创建 SyncService 实例。
func NewSyncService(reg *registry.Registry, persister Persister) *SyncService {
	if reg == nil {
		panic("registry cannot be nil for SyncService")
	}
	if persister == nil {
		panic("persister cannot be nil for SyncService")
	}
	return &SyncService{
		registry:  reg,
		persister: persister,
	}
}

// Registry 暴露房间注册表，供 HTTP 元数据查询和后台回收任务使用。
func (s *SyncService) Registry() *registry.Registry {
	return s.registry
}

// Join 把一个连接加入房间。roomID 已规范化，为空时生成新 ID；
// 首次见到的房间 ID 会先同步尝试加载持久化记录——重启后用同一 ID
// 加入应透明地恢复之前的绘画历史。加载失败时房间退化为纯内存状态。
func (s *SyncService) Join(ctx context.Context, roomID, username string) (*registry.Room, *domain.User, error) {
	room, created := s.registry.CreateOrGet(roomID, func(id string) *board.Log {
		rec, err := s.persister.Load(ctx, id)
		if err != nil {
			if !errors.Is(err, repository.ErrRecordNotFound) {
				logrus.WithField("room_id", id).WithError(err).Error("Failed to load persisted record, starting with empty log")
			}
			return board.NewLog(id)
		}
		restored, err := board.Restore(rec)
		if err != nil {
			logrus.WithField("room_id", id).WithError(err).Error("Persisted record is corrupt, starting with empty log")
			return board.NewLog(id)
		}
		logrus.WithFields(logrus.Fields{
			"room_id":      id,
			"action_count": restored.ActionCount(),
		}).Info("Room history restored from persisted record")
		return restored
	})

	user := &domain.User{
		ID:       uuid.NewString(),
		Username: username,
		JoinedAt: time.Now().UTC(),
	}
	room.AddUser(user)

	logrus.WithFields(logrus.Fields{
		"room_id":  room.ID,
		"user_id":  user.ID,
		"username": user.Username,
		"created":  created,
	}).Info("User joined room")
	return room, user, nil
}

// Stroke 把一条完成的笔画追加到操作日志并触发持久化。
func (s *SyncService) Stroke(ctx context.Context, room *registry.Room, userID string, payload domain.StrokePayload) domain.Action {
	action := room.Log.Append(userID, domain.ActionStroke, payload)
	s.persistRoom(room)
	return action
}

// Clear 清空房间的操作日志并触发持久化。
func (s *SyncService) Clear(ctx context.Context, room *registry.Room, userID string) domain.Action {
	marker := room.Log.Clear(userID)
	s.persistRoom(room)
	logrus.WithFields(logrus.Fields{"room_id": room.ID, "user_id": userID}).Info("Canvas cleared")
	return marker
}

// Undo 按范围撤销最近的可撤销操作。no-op 时不持久化也不广播。
func (s *SyncService) Undo(ctx context.Context, room *registry.Room, scope board.UndoScope, requesterID string) (domain.Action, bool) {
	action, ok := room.Log.UndoLast(scope, requesterID)
	if !ok {
		return domain.Action{}, false
	}
	s.persistRoom(room)
	return action, true
}

// Redo 恢复最近一条被撤销的操作。重做没有作者范围（与撤销刻意不对称）。
func (s *SyncService) Redo(ctx context.Context, room *registry.Room) (domain.Action, bool) {
	action, ok := room.Log.RedoLast()
	if !ok {
		return domain.Action{}, false
	}
	s.persistRoom(room)
	return action, true
}

// Leave 把用户移出房间。房间空置时立即持久化最终状态并从注册表逐出
// （持久化记录留在磁盘上，之后用同一 ID 加入可以恢复历史）。
// 返回被移除的用户和剩余人数。
func (s *SyncService) Leave(ctx context.Context, room *registry.Room, userID string) (*domain.User, int, bool) {
	user, remaining, ok := room.RemoveUser(userID)
	if !ok {
		return nil, remaining, false
	}
	logrus.WithFields(logrus.Fields{
		"room_id":  room.ID,
		"user_id":  userID,
		"username": user.Username,
		"user_count": remaining,
	}).Info("User left room")

	if remaining == 0 {
		s.persistRoom(room)
		s.registry.Delete(room.ID)
	}
	return user, remaining, true
}

// FlushAll 同步落盘所有驻留房间，用于优雅关闭。
func (s *SyncService) FlushAll(ctx context.Context) {
	for _, room := range s.registry.Rooms() {
		rec, err := room.Log.Record()
		if err != nil {
			logrus.WithField("room_id", room.ID).WithError(err).Error("Failed to serialize room record during shutdown")
			continue
		}
		if err := s.persister.SaveSync(ctx, rec); err != nil {
			logrus.WithField("room_id", room.ID).WithError(err).Error("Failed to flush room record during shutdown")
		}
	}
}

// persistRoom 把房间日志的当前快照交给持久化适配器（即发即弃）。
func (s *SyncService) persistRoom(room *registry.Room) {
	room.Touch()
	rec, err := room.Log.Record()
	if err != nil {
		logrus.WithField("room_id", room.ID).WithError(err).Error("Failed to serialize room record")
		return
	}
	s.persister.SaveAsync(rec)
}

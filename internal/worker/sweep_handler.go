package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/registry"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
)

// RoomSweepHandler 处理周期性的空闲房间回收任务
type RoomSweepHandler struct {
	registry  *registry.Registry
	stateRepo repository.StateRepository
}

// NewRoomSweepHandler 创建 Handler 实例
func NewRoomSweepHandler(reg *registry.Registry, stateRepo repository.StateRepository) *RoomSweepHandler {
	if reg == nil {
		panic("Registry cannot be nil for RoomSweepHandler")
	}
	if stateRepo == nil {
		panic("StateRepository cannot be nil for RoomSweepHandler")
	}
	return &RoomSweepHandler{registry: reg, stateRepo: stateRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
// 只回收既没有在线用户、又超过空闲期的房间；它们的画布已经在
// 最后一人离开时持久化过，回收释放内存并使缓存失效——长期闲置的
// 房间不必在 Redis 里占着位置，下次加入会从数据库重新加载。
func (h *RoomSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	swept := h.registry.Sweep()
	if len(swept) == 0 {
		logrus.WithField("task_type", t.Type()).Debug("Room sweep: nothing to reclaim")
		return nil
	}

	for _, roomID := range swept {
		if err := h.stateRepo.DeleteRecordCache(ctx, roomID); err != nil {
			// 缓存失效失败不影响回收本身，条目到 TTL 后自然过期
			logrus.WithField("room_id", roomID).WithError(err).Warn("Room sweep: failed to invalidate record cache")
		}
	}

	logrus.WithFields(logrus.Fields{
		"task_type": t.Type(),
		"rooms":     swept,
	}).Info("Room sweep: idle rooms reclaimed")
	return nil
}

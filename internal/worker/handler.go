package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/tasks"
)

// RecordPersistHandler 处理房间记录持久化任务
type RecordPersistHandler struct {
	recordRepo repository.RecordRepository
}

// NewRecordPersistHandler 创建 Handler 实例
func NewRecordPersistHandler(recordRepo repository.RecordRepository) *RecordPersistHandler {
	if recordRepo == nil {
		panic("RecordRepository cannot be nil for RecordPersistHandler")
	}
	return &RecordPersistHandler{recordRepo: recordRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
// 记录携带入队时刻的 Revision：数据库里已有更新的版本时写入被
// 丢弃并视为成功，防止重试把画布回滚到旧状态。
func (h *RecordPersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
	})

	var payload tasks.RecordPersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	logCtx = logCtx.WithFields(logrus.Fields{
		"room_id":  payload.Record.RoomID,
		"revision": payload.Record.Revision,
	})

	if err := h.recordRepo.SaveIfNewer(ctx, &payload.Record); err != nil {
		if errors.Is(err, repository.ErrStaleRevision) {
			// 已经有更新的写入落库，这份记录作废
			logCtx.Info("Skipping stale room record")
			return nil
		}
		logCtx.WithError(err).Error("Failed to save room record")
		return fmt.Errorf("failed to save room record %s: %w", payload.Record.RoomID, err)
	}

	logCtx.Info("Room record persisted")
	return nil
}

// Package tasks 定义后台任务的类型常量和负载结构。
package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

// 任务类型常量。
const (
	// TypeRecordPersist 把一份房间记录写入数据库。
	TypeRecordPersist = "room:persist"
	// TypeRoomSweep 周期性回收空闲房间。
	TypeRoomSweep = "room:sweep"
)

// RecordPersistPayload 是房间记录持久化任务的负载。
// 记录携带快照时刻的 Revision，worker 据此丢弃过期写入。
type RecordPersistPayload struct {
	Record domain.RoomRecord
}

// NewRecordPersistTask 创建一个房间记录持久化任务。
func NewRecordPersistTask(rec domain.RoomRecord) (*asynq.Task, error) {
	payload, err := json.Marshal(RecordPersistPayload{Record: rec})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRecordPersist, payload), nil
}

// NewRoomSweepTask 创建一个空闲房间回收任务（无负载）。
func NewRoomSweepTask() *asynq.Task {
	return asynq.NewTask(TypeRoomSweep, nil)
}

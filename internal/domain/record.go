package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RoomRecord 是单个房间操作日志的持久化记录，按 RoomID 唯一。
// Revision 是房间内单调递增的变更计数，用来丢弃乱序到达的过期写入。
type RoomRecord struct {
	ID              uint      `gorm:"primaryKey"`
	RoomID          string    `gorm:"uniqueIndex:idx_room_id;size:191;not null" json:"roomId"`
	Actions         string    `gorm:"type:longtext;not null" json:"actions"`
	ActionIDCounter uint64    `gorm:"not null" json:"actionIdCounter"`
	Revision        uint64    `gorm:"not null;default:0" json:"revision"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
	LastModified    time.Time `gorm:"index" json:"lastModified"`
}

// ParseActions 将 Actions 字段 (JSON 字符串) 解析为 Action 切片。
// 空数据返回空切片而不是错误。
func (r *RoomRecord) ParseActions() ([]Action, error) {
	if r.Actions == "" || r.Actions == "null" {
		return []Action{}, nil
	}
	var actions []Action
	if err := json.Unmarshal([]byte(r.Actions), &actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record actions: %w", err)
	}
	if actions == nil {
		actions = []Action{}
	}
	return actions, nil
}

// SetActions 将 Action 切片序列化后写入 Actions 字段。
func (r *RoomRecord) SetActions(actions []Action) error {
	data, err := MarshalActions(actions)
	if err != nil {
		return err
	}
	r.Actions = data
	return nil
}

package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action 的 Kind 取值。clear 是硬重置标记，永远不参与撤销/重做。
const (
	ActionStroke = "stroke"
	ActionClear  = "clear"
)

// Point 表示一条笔画路径中的单个坐标点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokePayload 是 stroke 类型 Action 的具体数据。
// clear 类型的 Action 不携带 payload（序列化为空对象）。
type StrokePayload struct {
	Tool   string  `json:"tool"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
	Path   []Point `json:"path,omitempty"`
	StartX float64 `json:"startX"`
	StartY float64 `json:"startY"`
}

// Action 表示房间操作日志中的一条持久记录。
// 创建之后除 Undone 标志外不可变；ID 在房间内严格递增且永不复用。
type Action struct {
	ID        uint64        `json:"id"`
	UserID    string        `json:"userId"`
	Kind      string        `json:"type"`
	Payload   StrokePayload `json:"payload"`
	Timestamp time.Time     `json:"timestamp"`
	Undone    bool          `json:"undone"`
}

// StateSnapshot 是单个房间操作日志的完整只读视图。
// 既用于持久化，也用于发给新加入/恢复连接的客户端（state-sync、canvas-rebuild）。
type StateSnapshot struct {
	RoomID      string   `json:"roomId"`
	Actions     []Action `json:"actions"`
	ActionCount int      `json:"actionCount"`
}

// ActiveActions 返回快照中未被撤销的 Action，保持原始顺序。
// 这是"画面上应该有什么"的规范视图。
func (s StateSnapshot) ActiveActions() []Action {
	active := make([]Action, 0, len(s.Actions))
	for _, a := range s.Actions {
		if !a.Undone {
			active = append(active, a)
		}
	}
	return active
}

// MarshalActions 将一组 Action 序列化为 JSON 字符串，供 RoomRecord 存储。
func MarshalActions(actions []Action) (string, error) {
	if len(actions) == 0 {
		return "[]", nil
	}
	bytes, err := json.Marshal(actions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal actions: %w", err)
	}
	return string(bytes), nil
}

// Package protocol 定义 WebSocket 线上协议：每条消息是一个 JSON 对象，
// 由 type 字段区分。协议向前兼容：未知的消息类型被直接忽略。
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

// 客户端 → 服务端的消息类型。
const (
	TypeJoinRoom    = "join-room"
	TypeDrawStart   = "draw-start"
	TypeDrawMove    = "draw-move"
	TypeDrawEnd     = "draw-end"
	TypeDrawBatch   = "draw-batch"
	TypeCursorMove  = "cursor-move"
	TypeCanvasClear = "canvas-clear"
	TypeUndoGlobal  = "undo-global"
	TypeUndoMy      = "undo-my"
	TypeRedoGlobal  = "redo-global"
	TypePing        = "ping"
)

// 服务端 → 客户端的消息类型。
const (
	TypeRoomJoined    = "room-joined"
	TypeUserJoined    = "user-joined"
	TypeUserLeft      = "user-left"
	TypeCanvasRebuild = "canvas-rebuild"
	TypeStateSync     = "state-sync"
	TypePong          = "pong"
	TypeError         = "error"
)

// ErrMalformed 表示入站消息无法解析或缺少 type 字段。
var ErrMalformed = errors.New("protocol: malformed message")

// Envelope 只携带判别字段，用于先探测消息类型再做具体解析。
type Envelope struct {
	Type string `json:"type"`
}

// ParseType 解析入站原始消息的 type 字段。
func ParseType(raw []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type field", ErrMalformed)
	}
	return env.Type, nil
}

// JoinRoom 是加入房间请求。RoomID 为空时由服务端生成。
type JoinRoom struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId,omitempty"`
	Username string `json:"username"`
}

// DrawMove 是一次短暂的绘制事件（draw-start / draw-move 共用同一形状）。
// 服务端转发时填充 UserID 和 Username。
type DrawMove struct {
	Type     string  `json:"type"`
	Tool     string  `json:"tool"`
	Color    string  `json:"color"`
	Size     float64 `json:"size"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	UserID   string  `json:"userId,omitempty"`
	Username string  `json:"username,omitempty"`
}

// DrawEnd 表示一条笔画完成，携带完整路径，会被写入操作日志。
type DrawEnd struct {
	Type   string         `json:"type"`
	Tool   string         `json:"tool"`
	Color  string         `json:"color"`
	Size   float64        `json:"size"`
	Path   []domain.Point `json:"path"`
	StartX float64        `json:"startX"`
	StartY float64        `json:"startY"`
	UserID string         `json:"userId,omitempty"`
}

// Payload 把完成的笔画转换为日志载荷。
func (m *DrawEnd) Payload() domain.StrokePayload {
	return domain.StrokePayload{
		Tool:   m.Tool,
		Color:  m.Color,
		Size:   m.Size,
		Path:   m.Path,
		StartX: m.StartX,
		StartY: m.StartY,
	}
}

// DrawBatch 是高延迟客户端把多个 draw-move 合并后的传输形式。
// 批只是传输层优化，对操作日志没有影响。
type DrawBatch struct {
	Type  string     `json:"type"`
	Moves []DrawMove `json:"moves"`
}

// CursorMove 是纯短暂的光标位置广播。
type CursorMove struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	UserID string  `json:"userId,omitempty"`
}

// Ping 携带客户端时间戳，服务端原样回显为 Pong，仅用于 RTT 测量。
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// RoomJoined 是发给加入者本人的确认消息。
type RoomJoined struct {
	Type   string        `json:"type"`
	RoomID string        `json:"roomId"`
	UserID string        `json:"userId"`
	Users  []domain.User `json:"users"`
}

// UserPresence 用于 user-joined / user-left 两种广播。
type UserPresence struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	UserCount int    `json:"userCount"`
}

// CanvasClear 是全房间广播的硬重置事件（包含触发者自己）。
type CanvasClear struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// CanvasRebuild 携带完整快照（不是增量），发给房间内包括请求者在内的
// 所有连接，客户端丢弃本地画面并严格按快照重绘。
type CanvasRebuild struct {
	Type             string               `json:"type"`
	State            domain.StateSnapshot `json:"state"`
	UndoType         string               `json:"undoType"`
	AffectedActionID uint64               `json:"affectedActionId"`
	TriggeredBy      string               `json:"triggeredBy"`
}

// StateSync 把当前完整快照发给刚加入/恢复的客户端。
type StateSync struct {
	Type  string               `json:"type"`
	State domain.StateSnapshot `json:"state"`
}

// Pong 回显 Ping 的时间戳。
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// Error 把边界错误报告给客户端，连接保持打开。
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Marshal 序列化一条出站消息。出站结构都是本包定义的值类型，
// 序列化失败意味着编程错误，调用方可以记录后丢弃。
func Marshal(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal 解析一条入站消息到具体类型，失败统一归为 ErrMalformed。
func Unmarshal(raw []byte, msg interface{}) error {
	if err := json.Unmarshal(raw, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

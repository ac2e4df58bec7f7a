// Package hub 维护所有活跃的 WebSocket 连接，并把入站消息路由到
// 同步服务。Hub 的主循环是唯一会修改房间状态的 goroutine：注册、
// 注销和入站帧都在循环内按到达顺序串行处理，因此同一房间内
// 所有客户端观察到的操作顺序一致，不需要对日志再加协调。
package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/board"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/protocol"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	// 一条完整笔画最多 10000 个路径点，预留足够空间。
	maxMessageSize = 512 * 1024
)

// hubMessage 定义了在 Hub 内部通道传递的事件类型
type hubMessage struct {
	kind    string // "register", "unregister", "frame"
	client  *Client
	rawData []byte // 仅用于 frame（原始 WebSocket 消息）
}

// Hub 维护活跃客户端集合并协调消息处理
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan hubMessage

	// 客户端集合，按房间组织；只在 Run 循环内读写
	// map[roomID]map[*Client]bool
	rooms map[string]map[*Client]bool

	// 注入的 Service，处理业务逻辑
	sync *service.SyncService
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(sync *service.SyncService) *Hub {
	if sync == nil {
		panic("SyncService cannot be nil for Hub")
	}
	return &Hub{
		// 带缓冲的通道，大小可根据预期负载调整
		messageChan: make(chan hubMessage, 512),
		rooms:       make(map[string]map[*Client]bool),
		sync:        sync,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。所有事件都在循环内
// 串行处理：这保证了操作日志按到达顺序追加。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.kind {
		case "register":
			h.registerClient(msg.client)
		case "unregister":
			h.unregisterClient(msg.client)
		case "frame":
			// 必须在循环内同步处理，不能 go 出去：
			// 串行处理是房间状态一致性的依据
			h.handleFrame(msg.client, msg.rawData)
		default:
			log.Warnf("Hub: Received unknown event kind: %s", msg.kind)
		}
	}
	log.Info("Hub is shutting down...")
}

// registerClient 处理客户端注册。连接此时还未加入任何房间，
// 只有 join-room 成功后才会进入 rooms 集合。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logrus.WithFields(logrus.Fields{
		"remote": client.RemoteAddr(),
		"action": "registerClient",
	}).Info("Client connected")
}

// unregisterClient 处理客户端注销。无论是正常关闭、读错误还是
// 心跳超时导致的断开，清理路径完全相同。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	if client.closed {
		return // 重复注销（read/write pump 都可能触发）
	}
	client.closed = true

	logCtx := logrus.WithFields(logrus.Fields{
		"remote": client.RemoteAddr(),
		"action": "unregisterClient",
	})

	if client.joined {
		room := client.room
		logCtx = logCtx.WithFields(logrus.Fields{
			"room_id": room.ID,
			"user_id": client.user.ID,
		})

		// 从房间成员集合移除
		if roomClients, ok := h.rooms[room.ID]; ok {
			delete(roomClients, client)
			if len(roomClients) == 0 {
				delete(h.rooms, room.ID)
				logCtx.Info("Room empty, removed from Hub")
			}
		}

		// 业务层离开：最后一人离开时持久化并逐出房间
		left, remaining, ok := h.sync.Leave(context.Background(), room, client.user.ID)
		if ok {
			h.broadcastMessage(room.ID, protocol.UserPresence{
				Type:      protocol.TypeUserLeft,
				UserID:    left.ID,
				Username:  left.Username,
				UserCount: remaining,
			}, nil)
		}
		client.joined = false
	}

	// 关闭 send 通道使 WritePump 退出
	close(client.send)
	logCtx.Info("Client unregistered from Hub")
}

// handleFrame 处理一条入站的原始 WebSocket 消息。
// 边界策略：无法解析的消息回一条 error 但保持连接；坐标越界的
// 数据静默丢弃；未知的消息类型直接忽略（向前兼容）。
func (h *Hub) handleFrame(client *Client, raw []byte) {
	if client.closed {
		return // 注销事件之后还排着队的帧
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"remote":    client.RemoteAddr(),
		"operation": "handleFrame",
	})

	msgType, err := protocol.ParseType(raw)
	if err != nil {
		logCtx.WithError(err).Debug("Malformed inbound message")
		h.sendError(client, "malformed message")
		return
	}

	// join 和 ping 是仅有的两种允许在加入前发送的消息
	switch msgType {
	case protocol.TypeJoinRoom:
		h.handleJoin(client, raw)
		return
	case protocol.TypePing:
		h.handlePing(client, raw)
		return
	}

	if !client.joined {
		h.sendError(client, "join a room first")
		return
	}

	switch msgType {
	case protocol.TypeDrawStart, protocol.TypeDrawMove:
		h.handleDrawMove(client, raw, msgType)
	case protocol.TypeDrawEnd:
		h.handleDrawEnd(client, raw)
	case protocol.TypeDrawBatch:
		h.handleDrawBatch(client, raw)
	case protocol.TypeCursorMove:
		h.handleCursorMove(client, raw)
	case protocol.TypeCanvasClear:
		h.handleClear(client)
	case protocol.TypeUndoGlobal:
		h.handleUndo(client, board.UndoAny, protocol.TypeUndoGlobal)
	case protocol.TypeUndoMy:
		h.handleUndo(client, board.UndoOwn, protocol.TypeUndoMy)
	case protocol.TypeRedoGlobal:
		h.handleRedo(client)
	default:
		// 未知类型：忽略，保持向前兼容
		logCtx.WithField("type", msgType).Debug("Ignoring unknown message type")
	}
}

// handleJoin 处理加入房间请求。回复顺序是协议的一部分：
// 先 room-joined 确认，再（如果画布非空）state-sync 快照，
// 最后向房间内其他人广播 user-joined。
func (h *Hub) handleJoin(client *Client, raw []byte) {
	if client.joined {
		h.sendError(client, "already joined a room")
		return
	}

	var req protocol.JoinRoom
	if err := protocol.Unmarshal(raw, &req); err != nil {
		h.sendError(client, "malformed message")
		return
	}

	username := protocol.SanitizeUsername(req.Username)
	roomID := protocol.NormalizeRoomID(req.RoomID)

	room, user, err := h.sync.Join(context.Background(), roomID, username)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Join failed")
		h.sendError(client, "failed to join room")
		return
	}

	client.room = room
	client.user = user
	client.joined = true

	if _, ok := h.rooms[room.ID]; !ok {
		h.rooms[room.ID] = make(map[*Client]bool)
	}
	h.rooms[room.ID][client] = true

	logrus.WithFields(logrus.Fields{
		"room_id":  room.ID,
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("Client joined room")

	// 1. 加入确认
	h.sendMessage(client, protocol.RoomJoined{
		Type:   protocol.TypeRoomJoined,
		RoomID: room.ID,
		UserID: user.ID,
		Users:  room.Users(),
	})

	// 2. 画布非空才发快照，空画布不发 state-sync
	if room.Log.HasActiveActions() {
		h.sendMessage(client, protocol.StateSync{
			Type:  protocol.TypeStateSync,
			State: room.Log.Snapshot(),
		})
	}

	// 3. 通知房间内其他人
	h.broadcastMessage(room.ID, protocol.UserPresence{
		Type:      protocol.TypeUserJoined,
		UserID:    user.ID,
		Username:  user.Username,
		UserCount: room.UserCount(),
	}, client)
}

// handleDrawMove 转发短暂的绘制事件（draw-start / draw-move）。
// 这些事件只广播，不进操作日志。
func (h *Hub) handleDrawMove(client *Client, raw []byte, msgType string) {
	var m protocol.DrawMove
	if err := protocol.Unmarshal(raw, &m); err != nil {
		h.sendError(client, "malformed message")
		return
	}
	if !protocol.ValidateDrawMove(&m) {
		return // 越界静默丢弃
	}
	m.Type = msgType
	m.UserID = client.user.ID
	m.Username = client.user.Username
	h.broadcastMessage(client.room.ID, m, client)
}

// handleDrawEnd 处理完成的笔画：写入操作日志并广播给其他人。
func (h *Hub) handleDrawEnd(client *Client, raw []byte) {
	var m protocol.DrawEnd
	if err := protocol.Unmarshal(raw, &m); err != nil {
		h.sendError(client, "malformed message")
		return
	}
	if !protocol.ValidateDrawEnd(&m) {
		return
	}

	h.sync.Stroke(context.Background(), client.room, client.user.ID, m.Payload())

	m.UserID = client.user.ID
	h.broadcastMessage(client.room.ID, m, client)
}

// handleDrawBatch 拆开高延迟客户端合并的批，逐条作为 draw-move
// 转发。批只是传输层优化，接收方看到的和逐条发送没有区别。
func (h *Hub) handleDrawBatch(client *Client, raw []byte) {
	var batch protocol.DrawBatch
	if err := protocol.Unmarshal(raw, &batch); err != nil {
		h.sendError(client, "malformed message")
		return
	}
	for i := range batch.Moves {
		m := batch.Moves[i]
		if !protocol.ValidateDrawMove(&m) {
			continue // 逐条检查，坏的跳过
		}
		m.Type = protocol.TypeDrawMove
		m.UserID = client.user.ID
		m.Username = client.user.Username
		h.broadcastMessage(client.room.ID, m, client)
	}
}

func (h *Hub) handleCursorMove(client *Client, raw []byte) {
	var m protocol.CursorMove
	if err := protocol.Unmarshal(raw, &m); err != nil {
		h.sendError(client, "malformed message")
		return
	}
	if !protocol.ValidateCursorMove(&m) {
		return
	}
	m.UserID = client.user.ID
	h.broadcastMessage(client.room.ID, m, client)
}

// handleClear 处理画布硬重置。清空事件广播给包括触发者在内的
// 整个房间，所有客户端对齐到同一个空画布。
func (h *Hub) handleClear(client *Client) {
	h.sync.Clear(context.Background(), client.room, client.user.ID)
	h.broadcastMessage(client.room.ID, protocol.CanvasClear{
		Type:   protocol.TypeCanvasClear,
		UserID: client.user.ID,
	}, nil)
}

// handleUndo 处理撤销请求。成功时向全房间（含请求者）广播完整
// 快照重建；无可撤销目标时静默忽略。
func (h *Hub) handleUndo(client *Client, scope board.UndoScope, undoType string) {
	action, ok := h.sync.Undo(context.Background(), client.room, scope, client.user.ID)
	if !ok {
		return // no-op：不广播、不回错误
	}
	h.broadcastMessage(client.room.ID, protocol.CanvasRebuild{
		Type:             protocol.TypeCanvasRebuild,
		State:            client.room.Log.Snapshot(),
		UndoType:         undoType,
		AffectedActionID: action.ID,
		TriggeredBy:      client.user.ID,
	}, nil)
}

func (h *Hub) handleRedo(client *Client) {
	action, ok := h.sync.Redo(context.Background(), client.room)
	if !ok {
		return
	}
	h.broadcastMessage(client.room.ID, protocol.CanvasRebuild{
		Type:             protocol.TypeCanvasRebuild,
		State:            client.room.Log.Snapshot(),
		UndoType:         protocol.TypeRedoGlobal,
		AffectedActionID: action.ID,
		TriggeredBy:      client.user.ID,
	}, nil)
}

// handlePing 原样回显时间戳。允许在加入房间前使用，客户端靠它
// 测量 RTT 并调节发送策略。
func (h *Hub) handlePing(client *Client, raw []byte) {
	var p protocol.Ping
	if err := protocol.Unmarshal(raw, &p); err != nil {
		h.sendError(client, "malformed message")
		return
	}
	h.sendMessage(client, protocol.Pong{
		Type:      protocol.TypePong,
		Timestamp: p.Timestamp,
	})
}

// sendMessage 序列化并投递一条消息给单个客户端（非阻塞）。
func (h *Hub) sendMessage(client *Client, msg interface{}) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal outbound message")
		return
	}
	select {
	case client.send <- data:
	default:
		// 发送通道已满，客户端可能已断开；由 WritePump 负责善后
		logrus.WithField("remote", client.RemoteAddr()).Warn("Client send channel full, message dropped")
	}
}

func (h *Hub) sendError(client *Client, message string) {
	h.sendMessage(client, protocol.Error{Type: protocol.TypeError, Message: message})
}

// broadcastMessage 把消息发给指定房间的所有客户端，可排除发送者。
// exclude 为 nil 时发给全房间（clear 和 rebuild 用这种形式）。
func (h *Hub) broadcastMessage(roomID string, msg interface{}, exclude *Client) {
	roomClients, ok := h.rooms[roomID]
	if !ok || len(roomClients) == 0 {
		return
	}

	data, err := protocol.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	for client := range roomClients {
		if client == exclude {
			continue
		}
		// 非阻塞发送，避免单个慢客户端阻塞整个循环
		select {
		case client.send <- data:
		default:
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"remote":  client.RemoteAddr(),
			}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}

// Register 把一个新连接交给 Hub 管理并启动它的读写泵。
func (h *Hub) Register(client *Client) {
	h.messageChan <- hubMessage{kind: "register", client: client}
	client.Run()
}

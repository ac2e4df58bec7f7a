package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/registry"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// room / user / joined / closed 只在 Hub 的 Run 循环内读写，
// 读写泵不触碰它们，所以不需要锁。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // 向此客户端发送消息的缓冲通道

	// 连接级状态：未加入 → 已加入 → 已关闭
	room   *registry.Room
	user   *domain.User
	joined bool
	closed bool
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// RemoteAddr 返回对端地址，用于日志
func (c *Client) RemoteAddr() string {
	if c.conn == nil {
		return "unknown"
	}
	return c.conn.RemoteAddr().String()
}

// ReadPump 把消息从 WebSocket 连接泵送到 Hub 的事件通道。
// 它在自己的 goroutine 中运行。退出时（无论正常关闭、读错误还是
// 心跳超时）都走同一条注销路径。
func (c *Client) ReadPump() {
	defer func() {
		// 清理操作：请求 Hub 注销此客户端
		select {
		case c.hub.messageChan <- hubMessage{kind: "unregister", client: c}:
		case <-time.After(1 * time.Second):
			logrus.WithField("remote", c.RemoteAddr()).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithField("remote", c.RemoteAddr()).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	// 心跳：pongWait 内没有收到 Pong 就视为失联，读循环超时退出
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("remote", c.RemoteAddr())
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break // 触发 defer 中的注销
		}

		// 只处理文本消息
		if messageType != websocket.TextMessage {
			logrus.WithField("remote", c.RemoteAddr()).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		// 非阻塞发送到 Hub，如果 Hub 处理不过来则丢弃
		select {
		case c.hub.messageChan <- hubMessage{kind: "frame", client: c, rawData: message}:
		default:
			// 这种情况通常表示系统负载过高或 Hub 循环有阻塞
			logrus.WithField("remote", c.RemoteAddr()).Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 把消息从 Client 的 send 通道泵送到 WebSocket 连接，
// 并按 pingPeriod 发送 Ping 保活。它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("remote", c.RemoteAddr()).Info("writePump exited")
		// 不需要在这里注销，readPump 退出会处理
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭（注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("remote", c.RemoteAddr()).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// Ping 发送失败通常意味着连接已断开
				logrus.WithField("remote", c.RemoteAddr()).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}

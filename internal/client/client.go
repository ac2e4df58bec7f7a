package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/protocol"
)

// 重连参数：初始 1 秒，指数翻倍，最多尝试 5 次后放弃。
const (
	reconnectBaseDelay   = 1 * time.Second
	maxReconnectAttempts = 5
)

// ErrClientClosed 表示客户端已主动关闭。
var ErrClientClosed = errors.New("client: closed")

// reconnectBackOff 返回一次连接过程的退避序列：初始 1 秒、指数翻倍。
// WithMaxRetries 计的是首次拨号之后的重试次数，减一使总拨号次数
// 恰好是 maxReconnectAttempts。
func reconnectBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectBaseDelay
	bo.Multiplier = 2
	return backoff.WithMaxRetries(bo, maxReconnectAttempts-1)
}

// Client 是带自动重连的画布 WebSocket 客户端。
// 断线重连后它用同样的房间号和用户名重新加入：服务端把重连当作
// 全新加入处理，会分配新的用户 ID 并重发完整快照。
type Client struct {
	url      string
	roomID   string
	username string

	monitor     *LatencyMonitor
	transmitter *Transmitter

	// OnMessage 在收到每条服务端消息时回调（pong 除外，pong 被
	// 客户端内部消费用于 RTT 测量）。可以为 nil。
	OnMessage func(msgType string, raw []byte)

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewClient 创建客户端。roomID 为空时由服务端生成房间。
func NewClient(url, roomID, username string) *Client {
	c := &Client{
		url:      url,
		roomID:   roomID,
		username: username,
		monitor:  NewLatencyMonitor(),
		done:     make(chan struct{}),
	}
	c.transmitter = NewTransmitter(c.monitor, c.writeJSON)
	return c
}

// Monitor 暴露 RTT 监视器（只读用途）。
func (c *Client) Monitor() *LatencyMonitor { return c.monitor }

// RoomID 返回当前房间号（加入成功后更新为服务端确认的值）。
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// QueueMove 把一条绘制事件交给传输器，由它按链路质量调度发送。
func (c *Client) QueueMove(m protocol.DrawMove) { c.transmitter.QueueMove(m) }

// EndStroke 结束当前笔画：传输器会先刷出积攒的批再发送。
func (c *Client) EndStroke(m protocol.DrawEnd) { c.transmitter.EndStroke(m) }

// Run 连接服务端并保持会话直到 ctx 取消或 Close 被调用。
// 读循环失败时自动重连；重连耗尽后返回最后一次错误。
func (c *Client) Run(ctx context.Context) error {
	go c.transmitter.Run()
	defer c.transmitter.Close()

	for {
		if err := c.connect(ctx); err != nil {
			return err
		}

		err := c.readLoop(ctx)
		if errors.Is(err, ErrClientClosed) || ctx.Err() != nil {
			return nil
		}
		logrus.WithError(err).Warn("Client: connection lost, reconnecting...")
	}
}

// Close 主动关闭客户端。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
}

// connect 建立连接、加入房间并补发一次立即 ping。
// 失败时按指数退避重试，最多 maxReconnectAttempts 次。
func (c *Client) connect(ctx context.Context) error {
	dial := func() error {
		select {
		case <-c.done:
			return backoff.Permanent(ErrClientClosed)
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			logrus.WithError(err).Warn("Client: dial failed")
			return err
		}

		c.writeMu.Lock()
		c.conn = conn
		c.writeMu.Unlock()
		return nil
	}

	if err := backoff.Retry(dial, backoff.WithContext(reconnectBackOff(), ctx)); err != nil {
		return fmt.Errorf("client: connect: %w", err)
	}

	if err := c.writeJSON(protocol.JoinRoom{
		Type:     protocol.TypeJoinRoom,
		RoomID:   c.RoomID(),
		Username: c.username,
	}); err != nil {
		return fmt.Errorf("client: join: %w", err)
	}

	// 立即发一次 ping，让发送策略尽快对齐真实链路
	c.sendPing()
	return nil
}

// readLoop 处理入站消息并驱动周期 ping，直到连接断开。
func (c *Client) readLoop(ctx context.Context) error {
	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(pingDone)

	for {
		select {
		case <-c.done:
			return ErrClientClosed
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return ErrClientClosed
			default:
				return err
			}
		}
		c.handleMessage(raw)
	}
}

// pingLoop 按固定周期发送 ping，直到当前连接的读循环退出。
func (c *Client) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.sendPing()
		}
	}
}

func (c *Client) sendPing() {
	msg := protocol.Ping{Type: protocol.TypePing, Timestamp: time.Now().UnixMilli()}
	if err := c.writeJSON(msg); err != nil {
		logrus.WithError(err).Debug("Client: ping send failed")
	}
}

// handleMessage 分发一条服务端消息。pong 在这里消费掉，
// room-joined 用来记住服务端生成的房间号（重连时复用）。
func (c *Client) handleMessage(raw []byte) {
	msgType, err := protocol.ParseType(raw)
	if err != nil {
		logrus.WithError(err).Debug("Client: malformed server message")
		return
	}

	switch msgType {
	case protocol.TypePong:
		var pong protocol.Pong
		if err := protocol.Unmarshal(raw, &pong); err != nil {
			return
		}
		rtt := time.Since(time.UnixMilli(pong.Timestamp))
		c.monitor.Observe(rtt)
		return
	case protocol.TypeRoomJoined:
		var joined protocol.RoomJoined
		if err := protocol.Unmarshal(raw, &joined); err == nil && joined.RoomID != "" {
			c.mu.Lock()
			c.roomID = joined.RoomID
			c.mu.Unlock()
		}
	}

	if c.OnMessage != nil {
		c.OnMessage(msgType, raw)
	}
}

// writeJSON 串行化对连接的写入；conn 在重连时会被替换。
func (c *Client) writeJSON(msg interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("client: not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

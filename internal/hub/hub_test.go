package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/registry"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/service"
)

// nullPersister 让 hub 测试不依赖存储：没有历史记录，写入被忽略。
type nullPersister struct {
	loadRec *domain.RoomRecord
}

func (p *nullPersister) Load(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	if p.loadRec != nil {
		return p.loadRec, nil
	}
	return nil, repository.ErrRecordNotFound
}
func (p *nullPersister) SaveAsync(rec *domain.RoomRecord)                       {}
func (p *nullPersister) SaveSync(ctx context.Context, rec *domain.RoomRecord) error { return nil }

func newTestHub(p service.Persister) *Hub {
	return NewHub(service.NewSyncService(registry.NewRegistry(0), p))
}

// newTestClient 构造一个没有底层连接的客户端；测试直接驱动
// handleFrame，出站消息从 send 通道取。
func newTestClient(h *Hub) *Client {
	return &Client{hub: h, send: make(chan []byte, 64)}
}

// recv 取出客户端的下一条出站消息并解析成 map；没有消息时失败。
func recv(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	default:
		t.Fatal("expected an outbound message, send channel is empty")
		return nil
	}
}

// assertSilent 断言客户端没有收到任何消息。
func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("expected no outbound message, got: %s", raw)
	default:
	}
}

func join(t *testing.T, h *Hub, c *Client, roomID, username string) string {
	t.Helper()
	h.handleFrame(c, []byte(`{"type":"join-room","roomId":"`+roomID+`","username":"`+username+`"}`))
	require.True(t, c.joined, "join-room must leave the client in joined state")
	msg := recv(t, c)
	require.Equal(t, "room-joined", msg["type"])
	return msg["userId"].(string)
}

func TestJoin_ReplyOrderingWithHistory(t *testing.T) {
	rec := &domain.RoomRecord{RoomID: "ROOM1", ActionIDCounter: 1, Revision: 1}
	require.NoError(t, rec.SetActions([]domain.Action{
		{ID: 1, UserID: "old", Kind: domain.ActionStroke, Timestamp: time.Now().UTC()},
	}))
	h := newTestHub(&nullPersister{loadRec: rec})

	a := newTestClient(h)
	h.handleFrame(a, []byte(`{"type":"join-room","roomId":"ROOM1","username":"alice"}`))

	// 画布非空：确认在前，快照紧随其后
	first := recv(t, a)
	assert.Equal(t, "room-joined", first["type"])
	assert.Equal(t, "ROOM1", first["roomId"])
	second := recv(t, a)
	assert.Equal(t, "state-sync", second["type"])
	assertSilent(t, a)

	// 第二个用户加入：自己收确认+快照，先到者收 user-joined
	b := newTestClient(h)
	h.handleFrame(b, []byte(`{"type":"join-room","roomId":"ROOM1","username":"bob"}`))
	assert.Equal(t, "room-joined", recv(t, b)["type"])
	assert.Equal(t, "state-sync", recv(t, b)["type"])

	presence := recv(t, a)
	assert.Equal(t, "user-joined", presence["type"])
	assert.Equal(t, "bob", presence["username"])
	assert.Equal(t, float64(2), presence["userCount"])
}

func TestJoin_EmptyCanvasSkipsStateSync(t *testing.T) {
	h := newTestHub(&nullPersister{})
	c := newTestClient(h)

	h.handleFrame(c, []byte(`{"type":"join-room","roomId":"ROOM1","username":"alice"}`))
	assert.Equal(t, "room-joined", recv(t, c)["type"])
	assertSilent(t, c)
}

func TestHandleFrame_MalformedRepliesErrorAndKeepsConnection(t *testing.T) {
	h := newTestHub(&nullPersister{})
	c := newTestClient(h)

	h.handleFrame(c, []byte(`{not json`))
	msg := recv(t, c)
	assert.Equal(t, "error", msg["type"])
	assert.False(t, c.closed)

	// 连接保持可用：接着的合法 join 正常生效
	join(t, h, c, "ROOM1", "alice")
}

func TestHandleFrame_PreJoinMessagesRejected(t *testing.T) {
	h := newTestHub(&nullPersister{})
	c := newTestClient(h)

	h.handleFrame(c, []byte(`{"type":"draw-move","tool":"pen","x":1,"y":2}`))
	assert.Equal(t, "error", recv(t, c)["type"])

	// ping 是加入前允许的
	h.handleFrame(c, []byte(`{"type":"ping","timestamp":42}`))
	pong := recv(t, c)
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, float64(42), pong["timestamp"])
}

func TestHandleFrame_OutOfBoundsSilentlyDropped(t *testing.T) {
	h := newTestHub(&nullPersister{})
	a, b := newTestClient(h), newTestClient(h)
	join(t, h, a, "ROOM1", "alice")
	join(t, h, b, "ROOM1", "bob")
	recv(t, a) // user-joined for bob

	h.handleFrame(a, []byte(`{"type":"draw-move","tool":"pen","x":20000,"y":1}`))
	assertSilent(t, a)
	assertSilent(t, b)
}

func TestHandleFrame_UnknownTypeIgnored(t *testing.T) {
	h := newTestHub(&nullPersister{})
	c := newTestClient(h)
	join(t, h, c, "ROOM1", "alice")

	h.handleFrame(c, []byte(`{"type":"hologram-sync","x":1}`))
	assertSilent(t, c)
	assert.False(t, c.closed)
}

func TestDrawMove_RebroadcastExcludesSender(t *testing.T) {
	h := newTestHub(&nullPersister{})
	a, b := newTestClient(h), newTestClient(h)
	userA := join(t, h, a, "ROOM1", "alice")
	join(t, h, b, "ROOM1", "bob")
	recv(t, a) // user-joined

	h.handleFrame(a, []byte(`{"type":"draw-move","tool":"pen","color":"#fff","size":2,"x":10,"y":20}`))
	assertSilent(t, a)
	msg := recv(t, b)
	assert.Equal(t, "draw-move", msg["type"])
	assert.Equal(t, userA, msg["userId"], "转发时标注来源用户")
	assert.Equal(t, "alice", msg["username"])
}

func TestDrawBatch_UnpackedIntoIndividualMoves(t *testing.T) {
	h := newTestHub(&nullPersister{})
	a, b := newTestClient(h), newTestClient(h)
	join(t, h, a, "ROOM1", "alice")
	join(t, h, b, "ROOM1", "bob")
	recv(t, a)

	h.handleFrame(a, []byte(`{"type":"draw-batch","moves":[`+
		`{"type":"draw-move","tool":"pen","x":1,"y":1},`+
		`{"type":"draw-move","tool":"pen","x":99999,"y":1},`+
		`{"type":"draw-move","tool":"pen","x":2,"y":2}]}`))

	// 越界的中间一条被跳过，其余逐条以 draw-move 转发
	m1 := recv(t, b)
	assert.Equal(t, "draw-move", m1["type"])
	assert.Equal(t, float64(1), m1["x"])
	m2 := recv(t, b)
	assert.Equal(t, float64(2), m2["x"])
	assertSilent(t, b)
}

func TestUndo_RebuildBroadcastIncludesRequester(t *testing.T) {
	h := newTestHub(&nullPersister{})
	a, b := newTestClient(h), newTestClient(h)
	userA := join(t, h, a, "ROOM1", "alice")
	join(t, h, b, "ROOM1", "bob")
	recv(t, a)

	h.handleFrame(a, []byte(`{"type":"draw-end","tool":"pen","color":"#fff","size":2,"path":[{"x":1,"y":1}],"startX":1,"startY":1}`))
	assertSilent(t, a) // draw-end 只广播给其他人
	assert.Equal(t, "draw-end", recv(t, b)["type"])

	h.handleFrame(a, []byte(`{"type":"undo-global"}`))
	for _, c := range []*Client{a, b} {
		msg := recv(t, c)
		assert.Equal(t, "canvas-rebuild", msg["type"])
		assert.Equal(t, "undo-global", msg["undoType"])
		assert.Equal(t, float64(1), msg["affectedActionId"])
		assert.Equal(t, userA, msg["triggeredBy"])
	}
}

func TestUndo_NoopIsSilent(t *testing.T) {
	h := newTestHub(&nullPersister{})
	c := newTestClient(h)
	join(t, h, c, "ROOM1", "alice")

	h.handleFrame(c, []byte(`{"type":"undo-global"}`))
	assertSilent(t, c)
	h.handleFrame(c, []byte(`{"type":"redo-global"}`))
	assertSilent(t, c)
}

func TestClear_BroadcastIncludesSender(t *testing.T) {
	h := newTestHub(&nullPersister{})
	a, b := newTestClient(h), newTestClient(h)
	userA := join(t, h, a, "ROOM1", "alice")
	join(t, h, b, "ROOM1", "bob")
	recv(t, a)

	h.handleFrame(a, []byte(`{"type":"canvas-clear"}`))
	for _, c := range []*Client{a, b} {
		msg := recv(t, c)
		assert.Equal(t, "canvas-clear", msg["type"])
		assert.Equal(t, userA, msg["userId"])
	}
}

func TestUnregister_BroadcastsUserLeftAndClosesSend(t *testing.T) {
	h := newTestHub(&nullPersister{})
	a, b := newTestClient(h), newTestClient(h)
	join(t, h, a, "ROOM1", "alice")
	join(t, h, b, "ROOM1", "bob")
	recv(t, a)

	h.unregisterClient(b)
	assert.True(t, b.closed)
	left := recv(t, a)
	assert.Equal(t, "user-left", left["type"])
	assert.Equal(t, "bob", left["username"])
	assert.Equal(t, float64(1), left["userCount"])

	// send 通道已关闭，WritePump 将退出
	_, open := <-b.send
	assert.False(t, open)

	// 注销后还排着队的帧被忽略
	h.handleFrame(b, []byte(`{"type":"ping","timestamp":1}`))
}

func TestJoin_SecondJoinOnSameConnectionRejected(t *testing.T) {
	h := newTestHub(&nullPersister{})
	c := newTestClient(h)
	join(t, h, c, "ROOM1", "alice")

	h.handleFrame(c, []byte(`{"type":"join-room","roomId":"ROOM2","username":"alice"}`))
	assert.Equal(t, "error", recv(t, c)["type"])
	assert.Equal(t, "ROOM1", c.room.ID, "原有房间成员身份不变")
}

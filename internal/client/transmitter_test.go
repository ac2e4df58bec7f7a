package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/protocol"
)

func TestLatencyMonitor_RollingAverage(t *testing.T) {
	m := NewLatencyMonitor()
	assert.Zero(t, m.Average(), "无样本时平均值为 0")

	m.Observe(40 * time.Millisecond)
	m.Observe(60 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, m.Average())

	// 填满窗口后最旧的样本被覆盖
	for i := 0; i < rttWindow; i++ {
		m.Observe(200 * time.Millisecond)
	}
	assert.Equal(t, 200*time.Millisecond, m.Average())

	m.Observe(-1 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, m.Average(), "负样本被丢弃")
}

func TestPolicyFor_Bands(t *testing.T) {
	cases := []struct {
		avg    time.Duration
		minGap time.Duration
		batch  bool
	}{
		{0, 8 * time.Millisecond, false},
		{40 * time.Millisecond, 8 * time.Millisecond, false},
		{49 * time.Millisecond, 8 * time.Millisecond, false},
		{50 * time.Millisecond, 16 * time.Millisecond, false},
		{99 * time.Millisecond, 16 * time.Millisecond, false},
		{100 * time.Millisecond, 32 * time.Millisecond, false},
		{149 * time.Millisecond, 32 * time.Millisecond, false},
		{150 * time.Millisecond, 0, true},
		{180 * time.Millisecond, 0, true},
		{500 * time.Millisecond, 0, true},
	}
	for _, tc := range cases {
		p := PolicyFor(tc.avg)
		assert.Equal(t, tc.batch, p.Batch, "avg=%v", tc.avg)
		if !tc.batch {
			assert.Equal(t, tc.minGap, p.MinGap, "avg=%v", tc.avg)
		} else {
			assert.Equal(t, batchFlushPeriod, p.FlushPeriod, "avg=%v", tc.avg)
		}
	}
}

// sentRecorder 收集传输器的出站消息。
type sentRecorder struct {
	msgs []interface{}
}

func (r *sentRecorder) send(msg interface{}) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

// fakeClock 让传输器的时间可控。
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
}

func newTestTransmitter(avg time.Duration) (*Transmitter, *sentRecorder, *fakeClock) {
	m := NewLatencyMonitor()
	if avg > 0 {
		for i := 0; i < rttWindow; i++ {
			m.Observe(avg)
		}
	}
	rec := &sentRecorder{}
	tr := NewTransmitter(m, rec.send)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tr.now = clock.now
	tr.sleep = clock.sleep
	return tr, rec, clock
}

func move(x float64) protocol.DrawMove {
	return protocol.DrawMove{Type: protocol.TypeDrawMove, Tool: "pen", X: x, Y: 1}
}

func TestTransmitter_HighLatencyBatches(t *testing.T) {
	tr, rec, clock := newTestTransmitter(180 * time.Millisecond)

	// 50ms 窗口内的三条 move 都只进批，不单发
	tr.dispatchMove(move(1))
	clock.t = clock.t.Add(10 * time.Millisecond)
	tr.dispatchMove(move(2))
	clock.t = clock.t.Add(10 * time.Millisecond)
	tr.dispatchMove(move(3))
	assert.Empty(t, rec.msgs, "刷出间隔未到，事件停留在批里")

	// 超过刷出间隔后的下一条 move 触发整批发送
	clock.t = clock.t.Add(40 * time.Millisecond)
	tr.dispatchMove(move(4))
	require.Len(t, rec.msgs, 1)
	batch, ok := rec.msgs[0].(*protocol.DrawBatch)
	require.True(t, ok, "高延迟链路以 draw-batch 出站")
	assert.Equal(t, protocol.TypeDrawBatch, batch.Type)
	assert.Len(t, batch.Moves, 4)
	assert.Equal(t, float64(1), batch.Moves[0].X, "批内保持事件顺序")
	assert.Equal(t, float64(4), batch.Moves[3].X)
}

func TestTransmitter_StrokeEndFlushesUnconditionally(t *testing.T) {
	tr, rec, _ := newTestTransmitter(180 * time.Millisecond)

	// 两条 move 落在刷出间隔内，仍在批里；end 到来时必须先刷批
	tr.QueueMove(move(1))
	tr.QueueMove(move(2))
	tr.EndStroke(protocol.DrawEnd{Type: protocol.TypeDrawEnd, Tool: "pen"})
	tr.Close()
	tr.Run()

	require.Len(t, rec.msgs, 2)
	batch, isBatch := rec.msgs[0].(*protocol.DrawBatch)
	require.True(t, isBatch, "批在 end 之前出站")
	assert.Len(t, batch.Moves, 2)
	_, isEnd := rec.msgs[1].(*protocol.DrawEnd)
	assert.True(t, isEnd)
}

func TestTransmitter_LowLatencySendsIndividually(t *testing.T) {
	tr, rec, clock := newTestTransmitter(40 * time.Millisecond)

	// 背靠背的两条 move：第二条要等满 8ms 最小间隔
	tr.dispatchMove(move(1))
	tr.dispatchMove(move(2))

	require.Len(t, rec.msgs, 2)
	for _, msg := range rec.msgs {
		_, ok := msg.(*protocol.DrawMove)
		assert.True(t, ok, "低延迟链路逐条发送 draw-move")
	}
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 8*time.Millisecond, clock.sleeps[0])
}

func TestTransmitter_RunDrainsQueueOnClose(t *testing.T) {
	tr, rec, _ := newTestTransmitter(180 * time.Millisecond)

	tr.QueueMove(move(1))
	tr.QueueMove(move(2))
	tr.Close()
	tr.Run() // 队列耗尽后把残留的批刷出再返回

	require.Len(t, rec.msgs, 1)
	batch, ok := rec.msgs[0].(*protocol.DrawBatch)
	require.True(t, ok)
	assert.Len(t, batch.Moves, 2)
}

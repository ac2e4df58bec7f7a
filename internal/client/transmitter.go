package client

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/protocol"
)

// Transmitter 把本地产生的绘制事件按当前发送策略送到服务端。
// 它在自己的 goroutine 中消费事件队列：低延迟链路逐条限速发送，
// 高延迟链路把 draw-move 攒成 draw-batch 周期性刷出。
// 批量只影响传输，draw-end（进日志的笔画）永远单独发送，发送前
// 先把积攒的批刷出去，保证接收方看到的事件顺序不变。
type Transmitter struct {
	monitor *LatencyMonitor
	send    func(msg interface{}) error
	events  chan drawEvent

	pending   []protocol.DrawMove
	lastSend  time.Time
	lastFlush time.Time

	// 可注入的时钟，测试用
	now   func() time.Time
	sleep func(time.Duration)
}

// drawEvent 是队列里的一条事件：move 或 end 二选一。
type drawEvent struct {
	move protocol.DrawMove
	end  *protocol.DrawEnd
}

// NewTransmitter 创建传输器。send 负责实际出站写入。
func NewTransmitter(monitor *LatencyMonitor, send func(msg interface{}) error) *Transmitter {
	if monitor == nil {
		panic("LatencyMonitor cannot be nil for Transmitter")
	}
	if send == nil {
		panic("send func cannot be nil for Transmitter")
	}
	return &Transmitter{
		monitor: monitor,
		send:    send,
		events:  make(chan drawEvent, 256),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// QueueMove 把一条短暂绘制事件放入队列（非阻塞）。
// 队列满时丢弃：move 是瞬时状态，丢几条只影响远端笔迹的平滑度。
func (t *Transmitter) QueueMove(m protocol.DrawMove) bool {
	select {
	case t.events <- drawEvent{move: m}:
		return true
	default:
		logrus.Debug("Transmitter queue full, dropping draw-move")
		return false
	}
}

// EndStroke 把笔画完成事件放入队列。end 会进入操作日志，不能丢，
// 这里用阻塞发送。
func (t *Transmitter) EndStroke(m protocol.DrawEnd) {
	t.events <- drawEvent{end: &m}
}

// Close 关闭事件队列；Run 会把剩余事件刷完后退出。
func (t *Transmitter) Close() {
	close(t.events)
}

// Run 是传输器的主循环，应该在单独的 goroutine 中运行。
func (t *Transmitter) Run() {
	for ev := range t.events {
		if ev.end != nil {
			// 笔画结束：无条件刷出积攒的批，再发 end 本身
			t.flush()
			if err := t.send(ev.end); err != nil {
				logrus.WithError(err).Warn("Transmitter: failed to send draw-end")
			}
			continue
		}
		t.dispatchMove(ev.move)
	}
	t.flush()
}

// dispatchMove 按当前策略发送一条 draw-move。
func (t *Transmitter) dispatchMove(m protocol.DrawMove) {
	policy := PolicyFor(t.monitor.Average())

	if policy.Batch {
		if t.lastFlush.IsZero() {
			t.lastFlush = t.now() // 第一条事件开启刷出窗口
		}
		t.pending = append(t.pending, m)
		if t.now().Sub(t.lastFlush) >= policy.FlushPeriod {
			t.flush()
		}
		return
	}

	// 策略刚从批量切回逐条：先把遗留的批清掉
	t.flush()

	if wait := policy.MinGap - t.now().Sub(t.lastSend); wait > 0 {
		t.sleep(wait)
	}
	if err := t.send(&m); err != nil {
		logrus.WithError(err).Warn("Transmitter: failed to send draw-move")
	}
	t.lastSend = t.now()
}

// flush 把积攒的 draw-move 作为一条 draw-batch 发出。
func (t *Transmitter) flush() {
	if len(t.pending) == 0 {
		return
	}
	batch := protocol.DrawBatch{Type: protocol.TypeDrawBatch, Moves: t.pending}
	if err := t.send(&batch); err != nil {
		logrus.WithError(err).Warn("Transmitter: failed to send draw-batch")
	}
	t.pending = nil
	t.lastFlush = t.now()
}

package client

import "time"

// 发送策略的档位边界和批量参数。
const (
	lowLatencyBound  = 50 * time.Millisecond
	midLatencyBound  = 100 * time.Millisecond
	batchThreshold   = 150 * time.Millisecond // 平滑 RTT 达到该值后切换到批量模式
	batchFlushPeriod = 50 * time.Millisecond
)

// SendPolicy 描述当前链路下绘制事件的发送节奏。
// Batch 为 false 时逐条发送，相邻两条至少间隔 MinGap；
// Batch 为 true 时把事件攒成批，按 FlushPeriod 刷出，
// 笔画结束时无条件刷出。
type SendPolicy struct {
	MinGap      time.Duration
	Batch       bool
	FlushPeriod time.Duration
}

// PolicyFor 根据平滑 RTT 选择发送策略。
// 没有样本时（avg == 0）按最优链路处理，第一次 pong 回来后会立刻修正。
func PolicyFor(avg time.Duration) SendPolicy {
	switch {
	case avg < lowLatencyBound:
		return SendPolicy{MinGap: 8 * time.Millisecond}
	case avg < midLatencyBound:
		return SendPolicy{MinGap: 16 * time.Millisecond}
	case avg < batchThreshold:
		return SendPolicy{MinGap: 32 * time.Millisecond}
	default:
		return SendPolicy{Batch: true, FlushPeriod: batchFlushPeriod}
	}
}

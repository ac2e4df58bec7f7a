// Package client 实现画布的 Go 客户端：带自动重连的 WebSocket
// 连接、RTT 测量，以及按链路质量调节绘制事件发送节奏的传输器。
package client

import (
	"sync"
	"time"
)

// RTT 测量参数。
const (
	// PingInterval 是周期性 ping 的间隔；连接建立后会立即补发一次。
	PingInterval = 3 * time.Second
	// rttWindow 是滚动平均的样本窗口大小。
	rttWindow = 5
)

// LatencyMonitor 维护最近若干次 RTT 的滚动平均。
// 单个异常样本（WiFi 毛刺、GC 停顿）不会让发送策略突变。
type LatencyMonitor struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  bool
}

// NewLatencyMonitor 创建一个空的监视器。
func NewLatencyMonitor() *LatencyMonitor {
	return &LatencyMonitor{samples: make([]time.Duration, rttWindow)}
}

// Observe 记录一次 RTT 样本，窗口满后覆盖最旧的样本。
func (m *LatencyMonitor) Observe(rtt time.Duration) {
	if rtt < 0 {
		return // 时钟回拨产生的负样本直接丢弃
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[m.next] = rtt
	m.next = (m.next + 1) % rttWindow
	if m.next == 0 {
		m.filled = true
	}
}

// Average 返回窗口内样本的平均 RTT；还没有样本时返回 0。
func (m *LatencyMonitor) Average() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.filled {
		n = rttWindow
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += m.samples[i]
	}
	return sum / time.Duration(n)
}

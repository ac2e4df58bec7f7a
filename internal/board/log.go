// Package board 实现单个房间的操作日志（Action Log）。
//
// 日志是追加式的全序序列，顺序等于服务端接收顺序。撤销/重做通过软删除
// （翻转 Undone 标志）实现而不是物理移除：翻转标志是唯一能按到达顺序
// 原子应用的变更，并且可审计、可逆。
package board

import (
	"sync"
	"time"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

// MaxActions 是单个日志保留的最大条数。超出后丢弃最旧的条目，
// 幸存条目的 ID 不会被重新编号。
const MaxActions = 1000

// UndoScope 决定 UndoLast 的匹配范围。
type UndoScope int

const (
	// UndoAny 匹配任意作者最近的可撤销 Action（全局撤销）。
	UndoAny UndoScope = iota
	// UndoOwn 只匹配请求者自己的 Action（个人撤销）。
	UndoOwn
)

// Log 持有一个房间的有序 Action 序列和自增 ID 计数器。
// 同步引擎保证同一房间的变更不会交错，但快照可能被持久化任务和
// HTTP 元数据查询并发读取，因此内部仍带读写锁。
type Log struct {
	mu        sync.RWMutex
	roomID    string
	actions   []domain.Action
	nextID    uint64
	revision  uint64
	createdAt time.Time
}

// NewLog 创建指定房间的空日志。
func NewLog(roomID string) *Log {
	return &Log{
		roomID:    roomID,
		actions:   make([]domain.Action, 0, 64),
		createdAt: time.Now().UTC(),
	}
}

// Restore 用持久化记录的内容重建日志。失败时日志保持为空（房间退化为
// 纯内存状态，见持久化层的错误策略）。
func Restore(rec *domain.RoomRecord) (*Log, error) {
	actions, err := rec.ParseActions()
	if err != nil {
		return nil, err
	}
	l := &Log{
		roomID:    rec.RoomID,
		actions:   actions,
		nextID:    rec.ActionIDCounter,
		revision:  rec.Revision,
		createdAt: rec.CreatedAt,
	}
	if l.createdAt.IsZero() {
		l.createdAt = time.Now().UTC()
	}
	return l, nil
}

// Append 分配下一个 ID 并追加一条 stroke Action。
// 超出保留上限时丢弃最旧的条目，ID 保持不变。
func (l *Log) Append(userID, kind string, payload domain.StrokePayload) domain.Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	action := domain.Action{
		ID:        l.nextID,
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Undone:    false,
	}
	l.actions = append(l.actions, action)
	if len(l.actions) > MaxActions {
		// 只丢最旧的，保持剩余条目的相对顺序
		drop := len(l.actions) - MaxActions
		l.actions = append(l.actions[:0:0], l.actions[drop:]...)
	}
	l.revision++
	return action
}

// UndoLast 从最新往最旧扫描，找到第一条符合范围、未撤销且不是 clear 的
// Action，将其标记为已撤销并返回。没有匹配时返回 ok=false（调用方静默忽略）。
func (l *Log) UndoLast(scope UndoScope, requesterID string) (domain.Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.actions) - 1; i >= 0; i-- {
		a := &l.actions[i]
		if a.Kind == domain.ActionClear || a.Undone {
			continue
		}
		if scope == UndoOwn && a.UserID != requesterID {
			continue
		}
		a.Undone = true
		l.revision++
		return *a, true
	}
	return domain.Action{}, false
}

// RedoLast 从最新往最旧扫描，恢复最近一条被撤销的非 clear Action。
// 注意：重做没有作者范围，任何用户都可以重做任何被撤销的操作，
// 这是与撤销刻意保留的不对称。
func (l *Log) RedoLast() (domain.Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.actions) - 1; i >= 0; i-- {
		a := &l.actions[i]
		if a.Kind == domain.ActionClear || !a.Undone {
			continue
		}
		a.Undone = false
		l.revision++
		return *a, true
	}
	return domain.Action{}, false
}

// Clear 清空序列并把 ID 计数器归零，然后追加一条 clear 标记，
// 让并发进行中的持久化快照和正在重建的客户端仍能看到这次事件。
// 之前发出的所有 Action ID 从此失效。
func (l *Log) Clear(userID string) domain.Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.actions = l.actions[:0]
	l.nextID = 0

	l.nextID++
	marker := domain.Action{
		ID:        l.nextID,
		UserID:    userID,
		Kind:      domain.ActionClear,
		Timestamp: time.Now().UTC(),
	}
	l.actions = append(l.actions, marker)
	l.revision++
	return marker
}

// Snapshot 返回日志的完整只读视图（含已撤销的 Action）。
func (l *Log) Snapshot() domain.StateSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	actions := make([]domain.Action, len(l.actions))
	copy(actions, l.actions)
	return domain.StateSnapshot{
		RoomID:      l.roomID,
		Actions:     actions,
		ActionCount: len(actions),
	}
}

// ActiveActions 返回未被撤销的 Action，保持原始顺序。
func (l *Log) ActiveActions() []domain.Action {
	return l.Snapshot().ActiveActions()
}

// HasActiveActions 报告日志中是否存在未撤销的 Action。
func (l *Log) HasActiveActions() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.actions {
		if !l.actions[i].Undone {
			return true
		}
	}
	return false
}

// ActionCount 返回日志当前的条目数（含已撤销的）。
func (l *Log) ActionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.actions)
}

// Revision 返回日志当前的变更计数。
func (l *Log) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revision
}

// Record 把日志序列化为持久化记录。Revision 随记录一起保存，
// 持久化层据此拒绝过期写入。
func (l *Log) Record() (*domain.RoomRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec := &domain.RoomRecord{
		RoomID:          l.roomID,
		ActionIDCounter: l.nextID,
		Revision:        l.revision,
		CreatedAt:       l.createdAt,
		LastModified:    time.Now().UTC(),
	}
	if err := rec.SetActions(l.actions); err != nil {
		return nil, err
	}
	return rec, nil
}

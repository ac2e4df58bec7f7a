// Package registry 管理活跃房间的创建、查找和空闲回收。
package registry

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/board"
)

// roomIDAlphabet 是房间 ID 的字符集。房间 ID 靠 URL 或口头传播，
// 排除了视觉易混淆的字符（0/O、1/I/L）。
const roomIDAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// roomIDLength 是自动生成的房间 ID 长度。
const roomIDLength = 6

// DefaultIdleTimeout 是空房间被回收前允许的空闲时长。
const DefaultIdleTimeout = 30 * time.Minute

// Registry 持有所有驻留内存的房间，按房间 ID 索引。
// 房间在首次引用时创建，在空置且超时后销毁。
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

// NewRegistry 创建房间注册表。idleTimeout <= 0 时使用默认值。
func NewRegistry(idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
}

// CreateOrGet 返回指定 ID 的房间，不存在时创建。roomID 为空时生成一个
// 新 ID；显式给出的未知 ID 会按原样创建（不会偷偷替换成生成的 ID）。
// newLog 在房间真正创建时被调用一次，用于构造（可能从持久化恢复的）日志。
// 返回的 bool 表示房间是否是本次新建的。
func (r *Registry) CreateOrGet(roomID string, newLog func(roomID string) *board.Log) (*Room, bool) {
	if roomID == "" {
		roomID = r.generateRoomID()
	}

	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return room, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 双重检查：锁间隙里可能已有人创建
	if room, ok := r.rooms[roomID]; ok {
		return room, false
	}
	room = newRoom(roomID, newLog(roomID))
	r.rooms[roomID] = room
	logrus.WithField("room_id", roomID).Info("Room created")
	return room, true
}

// Get 返回指定 ID 的驻留房间，不存在时返回 nil。
func (r *Registry) Get(roomID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// Delete 把房间从注册表中移除。
func (r *Registry) Delete(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; ok {
		delete(r.rooms, roomID)
		logrus.WithField("room_id", roomID).Info("Room evicted from registry")
	}
}

// Count 返回当前驻留的房间数。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Rooms 返回所有驻留房间的快照。
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Sweep 删除所有空置且空闲超时的房间，返回被删除的房间 ID。
// 有人在线的房间永远不会被回收。
func (r *Registry) Sweep() []string {
	cutoff := time.Now().UTC().Add(-r.idleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	var swept []string
	for id, room := range r.rooms {
		if room.UserCount() == 0 && room.LastActivity().Before(cutoff) {
			delete(r.rooms, id)
			swept = append(swept, id)
		}
	}
	if len(swept) > 0 {
		logrus.WithField("count", len(swept)).Info("Idle rooms swept")
	}
	return swept
}

// generateRoomID 生成一个未被占用的房间 ID。调用方需持有读锁之外的状态，
// 这里只做内存占用检查；字符集见 roomIDAlphabet。
func (r *Registry) generateRoomID() string {
	const maxAttempts = 10

	b := make([]byte, roomIDLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			// crypto/rand 失败在实践中意味着系统级故障
			panic(fmt.Sprintf("registry: failed to generate random bytes: %v", err))
		}
		for i := range b {
			b[i] = roomIDAlphabet[int(b[i])%len(roomIDAlphabet)]
		}
		id := string(b)

		r.mu.RLock()
		_, exists := r.rooms[id]
		r.mu.RUnlock()
		if !exists {
			return id
		}
		logrus.WithField("room_id", id).Warnf("Generated room id already in use, retrying (attempt %d)", attempt+1)
	}
	// 32^6 的空间里连撞 10 次几乎不可能
	panic("registry: failed to generate a unique room id")
}

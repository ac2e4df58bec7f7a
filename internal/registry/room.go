package registry

import (
	"sync"
	"time"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/board"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

// Room 表示一个活跃的协作房间：操作日志加上当前在线的用户集合。
// 用户集合只存在于内存中，随连接生灭，从不持久化。
type Room struct {
	ID  string
	Log *board.Log

	mu           sync.RWMutex
	users        map[string]*domain.User
	createdAt    time.Time
	lastActivity time.Time
}

func newRoom(id string, log *board.Log) *Room {
	now := time.Now().UTC()
	return &Room{
		ID:           id,
		Log:          log,
		users:        make(map[string]*domain.User),
		createdAt:    now,
		lastActivity: now,
	}
}

// AddUser 把用户加入房间并刷新活跃时间。
func (r *Room) AddUser(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	r.lastActivity = time.Now().UTC()
}

// RemoveUser 把用户移出房间，返回其信息和剩余人数。
// 用户不存在时 ok=false。
func (r *Room) RemoveUser(userID string) (*domain.User, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, len(r.users), false
	}
	delete(r.users, userID)
	r.lastActivity = time.Now().UTC()
	return u, len(r.users), true
}

// Users 返回当前在线用户的快照，按加入时间排序。
func (r *Room) Users() []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *u)
	}
	for i := 1; i < len(users); i++ {
		for j := i; j > 0 && users[j].JoinedAt.Before(users[j-1].JoinedAt); j-- {
			users[j], users[j-1] = users[j-1], users[j]
		}
	}
	return users
}

// UserCount 返回当前在线人数。
func (r *Room) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Touch 刷新房间的最后活跃时间。
func (r *Room) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now().UTC()
}

// LastActivity 返回房间的最后活跃时间。
func (r *Room) LastActivity() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActivity
}

// CreatedAt 返回房间的创建时间。
func (r *Room) CreatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.createdAt
}

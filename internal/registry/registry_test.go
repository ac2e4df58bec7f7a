package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/board"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

func emptyLog(roomID string) *board.Log { return board.NewLog(roomID) }

func TestCreateOrGet_ExplicitID(t *testing.T) {
	r := NewRegistry(0)

	// §8 场景：显式给出的未知房间 ID 按原样创建
	room, created := r.CreateOrGet("CANVAS42", emptyLog)
	require.True(t, created)
	assert.Equal(t, "CANVAS42", room.ID)

	again, created := r.CreateOrGet("CANVAS42", emptyLog)
	assert.False(t, created)
	assert.Same(t, room, again)
	assert.Equal(t, 1, r.Count())
}

func TestCreateOrGet_GeneratedIDAvoidsConfusables(t *testing.T) {
	r := NewRegistry(0)

	for i := 0; i < 50; i++ {
		room, created := r.CreateOrGet("", emptyLog)
		require.True(t, created)
		assert.Len(t, room.ID, roomIDLength)
		for _, c := range room.ID {
			assert.True(t, strings.ContainsRune(roomIDAlphabet, c), "字符 %q 不在允许的字符集内", c)
		}
		assert.NotContains(t, room.ID, "0")
		assert.NotContains(t, room.ID, "O")
		assert.NotContains(t, room.ID, "1")
		assert.NotContains(t, room.ID, "I")
		assert.NotContains(t, room.ID, "L")
	}
}

func TestRoom_UserRoster(t *testing.T) {
	r := NewRegistry(0)
	room, _ := r.CreateOrGet("ROOM1", emptyLog)

	base := time.Now().UTC()
	room.AddUser(&domain.User{ID: "b", Username: "beta", JoinedAt: base.Add(time.Second)})
	room.AddUser(&domain.User{ID: "a", Username: "alpha", JoinedAt: base})
	require.Equal(t, 2, room.UserCount())

	users := room.Users()
	require.Len(t, users, 2)
	assert.Equal(t, "alpha", users[0].Username, "名册按加入时间排序")

	u, remaining, ok := room.RemoveUser("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", u.Username)
	assert.Equal(t, 1, remaining)

	_, _, ok = room.RemoveUser("a")
	assert.False(t, ok, "重复移除是 no-op")
}

func TestSweep_OnlyIdleEmptyRooms(t *testing.T) {
	r := NewRegistry(10 * time.Minute)

	idle, _ := r.CreateOrGet("IDLE", emptyLog)
	occupied, _ := r.CreateOrGet("BUSY", emptyLog)
	fresh, _ := r.CreateOrGet("FRESH", emptyLog)

	occupied.AddUser(&domain.User{ID: "u1", Username: "user"})

	// 人为把两个房间的活跃时间拨回过去
	idle.mu.Lock()
	idle.lastActivity = time.Now().UTC().Add(-time.Hour)
	idle.mu.Unlock()
	occupied.mu.Lock()
	occupied.lastActivity = time.Now().UTC().Add(-time.Hour)
	occupied.mu.Unlock()

	swept := r.Sweep()
	assert.Equal(t, []string{"IDLE"}, swept, "只有空置且超时的房间被回收")
	assert.Nil(t, r.Get("IDLE"))
	assert.NotNil(t, r.Get("BUSY"), "有人在线的房间不回收")
	assert.NotNil(t, r.Get("FRESH"), "未超时的空房间不回收")
	_ = fresh
}

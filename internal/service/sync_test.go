package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/board"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/registry"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository/mocks"
)

// fakePersister 记录持久化调用，便于断言触发时机。
type fakePersister struct {
	mu        sync.Mutex
	loadRec   *domain.RoomRecord
	loadErr   error
	saved     []*domain.RoomRecord
	savedSync []*domain.RoomRecord
}

func (f *fakePersister) Load(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.loadRec, nil
}

func (f *fakePersister) SaveAsync(rec *domain.RoomRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
}

func (f *fakePersister) SaveSync(ctx context.Context, rec *domain.RoomRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedSync = append(f.savedSync, rec)
	return nil
}

func (f *fakePersister) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func newTestService(p Persister) *SyncService {
	return NewSyncService(registry.NewRegistry(0), p)
}

func TestJoin_RestoresPersistedHistory(t *testing.T) {
	rec := &domain.RoomRecord{
		RoomID:          "CANVAS1",
		ActionIDCounter: 2,
		Revision:        5,
	}
	require.NoError(t, rec.SetActions([]domain.Action{
		{ID: 1, UserID: "old", Kind: domain.ActionStroke, Timestamp: time.Now().UTC()},
		{ID: 2, UserID: "old", Kind: domain.ActionStroke, Timestamp: time.Now().UTC(), Undone: true},
	}))

	p := &fakePersister{loadRec: rec}
	s := newTestService(p)

	room, user, err := s.Join(context.Background(), "CANVAS1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "CANVAS1", room.ID)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)

	// 历史被恢复：2 条记录，1 条活跃，下一个 ID 是 3
	assert.Equal(t, 2, room.Log.ActionCount())
	assert.Len(t, room.Log.ActiveActions(), 1)
	next := room.Log.Append(user.ID, domain.ActionStroke, domain.StrokePayload{Tool: "pen"})
	assert.Equal(t, uint64(3), next.ID)
}

func TestJoin_UnknownExplicitRoomIDCreatedAsIs(t *testing.T) {
	p := &fakePersister{loadErr: repository.ErrRecordNotFound}
	s := newTestService(p)

	room, _, err := s.Join(context.Background(), "NEWROOM7", "bob")
	require.NoError(t, err)
	assert.Equal(t, "NEWROOM7", room.ID, "未知的显式房间 ID 按原样创建")
	assert.Equal(t, 0, room.Log.ActionCount())

	// 第二个用户加入同一房间不会触发第二次加载
	again, _, err := s.Join(context.Background(), "NEWROOM7", "carol")
	require.NoError(t, err)
	assert.Same(t, room, again)
	assert.Equal(t, 2, room.UserCount())
}

func TestStroke_AppendsAndPersists(t *testing.T) {
	p := &fakePersister{loadErr: repository.ErrRecordNotFound}
	s := newTestService(p)
	room, user, _ := s.Join(context.Background(), "ROOM1", "alice")

	action := s.Stroke(context.Background(), room, user.ID, domain.StrokePayload{Tool: "pen", Color: "#fff", Size: 2})
	assert.Equal(t, uint64(1), action.ID)
	assert.Equal(t, domain.ActionStroke, action.Kind)

	require.Equal(t, 1, p.saveCount(), "每次持久化变更后都触发一次写入")
	assert.Equal(t, room.Log.Revision(), p.saved[0].Revision)
}

func TestUndoRedo_NoopSkipsPersistence(t *testing.T) {
	p := &fakePersister{loadErr: repository.ErrRecordNotFound}
	s := newTestService(p)
	room, user, _ := s.Join(context.Background(), "ROOM1", "alice")

	_, ok := s.Undo(context.Background(), room, board.UndoAny, user.ID)
	assert.False(t, ok)
	_, ok = s.Redo(context.Background(), room)
	assert.False(t, ok)
	assert.Zero(t, p.saveCount(), "no-op 不触发持久化")

	s.Stroke(context.Background(), room, user.ID, domain.StrokePayload{Tool: "pen"})
	undone, ok := s.Undo(context.Background(), room, board.UndoAny, user.ID)
	require.True(t, ok)
	assert.Equal(t, uint64(1), undone.ID)
	assert.Equal(t, 2, p.saveCount())

	_, ok = s.Redo(context.Background(), room)
	require.True(t, ok)
	assert.Equal(t, 3, p.saveCount())
}

func TestLeave_EmptyRoomPersistedAndEvicted(t *testing.T) {
	p := &fakePersister{loadErr: repository.ErrRecordNotFound}
	s := newTestService(p)
	room, user, _ := s.Join(context.Background(), "ROOM1", "alice")
	s.Stroke(context.Background(), room, user.ID, domain.StrokePayload{Tool: "pen"})
	before := p.saveCount()

	left, remaining, ok := s.Leave(context.Background(), room, user.ID)
	require.True(t, ok)
	assert.Equal(t, "alice", left.Username)
	assert.Zero(t, remaining)

	assert.Equal(t, before+1, p.saveCount(), "最后一人离开时持久化最终状态")
	assert.Nil(t, s.Registry().Get("ROOM1"), "空房间被逐出注册表")
}

func TestFlushAll_WritesEveryResidentRoom(t *testing.T) {
	p := &fakePersister{loadErr: repository.ErrRecordNotFound}
	s := newTestService(p)
	s.Join(context.Background(), "ROOM1", "alice")
	s.Join(context.Background(), "ROOM2", "bob")

	s.FlushAll(context.Background())
	assert.Len(t, p.savedSync, 2)
}

func TestAsynqPersister_Load_CacheFirst(t *testing.T) {
	recordRepo := new(mocks.RecordRepository)
	stateRepo := new(mocks.StateRepository)
	p := &AsynqPersister{recordRepo: recordRepo, stateRepo: stateRepo}
	ctx := context.Background()

	cached := &domain.RoomRecord{RoomID: "ROOM1", Revision: 7, Actions: "[]"}
	stateRepo.On("GetRecordCache", ctx, "ROOM1").Return(cached, nil).Once()

	rec, err := p.Load(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.Revision)

	stateRepo.AssertExpectations(t)
	recordRepo.AssertNotCalled(t, "Load", ctx, "ROOM1")
}

func TestAsynqPersister_Load_FallsBackToDatabase(t *testing.T) {
	recordRepo := new(mocks.RecordRepository)
	stateRepo := new(mocks.StateRepository)
	p := &AsynqPersister{recordRepo: recordRepo, stateRepo: stateRepo}
	ctx := context.Background()

	stateRepo.On("GetRecordCache", ctx, "ROOM1").Return(nil, repository.ErrNotFound).Once()
	stored := &domain.RoomRecord{RoomID: "ROOM1", Revision: 3, Actions: "[]"}
	recordRepo.On("Load", ctx, "ROOM1").Return(stored, nil).Once()
	// 数据库命中后异步回填缓存
	stateRepo.On("SetRecordCache", mock.Anything, stored, recordCacheTTL).Return(nil).Maybe()

	rec, err := p.Load(ctx, "ROOM1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.Revision)

	recordRepo.AssertExpectations(t)
}

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

// StateRepository 是 repository.StateRepository 的 mock。
type StateRepository struct {
	mock.Mock
}

func (m *StateRepository) GetRecordCache(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	args := m.Called(ctx, roomID)
	if rec := args.Get(0); rec != nil {
		return rec.(*domain.RoomRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StateRepository) SetRecordCache(ctx context.Context, rec *domain.RoomRecord, ttl time.Duration) error {
	args := m.Called(ctx, rec, ttl)
	return args.Error(0)
}

func (m *StateRepository) DeleteRecordCache(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

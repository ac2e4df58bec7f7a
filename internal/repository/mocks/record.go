// Package mocks 提供 repository 接口的 testify mock 实现，仅用于测试。
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
)

// RecordRepository 是 repository.RecordRepository 的 mock。
type RecordRepository struct {
	mock.Mock
}

func (m *RecordRepository) Load(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	args := m.Called(ctx, roomID)
	if rec := args.Get(0); rec != nil {
		return rec.(*domain.RoomRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RecordRepository) SaveIfNewer(ctx context.Context, rec *domain.RoomRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/domain"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/tasks"
)

// recordCacheTTL 是房间记录在 Redis 缓存中的生存时间。
const recordCacheTTL = 24 * time.Hour

// Persister 是同步引擎使用的持久化适配器。写入是即发即弃的：
// 慢盘永远不会阻塞实时广播；崩溃时丢失在途写入是可接受的。
type Persister interface {
	// Load 按房间 ID 读取持久化记录（缓存优先，数据库备用）。
	// 记录不存在时返回 repository.ErrRecordNotFound。
	Load(ctx context.Context, roomID string) (*domain.RoomRecord, error)

	// SaveAsync 异步持久化一份房间记录，立即返回。
	SaveAsync(rec *domain.RoomRecord)

	// SaveSync 同步持久化一份房间记录，用于优雅关闭时的最终落盘。
	SaveSync(ctx context.Context, rec *domain.RoomRecord) error
}

// AsynqPersister 通过 asynq 任务队列实现异步写入，并在数据库前维护
// Redis 读写穿透缓存。每份记录携带快照时刻的 Revision，数据库层的
// SaveIfNewer 保证乱序执行的任务不会用旧状态覆盖新状态。
type AsynqPersister struct {
	recordRepo repository.RecordRepository
	stateRepo  repository.StateRepository
	client     *asynq.Client
}

// NewAsynqPersister 创建 AsynqPersister 实例。
func NewAsynqPersister(recordRepo repository.RecordRepository, stateRepo repository.StateRepository, client *asynq.Client) *AsynqPersister {
	if recordRepo == nil || stateRepo == nil {
		panic("repositories cannot be nil for AsynqPersister")
	}
	if client == nil {
		panic("asynq client cannot be nil for AsynqPersister")
	}
	return &AsynqPersister{
		recordRepo: recordRepo,
		stateRepo:  stateRepo,
		client:     client,
	}
}

// Load 实现"缓存优先，数据库备用，回填缓存"的读取策略。
func (p *AsynqPersister) Load(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "persister.Load"})

	cached, err := p.stateRepo.GetRecordCache(ctx, roomID)
	if err == nil && cached != nil {
		logCtx.Debug("Record cache hit")
		return cached, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logCtx.WithError(err).Warn("Failed to read record cache, falling back to database")
	}

	rec, err := p.recordRepo.Load(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, err
		}
		logCtx.WithError(err).Error("Failed to load record from database")
		return nil, err
	}

	// 异步回填缓存，不阻塞首次加入
	go func(toCache *domain.RoomRecord) {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.stateRepo.SetRecordCache(cacheCtx, toCache, recordCacheTTL); err != nil {
			logrus.WithField("room_id", toCache.RoomID).WithError(err).Warn("Failed to warm record cache after DB load")
		}
	}(rec)

	logCtx.WithField("revision", rec.Revision).Info("Record loaded from database")
	return rec, nil
}

// SaveAsync 把记录写穿缓存并入队持久化任务。任何失败只记录日志，
// 绝不向客户端暴露；未能落盘的房间退化为纯内存状态。
func (p *AsynqPersister) SaveAsync(rec *domain.RoomRecord) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": rec.RoomID, "revision": rec.Revision})

	cacheCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.stateRepo.SetRecordCache(cacheCtx, rec, recordCacheTTL); err != nil {
		logCtx.WithError(err).Warn("Failed to write record through cache")
	}

	task, err := tasks.NewRecordPersistTask(*rec)
	if err != nil {
		logCtx.WithError(err).Error("Failed to build record persist task")
		return
	}
	info, err := p.client.Enqueue(task, asynq.Queue("default"), asynq.MaxRetry(3))
	if err != nil {
		logCtx.WithError(err).Error("Failed to enqueue record persist task")
		return
	}
	logCtx.WithField("task_id", info.ID).Debug("Record persist task enqueued")
}

// SaveSync 同步落盘，用于优雅关闭。过期写不是错误。
func (p *AsynqPersister) SaveSync(ctx context.Context, rec *domain.RoomRecord) error {
	if err := p.stateRepo.SetRecordCache(ctx, rec, recordCacheTTL); err != nil {
		logrus.WithField("room_id", rec.RoomID).WithError(err).Warn("Failed to write record through cache")
	}
	err := p.recordRepo.SaveIfNewer(ctx, rec)
	if err != nil && !errors.Is(err, repository.ErrStaleRevision) {
		return err
	}
	return nil
}

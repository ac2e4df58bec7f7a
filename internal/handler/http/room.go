package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/HARSH-RAJ88/collaborative-canvas/internal/protocol"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/repository"
	"github.com/HARSH-RAJ88/collaborative-canvas/internal/service"
)

// RoomHandler 封装了与房间元数据相关的 HTTP 处理逻辑。
// 画布内容本身只通过 WebSocket 同步，HTTP 端只暴露只读元数据。
type RoomHandler struct {
	sync      *service.SyncService
	persister service.Persister
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(sync *service.SyncService, persister service.Persister) *RoomHandler {
	if sync == nil {
		panic("SyncService cannot be nil for RoomHandler")
	}
	if persister == nil {
		panic("Persister cannot be nil for RoomHandler")
	}
	return &RoomHandler{sync: sync, persister: persister}
}

// RoomInfoResponse 定义房间元数据的响应结构体
type RoomInfoResponse struct {
	RoomID      string     `json:"roomId"`
	Active      bool       `json:"active"`
	UserCount   int        `json:"userCount"`
	ActionCount int        `json:"actionCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastActive  *time.Time `json:"lastActive,omitempty"`
}

// GetRoom 返回单个房间的元数据。
// 活跃房间（有人在线）从注册表取实时数据；不活跃但有持久化
// 记录的房间从存储层取；两者都没有时返回 404。
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID := protocol.NormalizeRoomID(c.Param("roomId"))
	if roomID == "" {
		ErrorResponse(c, http.StatusBadRequest, "Invalid room ID")
		return
	}
	logCtx := logrus.WithField("room_id", roomID)

	// 1. 先查注册表：驻留房间的数据最新
	if room := h.sync.Registry().Get(roomID); room != nil {
		last := room.LastActivity()
		SuccessResponse(c, http.StatusOK, RoomInfoResponse{
			RoomID:      room.ID,
			Active:      true,
			UserCount:   room.UserCount(),
			ActionCount: room.Log.ActionCount(),
			CreatedAt:   room.CreatedAt(),
			LastActive:  &last,
		})
		return
	}

	// 2. 回退到持久化记录
	rec, err := h.persister.Load(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			ErrorResponse(c, http.StatusNotFound, service.ErrRoomNotFound.Error())
			return
		}
		logCtx.WithError(err).Error("Handler.GetRoom: Failed to load room record")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to load room")
		return
	}

	actions, err := rec.ParseActions()
	if err != nil {
		logCtx.WithError(err).Error("Handler.GetRoom: Corrupt room record")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to load room")
		return
	}

	SuccessResponse(c, http.StatusOK, RoomInfoResponse{
		RoomID:      rec.RoomID,
		Active:      false,
		UserCount:   0,
		ActionCount: len(actions),
		CreatedAt:   rec.CreatedAt,
		LastActive:  &rec.LastModified,
	})
}

// HealthResponse 定义健康检查的响应结构体
type HealthResponse struct {
	Status    string `json:"status"`
	RoomCount int    `json:"roomCount"`
}

// Healthz 报告服务状态和当前驻留的房间数
func (h *RoomHandler) Healthz(c *gin.Context) {
	SuccessResponse(c, http.StatusOK, HealthResponse{
		Status:    "ok",
		RoomCount: h.sync.Registry().Count(),
	})
}

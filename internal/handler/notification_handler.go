package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/service"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
	"github.com/wildpark/pointwatch-api/pkg/realtime"
	"github.com/wildpark/pointwatch-api/pkg/response"
)

// NotificationHandler exposes notification endpoints and the realtime
// websocket subscription.
type NotificationHandler struct {
	notifications   *service.NotificationService
	hub             *realtime.Hub
	upgrader        websocket.Upgrader
	maxMessageBytes int64
	logger          *zap.Logger
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService, hub *realtime.Hub, maxMessageBytes int64, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{
		notifications:   notifications,
		hub:             hub,
		maxMessageBytes: maxMessageBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth happens before the upgrade; origins are
			// enforced by the CORS layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// List godoc
// @Summary List the current user's notifications
// @Tags Notifications
// @Produce json
// @Param unviewed query bool false "Only unviewed notifications"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	unviewedOnly, _ := strconv.ParseBool(c.DefaultQuery("unviewed", "false"))
	notifications, err := h.notifications.List(c.Request.Context(), actor.ID, unviewedOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}

// MarkViewed godoc
// @Summary Mark a notification as viewed
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204
// @Security BearerAuth
// @Router /notifications/{id}/viewed [put]
func (h *NotificationHandler) MarkViewed(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.notifications.MarkViewed(c.Request.Context(), c.Param("id"), actor.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Subscribe upgrades the connection to a websocket scoped to the
// authenticated user. The read loop exists only to observe the close;
// all traffic flows server to client.
func (h *NotificationHandler) Subscribe(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.hub == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "realtime notifications disabled"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", actor.ID), zap.Error(err))
		return
	}

	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}
	h.hub.Register(actor.ID, conn)
	go func() {
		defer h.hub.Unregister(actor.ID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

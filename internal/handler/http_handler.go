package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-messenger/internal/service"
	apperrors "github.com/weiawesome/wes-messenger/pkg/errors"
	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/middleware"
	"github.com/weiawesome/wes-messenger/pkg/response"
)

// Handler handles HTTP requests for the messenger.
type Handler struct {
	messages       service.MessageService
	presence       service.PresenceService
	attachments    service.AttachmentService
	ws             *WSHandler
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(
	messages service.MessageService,
	presence service.PresenceService,
	attachments service.AttachmentService,
	ws *WSHandler,
	authMiddleware *middleware.AuthMiddleware,
) *Handler {
	return &Handler{
		messages:       messages,
		presence:       presence,
		attachments:    attachments,
		ws:             ws,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.GET("/attachments/*key", h.DownloadAttachment)
		api.GET("/ws", h.authMiddleware.RequireAuthOrQuery(), h.ws.HandleWebSocket)

		protected := api.Group("")
		protected.Use(h.authMiddleware.RequireAuth())
		{
			messages := protected.Group("/messages")
			{
				messages.POST("", h.SendMessage)
				messages.GET("", h.GetMessages)
				messages.PUT("/read", h.MarkRead)
				messages.PUT("/delivered", h.MarkDelivered)
				messages.POST("/attachments", h.UploadAttachment)
				messages.DELETE("/:id", h.DeleteMessage)
				messages.POST("/:id/reactions", h.React)
				messages.GET("/:id/revisions", h.Revisions)
			}

			protected.POST("/status/set", h.SetStatus)
			protected.POST("/chat/typing", h.Typing)
			protected.POST("/friends/:user_id", h.Follow)
			protected.DELETE("/friends/:user_id", h.Unfollow)
		}
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// fail writes err using its error code. Internal details stay in the log.
func fail(c *gin.Context, err error, msg string) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Msg(msg)
		_ = c.Error(err)
	} else {
		l.Warn().Err(err).Msg(msg)
	}
	response.Error(c, status, apperrors.PublicMessage(err))
}

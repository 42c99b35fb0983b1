package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/middleware"
	"github.com/weiawesome/wes-messenger/pkg/response"
)

// SetStatus sets the caller's presence status.
func (h *Handler) SetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid set status request")
		response.BadRequest(c, "status is required")
		return
	}

	status, err := h.presence.SetStatus(ctx, middleware.GetUserID(c), req.Status)
	if err != nil {
		fail(c, err, "set status failed")
		return
	}
	response.SuccessMessage(c, "status updated", gin.H{"status": status})
}

// Typing tells the receiver that the caller is typing.
func (h *Handler) Typing(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid typing request")
		response.BadRequest(c, "receiverId is required")
		return
	}

	delivered, err := h.presence.NotifyTyping(ctx, middleware.GetUserID(c), req.ReceiverID)
	if err != nil {
		fail(c, err, "typing notification failed")
		return
	}
	response.Success(c, gin.H{"delivered": delivered})
}

func (h *Handler) Follow(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.presence.Follow(ctx, middleware.GetUserID(c), c.Param("user_id")); err != nil {
		fail(c, err, "follow failed")
		return
	}
	response.SuccessMessage(c, "followed", nil)
}

func (h *Handler) Unfollow(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.presence.Unfollow(ctx, middleware.GetUserID(c), c.Param("user_id")); err != nil {
		fail(c, err, "unfollow failed")
		return
	}
	response.SuccessMessage(c, "unfollowed", nil)
}

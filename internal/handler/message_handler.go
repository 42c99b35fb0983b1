package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/middleware"
	"github.com/weiawesome/wes-messenger/pkg/response"
)

// SendMessage sends, schedules or edits a message.
func (h *Handler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid send message request")
		response.BadRequest(c, "invalid request body")
		return
	}

	view, err := h.messages.Send(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		fail(c, err, "send message failed")
		return
	}

	response.Success(c, view)
}

// GetMessages returns a single message, a conversation or the delivered
// inbox depending on the query.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var q domain.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		l.Warn().Err(err).Msg("invalid history query")
		response.BadRequest(c, "invalid query")
		return
	}
	userID := middleware.GetUserID(c)

	switch {
	case q.MessageID != "":
		view, err := h.messages.Get(ctx, userID, q.MessageID)
		if err != nil {
			fail(c, err, "get message failed")
			return
		}
		response.Success(c, view)

	case q.UserID != "":
		views, err := h.messages.Conversation(ctx, userID, q.UserID)
		if err != nil {
			fail(c, err, "get conversation failed")
			return
		}
		response.Success(c, views)

	case q.Scheduled:
		views, err := h.messages.Delivered(ctx, userID)
		if err != nil {
			fail(c, err, "get delivered messages failed")
			return
		}
		response.Success(c, views)

	default:
		response.BadRequest(c, "one of userId, messageId or scheduled=true is required")
	}
}

// MarkRead advances the caller's received messages to read.
func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.MessageIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid mark read request")
		response.BadRequest(c, "messageIds is required")
		return
	}

	n, err := h.messages.MarkRead(ctx, middleware.GetUserID(c), req.MessageIDs)
	if err != nil {
		fail(c, err, "mark read failed")
		return
	}

	response.SuccessMessage(c, "messages marked as read", gin.H{"updated": n})
}

// MarkDelivered advances the caller's received messages to delivered.
func (h *Handler) MarkDelivered(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.MessageIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid mark delivered request")
		response.BadRequest(c, "messageIds is required")
		return
	}

	n, err := h.messages.MarkDelivered(ctx, middleware.GetUserID(c), req.MessageIDs)
	if err != nil {
		fail(c, err, "mark delivered failed")
		return
	}

	response.SuccessMessage(c, "messages marked as delivered", gin.H{"updated": n})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.messages.Delete(ctx, middleware.GetUserID(c), c.Param("id")); err != nil {
		fail(c, err, "delete message failed")
		return
	}
	response.SuccessMessage(c, "message deleted", nil)
}

func (h *Handler) React(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid reaction request")
		response.BadRequest(c, "reaction is required")
		return
	}

	reaction, err := h.messages.React(ctx, middleware.GetUserID(c), c.Param("id"), req.Reaction)
	if err != nil {
		fail(c, err, "add reaction failed")
		return
	}
	response.Created(c, reaction)
}

func (h *Handler) Revisions(c *gin.Context) {
	ctx := c.Request.Context()
	revs, err := h.messages.Revisions(ctx, middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		fail(c, err, "list revisions failed")
		return
	}
	response.Success(c, revs)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/middleware"
	"github.com/weiawesome/wes-messenger/pkg/response"
)

// UploadAttachment stores an image from the multipart "file" field.
func (h *Handler) UploadAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	fh, err := c.FormFile("file")
	if err != nil {
		l.Warn().Err(err).Msg("missing attachment file")
		response.BadRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		l.Error().Err(err).Msg("failed to open uploaded file")
		response.InternalError(c, "failed to read upload")
		return
	}
	defer f.Close()

	res, err := h.attachments.Upload(ctx, middleware.GetUserID(c), fh.Filename, fh.Size, f)
	if err != nil {
		fail(c, err, "upload attachment failed")
		return
	}
	response.Created(c, res)
}

// DownloadAttachment streams a stored attachment.
func (h *Handler) DownloadAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	obj, err := h.attachments.Open(ctx, c.Param("key"))
	if err != nil {
		fail(c, err, "open attachment failed")
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, obj.Size, contentType, obj.Body, map[string]string{
		"Cache-Control": "private, max-age=86400",
	})
}

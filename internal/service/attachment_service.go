package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/weiawesome/wes-messenger/internal/audit"
	"github.com/weiawesome/wes-messenger/internal/config"
	"github.com/weiawesome/wes-messenger/internal/domain"
	apperrors "github.com/weiawesome/wes-messenger/pkg/errors"
	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/storage"
)

const attachmentPrefix = "attachments/"

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type attachmentServiceImpl struct {
	store   storage.Storage
	maxSize int64
	baseURL string
	allowed map[string]bool
}

// NewAttachmentService creates the attachment service on top of store.
func NewAttachmentService(store storage.Storage, cfg config.AttachmentsConfig) AttachmentService {
	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(t)] = true
	}
	return &attachmentServiceImpl{
		store:   store,
		maxSize: cfg.MaxSize,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		allowed: allowed,
	}
}

// Upload sniffs the content type from the first bytes, stores the object
// and returns the URL a message can reference as imageUrl.
func (s *attachmentServiceImpl) Upload(ctx context.Context, userID, filename string, size int64, r io.Reader) (*domain.AttachmentResponse, error) {
	if size <= 0 {
		return nil, apperrors.InvalidArgument("attachment is empty")
	}
	if s.maxSize > 0 && size > s.maxSize {
		return nil, apperrors.InvalidArgument(fmt.Sprintf("attachment exceeds %d bytes", s.maxSize))
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, apperrors.Internal(err)
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if !s.allowed[contentType] {
		return nil, apperrors.InvalidArgument("unsupported attachment type " + contentType)
	}
	ext, ok := extensions[contentType]
	if !ok {
		ext = ".bin"
	}

	key := fmt.Sprintf("%s%s/%s%s", attachmentPrefix, userID, uuid.New().String(), ext)
	body := &countingReader{r: io.MultiReader(bytes.NewReader(head), r)}
	if s.maxSize > 0 {
		body.r = io.LimitReader(body.r, s.maxSize+1)
	}
	if err := s.store.Write(ctx, key, body, size, contentType); err != nil {
		return nil, apperrors.Internal(err)
	}

	// The declared size comes from the client.
	if s.maxSize > 0 && body.n > s.maxSize {
		if err := s.store.Delete(ctx, key); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str("key", key).Msg("failed to remove oversized attachment")
		}
		return nil, apperrors.InvalidArgument(fmt.Sprintf("attachment exceeds %d bytes", s.maxSize))
	}
	audit.LogWithDetail(ctx, audit.ActionUpload, userID, key, "attachment uploaded "+filename)

	return &domain.AttachmentResponse{
		Key:      key,
		ImageURL: s.baseURL + "/" + key,
		Size:     body.n,
	}, nil
}

// Open returns a stored attachment. The caller closes the body.
func (s *attachmentServiceImpl) Open(ctx context.Context, key string) (*storage.Object, error) {
	key = strings.TrimPrefix(key, "/")
	if !strings.HasPrefix(key, attachmentPrefix) {
		return nil, apperrors.NotFound("attachment not found")
	}
	obj, err := s.store.Read(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NotFound("attachment not found")
		}
		return nil, apperrors.Internal(err)
	}
	return obj, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

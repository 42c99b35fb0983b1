package service

import (
	"context"
	"io"

	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/pkg/storage"
)

// Pusher delivers a JSON payload to a user's live connection. It reports
// false when the user has none.
type Pusher interface {
	Push(userID string, payload interface{}) bool
	IsOnline(userID string) bool
}

// MessageService implements sending, history and message lifecycle.
type MessageService interface {
	// Send creates a message, or edits one when req.MessageID is set.
	Send(ctx context.Context, senderID string, req *domain.SendMessageRequest) (*domain.MessageView, error)
	// Deliver fans a sent message out to its recipient. It reports whether
	// a live connection accepted it.
	Deliver(ctx context.Context, msg *domain.Message) bool
	Get(ctx context.Context, requesterID, messageID string) (*domain.MessageView, error)
	Conversation(ctx context.Context, requesterID, peerID string) ([]domain.MessageView, error)
	Delivered(ctx context.Context, requesterID string) ([]domain.MessageView, error)
	MarkRead(ctx context.Context, readerID string, messageIDs []string) (int64, error)
	MarkDelivered(ctx context.Context, readerID string, messageIDs []string) (int64, error)
	Delete(ctx context.Context, requesterID, messageID string) error
	React(ctx context.Context, userID, messageID, reaction string) (*domain.Reaction, error)
	Revisions(ctx context.Context, requesterID, messageID string) ([]domain.RevisionView, error)
}

// PresenceService covers status, typing and the friend graph.
type PresenceService interface {
	SetStatus(ctx context.Context, userID, status string) (domain.Status, error)
	// NotifyTyping reports whether the receiver was online to be told.
	NotifyTyping(ctx context.Context, senderID, receiverID string) (bool, error)
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
}

// AttachmentService stores images referenced by messages.
type AttachmentService interface {
	Upload(ctx context.Context, userID, filename string, size int64, r io.Reader) (*domain.AttachmentResponse, error)
	Open(ctx context.Context, key string) (*storage.Object, error)
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-messenger/internal/domain"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrForbidden        = errors.New("not permitted on this message")
	ErrFollowNotFound   = errors.New("follow relationship not found")
	ErrAlreadyFollowing = errors.New("already following")
)

// UserRepository is the user directory.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// SetKeys stores key material for a user that has none. It reports
	// false when keys were already present.
	SetKeys(ctx context.Context, id, publicKey, privateKey string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
}

// FollowRepository stores the follow graph. Two users who follow each
// other are friends.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
	IsFollowing(ctx context.Context, followerID, followingID string) (bool, error)
	IsFriend(ctx context.Context, a, b string) (bool, error)
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// MessageRepository is the durable message store.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	// Update replaces content fields and records the prior content as a
	// revision. Only the sender may edit.
	Update(ctx context.Context, id, editorID string, upd domain.MessageUpdate, at time.Time) (*domain.Message, error)
	// Delete removes a message on behalf of its sender or recipient.
	Delete(ctx context.Context, id, requesterID string) error
	// FindConversation lists the messages between viewerID and peerID that
	// viewerID may see, oldest first.
	FindConversation(ctx context.Context, viewerID, peerID string) ([]*domain.Message, error)
	// FindDelivered lists sent messages addressed to recipientID in
	// delivery order.
	FindDelivered(ctx context.Context, recipientID string) ([]*domain.Message, error)
	FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Message, error)
	// MarkSent flips sent from false to true. It reports false when another
	// caller already did.
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	// AdvanceStatus moves the recipient's messages forward to target and
	// returns how many changed.
	AdvanceStatus(ctx context.Context, ids []string, readerID string, target domain.DeliveryStatus) (int64, error)
	// CountSince counts messages from senderID to recipientID created at or
	// after since, deleted ones included.
	CountSince(ctx context.Context, senderID, recipientID string, since time.Time) (int64, error)
	AddReaction(ctx context.Context, id, userID, reaction string) (*domain.Reaction, error)
	ListRevisions(ctx context.Context, id string) ([]*domain.Revision, error)
}

package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/weiawesome/wes-messenger/internal/audit"
	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/internal/repository"
	apperrors "github.com/weiawesome/wes-messenger/pkg/errors"
	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/pubsub"
)

type presenceServiceImpl struct {
	users   *Directory
	follows repository.FollowRepository
	pusher  Pusher
	events  pubsub.Publisher
}

// NewPresenceService creates the presence service.
func NewPresenceService(users *Directory, follows repository.FollowRepository, pusher Pusher, events pubsub.Publisher) PresenceService {
	if events == nil {
		events = pubsub.NopPublisher{}
	}
	return &presenceServiceImpl{
		users:   users,
		follows: follows,
		pusher:  pusher,
		events:  events,
	}
}

// SetStatus stores the caller's status and tells connected friends.
func (s *presenceServiceImpl) SetStatus(ctx context.Context, userID, raw string) (domain.Status, error) {
	status, ok := domain.ParseStatus(raw)
	if !ok {
		return "", apperrors.InvalidArgument("status must be one of online, offline, busy")
	}

	if err := s.users.SetStatus(ctx, userID, status); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", apperrors.NotFound("user not found")
		}
		return "", apperrors.Internal(err)
	}
	audit.LogWithDetail(ctx, audit.ActionSetStatus, userID, string(status), "status updated")

	l := log.Ctx(ctx)
	friends, err := s.follows.ListFriendIDs(ctx, userID)
	if err != nil {
		l.Warn().Err(err).Msg("failed to list friends for status broadcast")
		return status, nil
	}

	event := domain.StatusEvent{Type: domain.EventStatus, UserID: userID, Status: status}
	online, pushed := 0, 0
	for _, friendID := range friends {
		if !s.pusher.IsOnline(friendID) {
			continue
		}
		online++
		if s.pusher.Push(friendID, event) {
			pushed++
		}
	}
	l.Debug().Int("friends", len(friends)).Int("online", online).Int("pushed", pushed).Msg("status broadcast")

	if ev, err := pubsub.NewEvent(pubsub.EventStatusChanged, userID, event); err == nil {
		if err := s.events.Publish(ctx, pubsub.UserChannel(userID, pubsub.StreamPresence), ev); err != nil {
			l.Warn().Err(err).Msg("failed to publish status event")
		}
	}
	return status, nil
}

func (s *presenceServiceImpl) NotifyTyping(ctx context.Context, senderID, receiverID string) (bool, error) {
	if _, err := uuid.Parse(receiverID); err != nil {
		return false, apperrors.InvalidArgument("invalid receiverId")
	}
	if _, err := s.users.Status(ctx, receiverID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, apperrors.NotFound("recipient not found")
		}
		return false, apperrors.Internal(err)
	}
	if !s.pusher.IsOnline(receiverID) {
		return false, nil
	}
	return s.pusher.Push(receiverID, domain.TypingEvent{Type: domain.EventTyping, SenderID: senderID}), nil
}

func (s *presenceServiceImpl) Follow(ctx context.Context, followerID, followingID string) error {
	if _, err := uuid.Parse(followingID); err != nil {
		return apperrors.InvalidArgument("invalid user_id")
	}
	if followerID == followingID {
		return apperrors.InvalidArgument("cannot follow yourself")
	}
	if _, err := s.users.Get(ctx, followingID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperrors.NotFound("user not found")
		}
		return apperrors.Internal(err)
	}

	if err := s.follows.Follow(ctx, followerID, followingID); err != nil {
		if errors.Is(err, repository.ErrAlreadyFollowing) {
			return nil
		}
		return apperrors.Internal(err)
	}
	audit.LogTarget(ctx, audit.ActionFollow, followerID, followingID, "user followed")
	return nil
}

func (s *presenceServiceImpl) Unfollow(ctx context.Context, followerID, followingID string) error {
	if _, err := uuid.Parse(followingID); err != nil {
		return apperrors.InvalidArgument("invalid user_id")
	}
	if err := s.follows.Unfollow(ctx, followerID, followingID); err != nil {
		if errors.Is(err, repository.ErrFollowNotFound) {
			return apperrors.NotFound("not following this user")
		}
		return apperrors.Internal(err)
	}
	audit.LogTarget(ctx, audit.ActionUnfollow, followerID, followingID, "user unfollowed")
	return nil
}

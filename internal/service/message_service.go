package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-messenger/internal/audit"
	"github.com/weiawesome/wes-messenger/internal/cipher"
	"github.com/weiawesome/wes-messenger/internal/domain"
	"github.com/weiawesome/wes-messenger/internal/repository"
	"github.com/weiawesome/wes-messenger/internal/throttle"
	apperrors "github.com/weiawesome/wes-messenger/pkg/errors"
	"github.com/weiawesome/wes-messenger/pkg/log"
	"github.com/weiawesome/wes-messenger/pkg/pubsub"
)

// Gate decides whether a sender may deliver to a recipient right now.
type Gate interface {
	MayDeliver(ctx context.Context, senderID, recipientID string) (throttle.Decision, error)
}

type messageServiceImpl struct {
	messages repository.MessageRepository
	users    *Directory
	gate     Gate
	cipher   *cipher.Transform
	pusher   Pusher
	events   pubsub.Publisher
	pairs    *pairLocks
	now      func() time.Time
}

// NewMessageService creates the message service. A nil publisher disables
// event publishing.
func NewMessageService(
	messages repository.MessageRepository,
	users *Directory,
	gate Gate,
	transform *cipher.Transform,
	pusher Pusher,
	events pubsub.Publisher,
) MessageService {
	return newMessageService(messages, users, gate, transform, pusher, events, time.Now)
}

func newMessageService(
	messages repository.MessageRepository,
	users *Directory,
	gate Gate,
	transform *cipher.Transform,
	pusher Pusher,
	events pubsub.Publisher,
	now func() time.Time,
) *messageServiceImpl {
	if events == nil {
		events = pubsub.NopPublisher{}
	}
	return &messageServiceImpl{
		messages: messages,
		users:    users,
		gate:     gate,
		cipher:   transform,
		pusher:   pusher,
		events:   events,
		pairs:    newPairLocks(),
		now:      now,
	}
}

func (s *messageServiceImpl) Send(ctx context.Context, senderID string, req *domain.SendMessageRequest) (*domain.MessageView, error) {
	req.Normalize()

	if _, err := uuid.Parse(req.ReceiverID); err != nil {
		return nil, apperrors.InvalidArgument("invalid receiverId")
	}
	if !req.HasContent() {
		return nil, apperrors.InvalidArgument("one of text, imageUrl or emoji is required")
	}
	if req.MessageID != "" {
		return s.edit(ctx, senderID, req)
	}

	now := s.now().UTC()
	var scheduledAt *time.Time
	if req.ScheduleTime != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduleTime)
		if err != nil {
			return nil, apperrors.InvalidArgument("invalid scheduleTime")
		}
		if !t.After(now) {
			return nil, apperrors.InvalidArgument("scheduleTime must be in the future")
		}
		t = t.UTC()
		scheduledAt = &t
	}

	sender, recipient, err := s.resolvePair(ctx, senderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	if req.Text != nil {
		if err := requireKeys(sender, recipient); err != nil {
			return nil, err
		}
	}

	msg := &domain.Message{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		ImageURL:    req.ImageURL,
		Emoji:       req.Emoji,
		Status:      domain.DeliverySent,
		Sent:        scheduledAt == nil,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}
	if msg.Sent {
		msg.SentAt = &now
	}
	if req.Text != nil {
		msg.Ciphertext, msg.SenderCiphertext, err = s.encryptPair(*req.Text, sender, recipient)
		if err != nil {
			return nil, err
		}
	}

	if err := s.admit(ctx, msg); err != nil {
		return nil, err
	}

	if msg.Sent {
		s.Deliver(ctx, msg)
		audit.LogTarget(ctx, audit.ActionSendMessage, sender.ID, msg.ID, "message sent")
	} else {
		s.publish(ctx, msg.RecipientID, pubsub.EventMessageScheduled, deliveryRecord(msg, false))
		audit.LogTarget(ctx, audit.ActionScheduleMessage, sender.ID, msg.ID, "message scheduled")
	}

	view := domain.NewMessageView(msg, req.Text)
	return &view, nil
}

// admit runs the throttle check and stores msg. Both happen under the
// pair's lock so concurrent sends cannot slip past the count.
func (s *messageServiceImpl) admit(ctx context.Context, msg *domain.Message) error {
	unlock := s.pairs.lock(msg.SenderID, msg.RecipientID)
	defer unlock()

	decision, err := s.gate.MayDeliver(ctx, msg.SenderID, msg.RecipientID)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !decision.Allowed {
		audit.LogTarget(ctx, audit.ActionThrottled, msg.SenderID, msg.RecipientID, decision.Reason)
		return apperrors.RateLimited(decision.Reason)
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

func (s *messageServiceImpl) edit(ctx context.Context, senderID string, req *domain.SendMessageRequest) (*domain.MessageView, error) {
	if _, err := uuid.Parse(req.MessageID); err != nil {
		return nil, apperrors.InvalidArgument("invalid messageId")
	}

	current, err := s.messages.GetByID(ctx, req.MessageID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if current.SenderID != senderID {
		return nil, apperrors.PermissionDenied("only the sender can edit this message")
	}
	if !strings.EqualFold(req.ReceiverID, current.RecipientID) {
		return nil, apperrors.InvalidArgument("receiverId does not match the message")
	}

	sender, recipient, err := s.resolvePair(ctx, senderID, current.RecipientID)
	if err != nil {
		return nil, err
	}

	upd := domain.MessageUpdate{ImageURL: req.ImageURL, Emoji: req.Emoji}
	if req.Text != nil {
		upd.Ciphertext, upd.SenderCiphertext, err = s.encryptPair(*req.Text, sender, recipient)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.messages.Update(ctx, current.ID, senderID, upd, s.now().UTC())
	if err != nil {
		return nil, mapRepoError(err)
	}
	audit.LogTarget(ctx, audit.ActionEditMessage, senderID, updated.ID, "message edited")

	return s.view(sender, updated)
}

// Deliver pushes msg to the recipient's live connection, with text
// decrypted for the recipient, and records the fan-out on the event bus.
// Push failures never fail the send.
func (s *messageServiceImpl) Deliver(ctx context.Context, msg *domain.Message) bool {
	l := log.Ctx(ctx)

	var text *string
	if msg.Ciphertext != nil && s.pusher.IsOnline(msg.RecipientID) {
		recipient, err := s.users.Get(ctx, msg.RecipientID)
		if err == nil {
			text, err = s.decrypt(msg.Ciphertext, recipient)
		}
		if err != nil {
			l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("pushing message without text")
		}
	}

	pushed := s.pusher.Push(msg.RecipientID, domain.NewMessageEvent(msg, text))
	l.Debug().
		Str(log.FieldMessageID, msg.ID).
		Str(log.FieldRecipientID, msg.RecipientID).
		Bool("pushed", pushed).
		Msg("message delivered")

	s.publish(ctx, msg.RecipientID, pubsub.EventMessageDelivered, deliveryRecord(msg, pushed))
	return pushed
}

func (s *messageServiceImpl) Get(ctx context.Context, requesterID, messageID string) (*domain.MessageView, error) {
	msg, err := s.visibleMessage(ctx, requesterID, messageID)
	if err != nil {
		return nil, err
	}
	requester, err := s.requester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	return s.view(requester, msg)
}

func (s *messageServiceImpl) Conversation(ctx context.Context, requesterID, peerID string) ([]domain.MessageView, error) {
	if _, err := uuid.Parse(peerID); err != nil {
		return nil, apperrors.InvalidArgument("invalid userId")
	}
	msgs, err := s.messages.FindConversation(ctx, requesterID, peerID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return s.views(ctx, requesterID, msgs)
}

func (s *messageServiceImpl) Delivered(ctx context.Context, requesterID string) ([]domain.MessageView, error) {
	msgs, err := s.messages.FindDelivered(ctx, requesterID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return s.views(ctx, requesterID, msgs)
}

func (s *messageServiceImpl) MarkRead(ctx context.Context, readerID string, messageIDs []string) (int64, error) {
	n, err := s.advance(ctx, readerID, messageIDs, domain.DeliveryRead)
	if err == nil && n > 0 {
		audit.LogWithDetail(ctx, audit.ActionMarkRead, readerID, string(domain.DeliveryRead), "messages marked read")
	}
	return n, err
}

func (s *messageServiceImpl) MarkDelivered(ctx context.Context, readerID string, messageIDs []string) (int64, error) {
	return s.advance(ctx, readerID, messageIDs, domain.DeliveryDelivered)
}

func (s *messageServiceImpl) advance(ctx context.Context, readerID string, messageIDs []string, target domain.DeliveryStatus) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, apperrors.InvalidArgument("messageIds is required")
	}
	for _, id := range messageIDs {
		if _, err := uuid.Parse(id); err != nil {
			return 0, apperrors.InvalidArgument("invalid messageId: " + id)
		}
	}
	n, err := s.messages.AdvanceStatus(ctx, messageIDs, readerID, target)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return n, nil
}

func (s *messageServiceImpl) Delete(ctx context.Context, requesterID, messageID string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return apperrors.InvalidArgument("invalid messageId")
	}
	if err := s.messages.Delete(ctx, messageID, requesterID); err != nil {
		return mapRepoError(err)
	}
	audit.LogTarget(ctx, audit.ActionDeleteMessage, requesterID, messageID, "message deleted")
	return nil
}

func (s *messageServiceImpl) React(ctx context.Context, userID, messageID, reaction string) (*domain.Reaction, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, apperrors.InvalidArgument("invalid messageId")
	}
	if reaction == "" {
		return nil, apperrors.InvalidArgument("reaction is required")
	}
	r, err := s.messages.AddReaction(ctx, messageID, userID, reaction)
	if err != nil {
		return nil, mapRepoError(err)
	}
	audit.LogWithDetail(ctx, audit.ActionReact, userID, reaction, "reaction added")
	return r, nil
}

func (s *messageServiceImpl) Revisions(ctx context.Context, requesterID, messageID string) ([]domain.RevisionView, error) {
	msg, err := s.visibleMessage(ctx, requesterID, messageID)
	if err != nil {
		return nil, err
	}
	requester, err := s.requester(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	revisions, err := s.messages.ListRevisions(ctx, msg.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	views := make([]domain.RevisionView, 0, len(revisions))
	for _, rev := range revisions {
		token := rev.SenderCiphertext
		if requesterID == msg.RecipientID {
			token = rev.Ciphertext
		}
		text, err := s.decrypt(token, requester)
		if err != nil {
			return nil, err
		}
		views = append(views, domain.RevisionView{
			Text:     text,
			ImageURL: rev.ImageURL,
			Emoji:    rev.Emoji,
			EditedAt: rev.EditedAt,
		})
	}
	return views, nil
}

func (s *messageServiceImpl) visibleMessage(ctx context.Context, requesterID, messageID string) (*domain.Message, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, apperrors.InvalidArgument("invalid messageId")
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !msg.IsParticipant(requesterID) {
		return nil, apperrors.PermissionDenied("not a participant of this message")
	}
	if !msg.VisibleTo(requesterID) {
		return nil, apperrors.NotFound("message not found")
	}
	return msg, nil
}

// resolvePair loads sender and recipient concurrently.
func (s *messageServiceImpl) resolvePair(ctx context.Context, senderID, recipientID string) (*domain.User, *domain.User, error) {
	var sender, recipient *domain.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.users.Get(gctx, senderID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return apperrors.Unauthenticated("user not found")
			}
			return apperrors.Internal(err)
		}
		sender = u
		return nil
	})
	g.Go(func() error {
		u, err := s.users.Get(gctx, recipientID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return apperrors.NotFound("recipient not found")
			}
			return apperrors.Internal(err)
		}
		recipient = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return sender, recipient, nil
}

func (s *messageServiceImpl) requester(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.Unauthenticated("user not found")
		}
		return nil, apperrors.Internal(err)
	}
	return u, nil
}

func requireKeys(sender, recipient *domain.User) error {
	if !recipient.HasKeys() {
		return apperrors.MissingKey("recipient has no encryption key")
	}
	if !sender.HasKeys() {
		return apperrors.MissingKey("sender has no encryption key")
	}
	return nil
}

// encryptPair encrypts text once for the recipient and once for the sender.
func (s *messageServiceImpl) encryptPair(text string, sender, recipient *domain.User) (*string, *string, error) {
	if err := requireKeys(sender, recipient); err != nil {
		return nil, nil, err
	}

	forRecipient, err := s.cipher.Encrypt(text, keysOf(recipient))
	if err != nil {
		return nil, nil, apperrors.Crypto(err)
	}
	forSender, err := s.cipher.Encrypt(text, keysOf(sender))
	if err != nil {
		return nil, nil, apperrors.Crypto(err)
	}
	return &forRecipient, &forSender, nil
}

func (s *messageServiceImpl) decrypt(token *string, owner *domain.User) (*string, error) {
	if token == nil {
		return nil, nil
	}
	if !owner.HasKeys() {
		return nil, apperrors.MissingKey("no encryption key provisioned")
	}
	text, err := s.cipher.Decrypt(*token, keysOf(owner))
	if err != nil {
		if errors.Is(err, cipher.ErrMissingKey) {
			return nil, apperrors.MissingKey("no encryption key provisioned")
		}
		return nil, apperrors.Crypto(err)
	}
	return &text, nil
}

func (s *messageServiceImpl) view(viewer *domain.User, msg *domain.Message) (*domain.MessageView, error) {
	text, err := s.decrypt(msg.CiphertextFor(viewer.ID), viewer)
	if err != nil {
		return nil, err
	}
	v := domain.NewMessageView(msg, text)
	return &v, nil
}

func (s *messageServiceImpl) views(ctx context.Context, requesterID string, msgs []*domain.Message) ([]domain.MessageView, error) {
	views := make([]domain.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return views, nil
	}
	requester, err := s.requester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		v, err := s.view(requester, msg)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (s *messageServiceImpl) publish(ctx context.Context, userID, eventType string, payload interface{}) {
	event, err := pubsub.NewEvent(eventType, userID, payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	if err := s.events.Publish(ctx, pubsub.UserChannel(userID, pubsub.StreamMessages), event); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

func deliveryRecord(msg *domain.Message, pushed bool) domain.DeliveryRecord {
	return domain.DeliveryRecord{
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Pushed:      pushed,
		ScheduledAt: msg.ScheduledAt,
		SentAt:      msg.SentAt,
	}
}

func keysOf(u *domain.User) cipher.KeyMaterial {
	return cipher.KeyMaterial{PublicKey: u.PublicKey, PrivateKey: u.PrivateKey}
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrMessageNotFound):
		return apperrors.NotFound("message not found")
	case errors.Is(err, repository.ErrForbidden):
		return apperrors.PermissionDenied("not permitted on this message")
	case errors.Is(err, repository.ErrUserNotFound):
		return apperrors.NotFound("user not found")
	}
	return apperrors.Internal(err)
}

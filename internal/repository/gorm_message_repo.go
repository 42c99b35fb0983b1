package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-messenger/internal/domain"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-backed message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func withReactions(db *gorm.DB) *gorm.DB {
	return db.Preload("Reactions", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC, id ASC")
	})
}

// Create stores a new message. An empty ID is generated.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Status == "" {
		msg.Status = domain.DeliverySent
	}

	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	msg.CreatedAt = model.CreatedAt
	msg.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a message by ID.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	model, err := r.find(withReactions(r.db.WithContext(ctx)), id)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormMessageRepository) find(db *gorm.DB, id string) (*domain.MessageModel, error) {
	var model domain.MessageModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &model, nil
}

// Update replaces the provided content fields and records the prior
// content in message_revisions within one transaction.
func (r *GormMessageRepository) Update(ctx context.Context, id, editorID string, upd domain.MessageUpdate, at time.Time) (*domain.Message, error) {
	var updated *domain.MessageModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.find(tx, id)
		if err != nil {
			return err
		}
		if current.SenderID != editorID {
			return ErrForbidden
		}
		if upd.Empty() {
			updated = current
			return nil
		}

		editedAt := at.UTC()
		revision := domain.RevisionModel{
			MessageID:        current.ID,
			Ciphertext:       current.Ciphertext,
			SenderCiphertext: current.SenderCiphertext,
			ImageURL:         current.ImageURL,
			Emoji:            current.Emoji,
			EditedAt:         editedAt,
		}
		if err := tx.Create(&revision).Error; err != nil {
			return err
		}

		fields := map[string]interface{}{"edited_at": editedAt}
		if upd.Ciphertext != nil {
			fields["ciphertext"] = *upd.Ciphertext
			fields["sender_ciphertext"] = upd.SenderCiphertext
		}
		if upd.ImageURL != nil {
			fields["image_url"] = *upd.ImageURL
		}
		if upd.Emoji != nil {
			fields["emoji"] = *upd.Emoji
		}
		if err := tx.Model(&domain.MessageModel{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return err
		}

		updated, err = r.find(withReactions(tx), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated.ToDomain(), nil
}

// Delete soft-deletes a message. Senders may always delete; recipients
// only once the message has been sent to them.
func (r *GormMessageRepository) Delete(ctx context.Context, id, requesterID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.find(tx, id)
		if err != nil {
			return err
		}
		msg := current.ToDomain()
		if !msg.IsParticipant(requesterID) {
			return ErrForbidden
		}
		if !msg.VisibleTo(requesterID) {
			return ErrMessageNotFound
		}
		return tx.Delete(&domain.MessageModel{}, "id = ?", id).Error
	})
}

// FindConversation lists the messages between viewerID and peerID.
// Scheduled messages that have not gone out are only shown to their sender.
func (r *GormMessageRepository) FindConversation(ctx context.Context, viewerID, peerID string) ([]*domain.Message, error) {
	var models []domain.MessageModel
	err := withReactions(r.db.WithContext(ctx)).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", viewerID, peerID, peerID, viewerID).
		Where("sent = ? OR sender_id = ?", true, viewerID).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

// FindDelivered lists sent messages addressed to recipientID, ordered by
// scheduled time when present and creation time otherwise.
func (r *GormMessageRepository) FindDelivered(ctx context.Context, recipientID string) ([]*domain.Message, error) {
	var models []domain.MessageModel
	err := withReactions(r.db.WithContext(ctx)).
		Where("recipient_id = ? AND sent = ?", recipientID, true).
		Order("COALESCE(scheduled_at, created_at) ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

// FindDueScheduled lists unsent messages whose scheduled time has passed.
func (r *GormMessageRepository) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]*domain.Message, error) {
	q := r.db.WithContext(ctx).
		Where("sent = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", false, now.UTC()).
		Order("scheduled_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []domain.MessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainList(models), nil
}

// MarkSent is a conditional update: only one caller observes true.
func (r *GormMessageRepository) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]interface{}{
			"sent":    true,
			"sent_at": at.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// AdvanceStatus moves readerID's received messages forward to target.
// Messages already at or beyond target are left alone.
func (r *GormMessageRepository) AdvanceStatus(ctx context.Context, ids []string, readerID string, target domain.DeliveryStatus) (int64, error) {
	var from []string
	for _, st := range target.Precedes() {
		from = append(from, string(st))
	}
	if len(ids) == 0 || len(from) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id IN ? AND recipient_id = ? AND sent = ? AND status IN ?", ids, readerID, true, from).
		Update("status", string(target))
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountSince counts messages for the throttle window.
func (r *GormMessageRepository) CountSince(ctx context.Context, senderID, recipientID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&domain.MessageModel{}).
		Where("sender_id = ? AND recipient_id = ? AND created_at >= ?", senderID, recipientID, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddReaction appends a reaction from one of the message's participants.
func (r *GormMessageRepository) AddReaction(ctx context.Context, id, userID, reaction string) (*domain.Reaction, error) {
	var model domain.ReactionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.find(tx, id)
		if err != nil {
			return err
		}
		msg := current.ToDomain()
		if !msg.IsParticipant(userID) {
			return ErrForbidden
		}
		if !msg.VisibleTo(userID) {
			return ErrMessageNotFound
		}

		model = domain.ReactionModel{MessageID: id, UserID: userID, Reaction: reaction}
		return tx.Create(&model).Error
	})
	if err != nil {
		return nil, err
	}
	return &domain.Reaction{UserID: model.UserID, Reaction: model.Reaction, CreatedAt: model.CreatedAt.UTC()}, nil
}

// ListRevisions returns a message's edit history, oldest first.
func (r *GormMessageRepository) ListRevisions(ctx context.Context, id string) ([]*domain.Revision, error) {
	var models []domain.RevisionModel
	err := r.db.WithContext(ctx).
		Where("message_id = ?", id).
		Order("edited_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Revision, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out, nil
}

func toDomainList(models []domain.MessageModel) []*domain.Message {
	out := make([]*domain.Message, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out
}

var _ MessageRepository = (*GormMessageRepository)(nil)

package domain

import (
	"time"

	"gorm.io/gorm"
)

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	Username    string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName string    `gorm:"type:varchar(100)"`
	PublicKey   string    `gorm:"type:varchar(64)"`
	PrivateKey  string    `gorm:"type:varchar(64)"`
	Status      string    `gorm:"type:varchar(16);not null;default:'offline'"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	status, ok := ParseStatus(m.Status)
	if !ok {
		status = StatusOffline
	}
	return &User{
		ID:          m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		PublicKey:   m.PublicKey,
		PrivateKey:  m.PrivateKey,
		Status:      status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	status := u.Status
	if status == "" {
		status = StatusOffline
	}
	return &UserModel{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		PublicKey:   u.PublicKey,
		PrivateKey:  u.PrivateKey,
		Status:      string(status),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// FollowModel is the GORM model for the follows table.
type FollowModel struct {
	ID          uint           `gorm:"primaryKey;autoIncrement"`
	FollowerID  string         `gorm:"column:follower_id;type:varchar(36);not null;uniqueIndex:idx_follow_pair"`
	FollowingID string         `gorm:"column:following_id;type:varchar(36);not null;uniqueIndex:idx_follow_pair;index"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (FollowModel) TableName() string { return "follows" }

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID               string          `gorm:"type:varchar(36);primaryKey"`
	SenderID         string          `gorm:"type:varchar(36);not null;index:idx_messages_pair,priority:1"`
	RecipientID      string          `gorm:"type:varchar(36);not null;index:idx_messages_pair,priority:2;index"`
	Ciphertext       *string         `gorm:"type:text"`
	SenderCiphertext *string         `gorm:"type:text"`
	ImageURL         *string         `gorm:"type:varchar(1024)"`
	Emoji            *string         `gorm:"type:varchar(64)"`
	Status           string          `gorm:"type:varchar(16);not null;default:'sent'"`
	Sent             bool            `gorm:"not null;default:false;index:idx_messages_due,priority:1"`
	ScheduledAt      *time.Time      `gorm:"index:idx_messages_due,priority:2"`
	SentAt           *time.Time
	EditedAt         *time.Time
	CreatedAt        time.Time       `gorm:"autoCreateTime;index:idx_messages_pair,priority:3"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime"`
	DeletedAt        gorm.DeletedAt  `gorm:"index"`
	Reactions        []ReactionModel `gorm:"foreignKey:MessageID"`
}

func (MessageModel) TableName() string { return "messages" }

// ReactionModel is the GORM model for the message_reactions table.
type ReactionModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	MessageID string    `gorm:"type:varchar(36);not null;index"`
	UserID    string    `gorm:"type:varchar(36);not null"`
	Reaction  string    `gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ReactionModel) TableName() string { return "message_reactions" }

// RevisionModel is the GORM model for the message_revisions table.
type RevisionModel struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	MessageID        string    `gorm:"type:varchar(36);not null;index"`
	Ciphertext       *string   `gorm:"type:text"`
	SenderCiphertext *string   `gorm:"type:text"`
	ImageURL         *string   `gorm:"type:varchar(1024)"`
	Emoji            *string   `gorm:"type:varchar(64)"`
	EditedAt         time.Time `gorm:"not null"`
}

func (RevisionModel) TableName() string { return "message_revisions" }

// Models lists every model for auto-migration.
func Models() []interface{} {
	return []interface{}{
		&UserModel{},
		&FollowModel{},
		&MessageModel{},
		&ReactionModel{},
		&RevisionModel{},
	}
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	msg := &Message{
		ID:               m.ID,
		SenderID:         m.SenderID,
		RecipientID:      m.RecipientID,
		Ciphertext:       m.Ciphertext,
		SenderCiphertext: m.SenderCiphertext,
		ImageURL:         m.ImageURL,
		Emoji:            m.Emoji,
		Status:           DeliveryStatus(m.Status),
		Sent:             m.Sent,
		ScheduledAt:      utcPtr(m.ScheduledAt),
		SentAt:           utcPtr(m.SentAt),
		EditedAt:         utcPtr(m.EditedAt),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	for _, r := range m.Reactions {
		msg.Reactions = append(msg.Reactions, Reaction{
			UserID:    r.UserID,
			Reaction:  r.Reaction,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return msg
}

// MessageToModel converts domain Message to MessageModel. Reactions are
// stored separately.
func MessageToModel(m *Message) *MessageModel {
	status := m.Status
	if status == "" {
		status = DeliverySent
	}
	return &MessageModel{
		ID:               m.ID,
		SenderID:         m.SenderID,
		RecipientID:      m.RecipientID,
		Ciphertext:       m.Ciphertext,
		SenderCiphertext: m.SenderCiphertext,
		ImageURL:         m.ImageURL,
		Emoji:            m.Emoji,
		Status:           string(status),
		Sent:             m.Sent,
		ScheduledAt:      m.ScheduledAt,
		SentAt:           m.SentAt,
		EditedAt:         m.EditedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// ToDomain converts RevisionModel to domain Revision.
func (m *RevisionModel) ToDomain() *Revision {
	return &Revision{
		ID:               m.ID,
		MessageID:        m.MessageID,
		Ciphertext:       m.Ciphertext,
		SenderCiphertext: m.SenderCiphertext,
		ImageURL:         m.ImageURL,
		Emoji:            m.Emoji,
		EditedAt:         m.EditedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

package domain

import "time"

// EventType identifies a push event on the WebSocket channel.
type EventType string

const (
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"
	EventStatus  EventType = "status"
)

// MessageEvent announces a new message to its recipient. Text is the
// recipient's decrypted copy and is omitted when it could not be decrypted.
type MessageEvent struct {
	Type        EventType  `json:"type"`
	MessageID   string     `json:"messageId"`
	SenderID    string     `json:"senderId"`
	ReceiverID  string     `json:"receiverId"`
	Text        *string    `json:"text,omitempty"`
	ImageURL    *string    `json:"imageUrl,omitempty"`
	Emoji       *string    `json:"emoji,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewMessageEvent builds the push event for m carrying text.
func NewMessageEvent(m *Message, text *string) MessageEvent {
	return MessageEvent{
		Type:        EventMessage,
		MessageID:   m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.RecipientID,
		Text:        text,
		ImageURL:    m.ImageURL,
		Emoji:       m.Emoji,
		ScheduledAt: m.ScheduledAt,
		SentAt:      m.SentAt,
		CreatedAt:   m.CreatedAt,
	}
}

// TypingEvent tells a user that a peer is typing.
type TypingEvent struct {
	Type     EventType `json:"type"`
	SenderID string    `json:"senderId"`
}

// StatusEvent tells a user that a friend changed status.
type StatusEvent struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId"`
	Status Status    `json:"status"`
}

// DeliveryRecord is published on the event bus when a message reaches
// its fan-out step.
type DeliveryRecord struct {
	MessageID   string     `json:"message_id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Pushed      bool       `json:"pushed"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

package domain

import "time"

// DeliveryStatus tracks how far a message got on the recipient side.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case DeliveryDelivered:
		return 1
	case DeliveryRead:
		return 2
	default:
		return 0
	}
}

// Precedes returns the statuses a message may be in to advance to s.
func (s DeliveryStatus) Precedes() []DeliveryStatus {
	var out []DeliveryStatus
	for _, st := range []DeliveryStatus{DeliverySent, DeliveryDelivered, DeliveryRead} {
		if st.rank() < s.rank() {
			out = append(out, st)
		}
	}
	return out
}

// Message is a direct message between two users. Text is only ever held
// as ciphertext: Ciphertext for the recipient, SenderCiphertext for the sender.
type Message struct {
	ID               string
	SenderID         string
	RecipientID      string
	Ciphertext       *string
	SenderCiphertext *string
	ImageURL         *string
	Emoji            *string
	Status           DeliveryStatus
	Sent             bool
	ScheduledAt      *time.Time
	SentAt           *time.Time
	EditedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Reactions        []Reaction
}

// Reaction is an append-only reaction to a message.
type Reaction struct {
	UserID    string    `json:"userId"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"createdAt"`
}

// Revision is the content a message had before an edit.
type Revision struct {
	ID               uint
	MessageID        string
	Ciphertext       *string
	SenderCiphertext *string
	ImageURL         *string
	Emoji            *string
	EditedAt         time.Time
}

// MessageUpdate carries the content fields an edit replaces. Nil fields
// are left unchanged.
type MessageUpdate struct {
	Ciphertext       *string
	SenderCiphertext *string
	ImageURL         *string
	Emoji            *string
}

// Empty reports whether the update changes nothing.
func (u MessageUpdate) Empty() bool {
	return u.Ciphertext == nil && u.ImageURL == nil && u.Emoji == nil
}

// HasContent reports whether at least one content field is set.
func (m *Message) HasContent() bool {
	return m.Ciphertext != nil || m.ImageURL != nil || m.Emoji != nil
}

// IsParticipant reports whether userID sent or received the message.
func (m *Message) IsParticipant(userID string) bool {
	return userID == m.SenderID || userID == m.RecipientID
}

// VisibleTo reports whether userID may read the message now. A scheduled
// message stays hidden from its recipient until it has been sent.
func (m *Message) VisibleTo(userID string) bool {
	if userID == m.SenderID {
		return true
	}
	return userID == m.RecipientID && m.Sent
}

// CiphertextFor returns the copy of the text encrypted for userID.
func (m *Message) CiphertextFor(userID string) *string {
	switch userID {
	case m.RecipientID:
		return m.Ciphertext
	case m.SenderID:
		return m.SenderCiphertext
	}
	return nil
}

// MessageView is a message as returned to one of its participants, with
// the text decrypted for that participant.
type MessageView struct {
	ID          string         `json:"id"`
	SenderID    string         `json:"senderId"`
	ReceiverID  string         `json:"receiverId"`
	Text        *string        `json:"text,omitempty"`
	ImageURL    *string        `json:"imageUrl,omitempty"`
	Emoji       *string        `json:"emoji,omitempty"`
	Status      DeliveryStatus `json:"status"`
	Sent        bool           `json:"sent"`
	ScheduledAt *time.Time     `json:"scheduledAt,omitempty"`
	SentAt      *time.Time     `json:"sentAt,omitempty"`
	EditedAt    *time.Time     `json:"editedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	Reactions   []Reaction     `json:"reactions,omitempty"`
}

// NewMessageView builds the view of m with text already decrypted.
func NewMessageView(m *Message, text *string) MessageView {
	return MessageView{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.RecipientID,
		Text:        text,
		ImageURL:    m.ImageURL,
		Emoji:       m.Emoji,
		Status:      m.Status,
		Sent:        m.Sent,
		ScheduledAt: m.ScheduledAt,
		SentAt:      m.SentAt,
		EditedAt:    m.EditedAt,
		CreatedAt:   m.CreatedAt,
		Reactions:   m.Reactions,
	}
}

// RevisionView is a decrypted edit history entry.
type RevisionView struct {
	Text     *string   `json:"text,omitempty"`
	ImageURL *string   `json:"imageUrl,omitempty"`
	Emoji    *string   `json:"emoji,omitempty"`
	EditedAt time.Time `json:"editedAt"`
}

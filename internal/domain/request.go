package domain

// SendMessageRequest creates a message, or edits one when MessageID is set.
type SendMessageRequest struct {
	ReceiverID   string  `json:"receiverId"`
	Text         *string `json:"text"`
	ImageURL     *string `json:"imageUrl"`
	Emoji        *string `json:"emoji"`
	MessageID    string  `json:"messageId"`
	ScheduleTime *string `json:"scheduleTime"`
}

// Normalize turns empty content strings into absent fields.
func (r *SendMessageRequest) Normalize() {
	r.Text = nonEmpty(r.Text)
	r.ImageURL = nonEmpty(r.ImageURL)
	r.Emoji = nonEmpty(r.Emoji)
	r.ScheduleTime = nonEmpty(r.ScheduleTime)
}

// HasContent reports whether any content field is present.
func (r *SendMessageRequest) HasContent() bool {
	return r.Text != nil || r.ImageURL != nil || r.Emoji != nil
}

// MessageIDsRequest lists messages for a bulk status change.
type MessageIDsRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required,min=1,max=500"`
}

// HistoryQuery selects one of the history views.
type HistoryQuery struct {
	UserID    string `form:"userId"`
	MessageID string `form:"messageId"`
	Scheduled bool   `form:"scheduled"`
}

// SetStatusRequest sets the caller's presence status.
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// TypingRequest notifies a peer that the caller is typing.
type TypingRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
}

// ReactRequest appends a reaction to a message.
type ReactRequest struct {
	Reaction string `json:"reaction" binding:"required,max=32"`
}

// AttachmentResponse is returned after an image upload.
type AttachmentResponse struct {
	Key      string `json:"key"`
	ImageURL string `json:"imageUrl"`
	Size     int64  `json:"size"`
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
